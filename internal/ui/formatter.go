package ui

import (
	"fmt"
	"strings"
)

// TruncateText truncates text to the specified length, adding "..." if truncated
func TruncateText(text string, maxLen int) string {
	if text == "" {
		return ""
	}

	// Collapse newlines and runs of whitespace
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.Join(strings.Fields(text), " ")

	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return text[:maxLen]
	}
	return text[:maxLen-3] + "..."
}

// WordWrap wraps text to the specified width, preserving word boundaries
func WordWrap(text string, width int) []string {
	if text == "" || width <= 0 {
		return []string{}
	}

	var lines []string
	currentLine := ""
	currentLength := 0

	for _, word := range strings.Fields(text) {
		wordLength := len(word)
		if currentLength == 0 {
			currentLine = word
			currentLength = wordLength
			continue
		}
		if currentLength+1+wordLength <= width {
			currentLine += " " + word
			currentLength += 1 + wordLength
			continue
		}
		lines = append(lines, currentLine)
		currentLine = word
		currentLength = wordLength
	}
	if currentLength > 0 {
		lines = append(lines, currentLine)
	}
	return lines
}

// FormatAmount renders a rupee amount string for display
func FormatAmount(value string) string {
	if value == "" {
		return "-"
	}
	return fmt.Sprintf("INR %s", value)
}

// PrintSteps prints flow progress as a numbered list
func PrintSteps(steps []string) {
	for i, step := range steps {
		fmt.Printf("  %d. %s\n", i+1, step)
	}
}
