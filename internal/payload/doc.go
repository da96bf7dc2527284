// Package payload navigates stored callback documents. Callbacks from seller
// platforms are persisted verbatim as JSON, and the synthesizer reads slices
// of them back out by path; every miss surfaces as a typed error naming the
// stage and the missing path rather than a panic or a zero value.
package payload

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"fisbap/internal/errors"
)

// Doc wraps a decoded JSON document for path-based extraction. The stage name
// travels with the doc so extraction errors identify which stored callback
// was malformed.
type Doc struct {
	stage string
	root  any
}

// Parse decodes raw JSON into a Doc
func Parse(stage string, raw []byte) (*Doc, error) {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformed,
			fmt.Sprintf("%s payload is not valid JSON", stage))
	}
	return &Doc{stage: stage, root: root}, nil
}

// FromValue wraps an already-decoded value
func FromValue(stage string, value any) *Doc {
	return &Doc{stage: stage, root: value}
}

// Stage returns the name the doc was parsed under
func (d *Doc) Stage() string { return d.stage }

// Root returns the underlying decoded value
func (d *Doc) Root() any { return d.root }

// Get walks a dotted path ("message.catalog.providers.0.id"). Numeric
// segments index into arrays. A missing or mistyped segment returns a
// malformed-upstream error naming the stage and full path.
func (d *Doc) Get(path string) (any, error) {
	cur := d.root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, errors.MalformedUpstream(d.stage, path)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, errors.MalformedUpstream(d.stage, path)
			}
			cur = node[idx]
		default:
			return nil, errors.MalformedUpstream(d.stage, path)
		}
	}
	return cur, nil
}

// String extracts a string at path
func (d *Doc) String(path string) (string, error) {
	v, err := d.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.MalformedUpstream(d.stage, path)
	}
	return s, nil
}

// StringOr extracts a string at path, falling back on any miss
func (d *Doc) StringOr(path, fallback string) string {
	s, err := d.String(path)
	if err != nil {
		return fallback
	}
	return s
}

// Map extracts an object at path
func (d *Doc) Map(path string) (map[string]any, error) {
	v, err := d.Get(path)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.MalformedUpstream(d.stage, path)
	}
	return m, nil
}

// Slice extracts an array at path
func (d *Doc) Slice(path string) ([]any, error) {
	v, err := d.Get(path)
	if err != nil {
		return nil, err
	}
	s, ok := v.([]any)
	if !ok {
		return nil, errors.MalformedUpstream(d.stage, path)
	}
	return s, nil
}

// Docs extracts an array at path and wraps each element
func (d *Doc) Docs(path string) ([]*Doc, error) {
	s, err := d.Slice(path)
	if err != nil {
		return nil, err
	}
	out := make([]*Doc, len(s))
	for i, v := range s {
		out[i] = &Doc{stage: d.stage, root: v}
	}
	return out, nil
}

// Sub narrows the doc to the value at path
func (d *Doc) Sub(path string) (*Doc, error) {
	v, err := d.Get(path)
	if err != nil {
		return nil, err
	}
	return &Doc{stage: d.stage, root: v}, nil
}

// Has reports whether path resolves
func (d *Doc) Has(path string) bool {
	_, err := d.Get(path)
	return err == nil
}

// TagValue scans a tags array for an entry value by tag and entry code.
// Tags follow the network shape: each tag has descriptor.code and a list of
// entries, each with its own descriptor.code and a value.
func TagValue(tags []any, tagCode, entryCode string) (string, bool) {
	for _, t := range tags {
		tag, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if code := descriptorCode(tag); code != tagCode {
			continue
		}
		list, ok := tag["list"].([]any)
		if !ok {
			continue
		}
		for _, e := range list {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if descriptorCode(entry) != entryCode {
				continue
			}
			if value, ok := entry["value"].(string); ok {
				return value, true
			}
		}
	}
	return "", false
}

func descriptorCode(node map[string]any) string {
	desc, ok := node["descriptor"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := desc["code"].(string)
	return code
}
