package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisbap/internal/errors"
)

const sampleOnSearch = `{
	"context": {"transaction_id": "txn-1", "action": "on_search"},
	"message": {
		"catalog": {
			"providers": [
				{
					"id": "32",
					"items": [
						{
							"id": "plan-1",
							"tags": [
								{
									"descriptor": {"code": "PLAN_IDENTIFIERS"},
									"list": [
										{"descriptor": {"code": "ISIN"}, "value": "INF123456789"}
									]
								}
							]
						}
					]
				}
			]
		}
	}
}`

func TestDocGet(t *testing.T) {
	doc, err := Parse("on_search", []byte(sampleOnSearch))
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "top level", path: "context.action", want: "on_search"},
		{name: "array index", path: "message.catalog.providers.0.id", want: "32"},
		{name: "nested array", path: "message.catalog.providers.0.items.0.id", want: "plan-1"},
		{name: "missing key", path: "message.catalog.offers", wantErr: true},
		{name: "index out of range", path: "message.catalog.providers.3.id", wantErr: true},
		{name: "index into object", path: "context.0", wantErr: true},
		{name: "traverse scalar", path: "context.action.code", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := doc.String(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrorTypeMalformed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocStringOr(t *testing.T) {
	doc, err := Parse("on_search", []byte(sampleOnSearch))
	require.NoError(t, err)

	assert.Equal(t, "on_search", doc.StringOr("context.action", "none"))
	assert.Equal(t, "none", doc.StringOr("context.missing", "none"))
}

func TestDocDocs(t *testing.T) {
	doc, err := Parse("on_search", []byte(sampleOnSearch))
	require.NoError(t, err)

	providers, err := doc.Docs("message.catalog.providers")
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "32", providers[0].StringOr("id", ""))
	assert.Equal(t, "on_search", providers[0].Stage())
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse("on_status", []byte("{not json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeMalformed))
}

func TestTagValue(t *testing.T) {
	doc, err := Parse("on_search", []byte(sampleOnSearch))
	require.NoError(t, err)

	tags, err := doc.Slice("message.catalog.providers.0.items.0.tags")
	require.NoError(t, err)

	isin, ok := TagValue(tags, "PLAN_IDENTIFIERS", "ISIN")
	require.True(t, ok)
	assert.Equal(t, "INF123456789", isin)

	_, ok = TagValue(tags, "PLAN_IDENTIFIERS", "AMFI")
	assert.False(t, ok)

	_, ok = TagValue(tags, "SCHEME_INFO", "ISIN")
	assert.False(t, ok)
}
