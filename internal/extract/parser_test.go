package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult_WellFormed(t *testing.T) {
	payload := `{
		"entities": [
			{"type": "institution", "name": "央行"},
			{"type": "company", "name": "贵州茅台", "attributes": {"stock_code": "600519"}},
			{"type": "indicator", "name": "CPI", "attributes": {"unit": "%"}}
		],
		"relations": [
			{"type": "ANNOUNCED", "from": "Institution:央行", "to": "Policy:降准通知"},
			{"type": "CITES", "from": "Article:self", "to": "Indicator:CPI",
			 "attributes": {"value": 0.7, "period": "2024-02"}}
		]
	}`

	result, err := ParseResult([]byte(payload))
	require.NoError(t, err)
	require.Len(t, result.Entities, 3)
	require.Len(t, result.Relations, 2)

	assert.Equal(t, "institution", result.Entities[0].Type)
	assert.Equal(t, "央行", result.Entities[0].Name)
	assert.Equal(t, "600519", result.Entities[1].Attrs["stock_code"])
	assert.Equal(t, 0.7, result.Relations[1].Attrs["value"])
	assert.Equal(t, "2024-02", result.Relations[1].Attrs["period"])
}

func TestParseResult_FencedJSON(t *testing.T) {
	payload := "```json\n{\"entities\": [{\"type\": \"region\", \"name\": \"长三角\"}], \"relations\": []}\n```"

	result, err := ParseResult([]byte(payload))
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "长三角", result.Entities[0].Name)
}

func TestParseResult_DropsStructurallyEmptyRecords(t *testing.T) {
	payload := `{
		"entities": [
			{"type": "", "name": "x"},
			{"type": "company", "name": "  "},
			{"type": "company", "name": "ok"}
		],
		"relations": [
			{"type": "MENTIONS", "from": "", "to": "Company:ok"},
			{"type": "MENTIONS", "from": "Article:self", "to": "Company:ok"}
		]
	}`

	result, err := ParseResult([]byte(payload))
	require.NoError(t, err)
	assert.Len(t, result.Entities, 1)
	assert.Len(t, result.Relations, 1)
}

func TestParseResult_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"prose", "I could not find any entities in this article."},
		{"truncated", `{"entities": [{"type": "company"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResult([]byte(tt.input))
			assert.Error(t, err, "garbage output is an extraction failure, not an empty result")
		})
	}
}

func TestParseResult_MissingArrays(t *testing.T) {
	result, err := ParseResult([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, result.Entities)
	assert.Empty(t, result.Relations)
}
