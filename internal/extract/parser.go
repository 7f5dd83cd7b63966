package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/newsgraph/newsgraph-go/internal/models"
)

// ParseResult decodes the extractor's JSON output into the loose
// entity/relation shapes. It tolerates a fenced code block around the JSON
// and missing arrays, but rejects anything that does not decode: garbage
// output is an extraction failure, not an empty result.
func ParseResult(data []byte) (*models.ExtractionResult, error) {
	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, fmt.Errorf("extraction output empty")
	}

	var result models.ExtractionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("decode extraction output: %w", err)
	}

	// Drop structurally unusable records here; semantic validation
	// (closed type sets, alias resolution) happens at the standardizer
	// boundary.
	entities := result.Entities[:0]
	for _, e := range result.Entities {
		if strings.TrimSpace(e.Type) == "" || strings.TrimSpace(e.Name) == "" {
			continue
		}
		entities = append(entities, e)
	}
	result.Entities = entities

	relations := result.Relations[:0]
	for _, r := range result.Relations {
		if strings.TrimSpace(r.Type) == "" || r.From == "" || r.To == "" {
			continue
		}
		relations = append(relations, r)
	}
	result.Relations = relations

	return &result, nil
}
