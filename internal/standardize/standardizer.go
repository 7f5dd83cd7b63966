package standardize

import (
	"fmt"
	"os"
	"strings"

	"github.com/newsgraph/newsgraph-go/internal/models"
	"gopkg.in/yaml.v3"
)

// Standardizer maps raw surface forms onto canonical names through an
// operator-maintained alias table. Lookup is exact-match per entity type;
// unknown forms pass through unchanged, so standardization is total and
// never fails.
type Standardizer struct {
	aliases map[models.NodeType]map[string]string
}

// aliasFile is the YAML shape of configs/aliases.yaml: a map from
// lowercase node type to raw-form -> canonical-name pairs.
type aliasFile map[string]map[string]string

// Load reads the alias table from path. The table is loaded once and never
// mutated by the pipeline; operators edit the file out of band.
func Load(path string) (*Standardizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias table: %w", err)
	}
	return Parse(data)
}

// Parse builds a Standardizer from raw YAML alias data.
func Parse(data []byte) (*Standardizer, error) {
	var file aliasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse alias table: %w", err)
	}

	aliases := make(map[models.NodeType]map[string]string, len(file))
	for typeName, pairs := range file {
		t, ok := coerceNodeType(typeName)
		if !ok {
			return nil, fmt.Errorf("alias table references unknown entity type %q", typeName)
		}
		table := make(map[string]string, len(pairs))
		for raw, canonical := range pairs {
			table[strings.TrimSpace(raw)] = strings.TrimSpace(canonical)
		}
		aliases[t] = table
	}

	return &Standardizer{aliases: aliases}, nil
}

// Empty returns a Standardizer with no aliases; every name passes through.
func Empty() *Standardizer {
	return &Standardizer{aliases: map[models.NodeType]map[string]string{}}
}

// Standardize resolves a raw surface form to its canonical name. Exact-match
// lookup against the alias table for that entity type; unmapped forms return
// trimmed but otherwise unchanged. Never returns empty for non-empty input.
func (s *Standardizer) Standardize(t models.NodeType, raw string) string {
	name := strings.TrimSpace(raw)
	if table, ok := s.aliases[t]; ok {
		if canonical, ok := table[name]; ok && canonical != "" {
			return canonical
		}
	}
	return name
}

// CoerceEntity validates one loose extractor entity against the closed node
// type set and canonicalizes its name. Returns false when the entity cannot
// be coerced (unknown type or empty name); callers drop such entities.
func (s *Standardizer) CoerceEntity(e models.ExtractedEntity) (models.NodeType, string, bool) {
	t, ok := coerceNodeType(e.Type)
	if !ok || strings.TrimSpace(e.Name) == "" {
		return "", "", false
	}
	return t, s.Standardize(t, e.Name), true
}

// CoerceRelation validates a loose relation type against the closed edge set.
func CoerceRelation(r models.ExtractedRelation) (models.EdgeType, bool) {
	t := models.EdgeType(strings.ToUpper(strings.TrimSpace(r.Type)))
	if !t.Valid() {
		return "", false
	}
	return t, true
}

// ParseEntityRef splits a "Type:raw name" relation endpoint reference.
func ParseEntityRef(ref string) (models.NodeType, string, bool) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	t, ok := coerceNodeType(parts[0])
	if !ok || strings.TrimSpace(parts[1]) == "" {
		return "", "", false
	}
	return t, strings.TrimSpace(parts[1]), true
}

func coerceNodeType(raw string) (models.NodeType, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for _, t := range models.AllNodeTypes() {
		if name == strings.ToLower(string(t)) {
			return t, true
		}
	}
	return "", false
}
