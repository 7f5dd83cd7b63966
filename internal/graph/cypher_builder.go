package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// CypherBuilder builds parameterized MERGE statements. Every value travels
// as a parameter; identifiers (labels, property keys) are validated against
// a strict pattern, so extractor-supplied text can never inject Cypher.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a statement builder.
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{params: make(map[string]any)}
}

// AddParam registers a parameter value and returns its placeholder.
func (b *CypherBuilder) AddParam(value any) string {
	name := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[name] = value
	return "$" + name
}

// Params returns all parameters registered so far.
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// BuildMergeNode emits a create-or-match upsert keyed by the derived node
// id. createProps are set only when the node is first created (created_at
// and identity fields live here and are never overwritten on a later
// match); matchProps are the bounded refreshable subset applied on match.
func (b *CypherBuilder) BuildMergeNode(label, id string, createProps, matchProps map[string]any) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s", label)
	}

	idParam := b.AddParam(id)

	createClause, err := b.setClause("n", createProps)
	if err != nil {
		return "", err
	}
	matchClause, err := b.setClause("n", matchProps)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE (n:%s {id: %s})", label, idParam)
	if createClause != "" {
		sb.WriteString(" ON CREATE SET " + createClause)
	}
	if matchClause != "" {
		sb.WriteString(" ON MATCH SET " + matchClause)
	}
	sb.WriteString(" RETURN n.id AS id")
	return sb.String(), nil
}

// BuildMergeEdge emits a create-or-match upsert for a directed, typed
// relationship. keyProps become part of the MERGE pattern itself, so an
// edge type whose observations are distinguished by an attribute (CITES by
// period) keeps distinct observations as distinct edges, while re-merging
// an identical observation matches the existing one.
func (b *CypherBuilder) BuildMergeEdge(
	fromLabel, fromID, toLabel, toID, edgeLabel string,
	keyProps, createProps, matchProps map[string]any,
) (string, error) {
	for _, label := range []string{fromLabel, toLabel, edgeLabel} {
		if !isValidIdentifier(label) {
			return "", fmt.Errorf("invalid label: %s", label)
		}
	}

	fromParam := b.AddParam(fromID)
	toParam := b.AddParam(toID)

	var pattern string
	if len(keyProps) > 0 {
		pairs := make([]string, 0, len(keyProps))
		for _, key := range sortedKeys(keyProps) {
			if !isValidIdentifier(key) {
				return "", fmt.Errorf("invalid edge key property: %s", key)
			}
			pairs = append(pairs, fmt.Sprintf("%s: %s", key, b.AddParam(keyProps[key])))
		}
		pattern = fmt.Sprintf("(from)-[r:%s {%s}]->(to)", edgeLabel, strings.Join(pairs, ", "))
	} else {
		pattern = fmt.Sprintf("(from)-[r:%s]->(to)", edgeLabel)
	}

	createClause, err := b.setClause("r", createProps)
	if err != nil {
		return "", err
	}
	matchClause, err := b.setClause("r", matchProps)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MATCH (from:%s {id: %s}) MATCH (to:%s {id: %s}) MERGE %s",
		fromLabel, fromParam, toLabel, toParam, pattern)
	if createClause != "" {
		sb.WriteString(" ON CREATE SET " + createClause)
	}
	if matchClause != "" {
		sb.WriteString(" ON MATCH SET " + matchClause)
	}
	sb.WriteString(" RETURN from.id AS from_id, to.id AS to_id")
	return sb.String(), nil
}

func (b *CypherBuilder) setClause(alias string, props map[string]any) (string, error) {
	if len(props) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(props))
	for _, key := range sortedKeys(props) {
		if !isValidIdentifier(key) {
			return "", fmt.Errorf("invalid property key: %s", key)
		}
		clauses = append(clauses, fmt.Sprintf("%s.%s = %s", alias, key, b.AddParam(props[key])))
	}
	return strings.Join(clauses, ", "), nil
}

// sortedKeys keeps statement text deterministic for identical input.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier reports whether s is safe as a Cypher label or
// property key.
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
