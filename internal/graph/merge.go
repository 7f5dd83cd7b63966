package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/newsgraph/newsgraph-go/internal/models"
)

// Statement is one parameterized Cypher statement of a merge transaction.
type Statement struct {
	Query  string
	Params map[string]any
}

// Engine executes idempotent create-or-match upserts for the node/edge set
// of one job inside a single write transaction. Retry policy lives with
// the dispatcher's controller; the engine itself never retries.
type Engine struct {
	backend *Backend
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates a merge engine. timeout bounds the graph transaction
// server-side in addition to the dispatcher's context deadline.
func NewEngine(backend *Backend, timeout time.Duration) *Engine {
	return &Engine{
		backend: backend,
		timeout: timeout,
		logger:  slog.Default().With("component", "graph"),
		now:     time.Now,
	}
}

// MergeGraph applies every node and edge merge of one GraphSet inside one
// atomic transaction. Either the whole entity graph for the job becomes
// visible or none of it does.
//
// ExecuteWrite is a driver-managed transaction function: the driver may
// transparently replay it on transient cluster errors. That replay is safe
// because every statement is an idempotent upsert; job-level retry still
// belongs to the retry controller alone.
func (e *Engine) MergeGraph(ctx context.Context, set models.GraphSet) error {
	stmts, err := BuildStatements(set, e.now().UTC())
	if err != nil {
		return fmt.Errorf("build merge statements: %w", err)
	}
	if len(stmts) == 0 {
		return nil
	}

	session := e.backend.Session(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for i, stmt := range stmts {
			if _, err := tx.Run(ctx, stmt.Query, stmt.Params); err != nil {
				return nil, fmt.Errorf("merge statement %d: %w", i, err)
			}
		}
		return nil, nil
	}, neo4j.WithTxTimeout(e.timeout))
	if err != nil {
		return fmt.Errorf("merge transaction: %w", err)
	}

	e.logger.Debug("graph set merged", "nodes", len(set.Nodes), "edges", len(set.Edges))
	return nil
}

// BuildStatements turns a GraphSet into the ordered statement list of one
// merge transaction: all nodes first, then all edges, so edge MATCH
// clauses find their endpoints within the same transaction.
func BuildStatements(set models.GraphSet, now time.Time) ([]Statement, error) {
	stmts := make([]Statement, 0, len(set.Nodes)+len(set.Edges))
	ts := now.Format(time.RFC3339)

	for _, node := range set.Nodes {
		if !node.Type.Valid() {
			return nil, fmt.Errorf("unknown node type: %s", node.Type)
		}
		if node.ID == "" {
			return nil, fmt.Errorf("node of type %s has no id", node.Type)
		}

		createProps := map[string]any{
			"name":       node.Name,
			"created_at": ts,
			"updated_at": ts,
		}
		for key, value := range node.Attrs {
			// Extractor attributes never override the derived identity or
			// the bookkeeping fields.
			if reservedNodeProp(key) {
				continue
			}
			createProps[key] = storable(value)
		}
		// Bounded refreshable subset: display name and updated_at only.
		// created_at and identity fields are never touched on match.
		matchProps := map[string]any{
			"name":       node.Name,
			"updated_at": ts,
		}

		builder := NewCypherBuilder()
		query, err := builder.BuildMergeNode(string(node.Type), node.ID, createProps, matchProps)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, Statement{Query: query, Params: builder.Params()})
	}

	for _, edge := range set.Edges {
		if !edge.Type.Valid() {
			return nil, fmt.Errorf("unknown edge type: %s", edge.Type)
		}
		if !edge.FromType.Valid() || !edge.ToType.Valid() {
			return nil, fmt.Errorf("edge %s has invalid endpoint types", edge.Type)
		}

		keyProps := make(map[string]any)
		createProps := map[string]any{"created_at": ts}
		matchProps := map[string]any{"updated_at": ts}

		keyed := mergeKeyProps(edge.Type)
		for key, value := range edge.Attrs {
			if contains(keyed, key) || reservedEdgeProp(key) {
				continue
			}
			createProps[key] = storable(value)
		}
		for _, key := range keyed {
			// Merge-key attributes go into the MERGE pattern. A missing
			// value becomes the empty string: MERGE rejects null pattern
			// properties, and identical missing-attr observations should
			// still collapse onto one edge.
			value, ok := edge.Attrs[key]
			if !ok || value == nil {
				value = ""
			}
			keyProps[key] = storable(value)
		}

		builder := NewCypherBuilder()
		query, err := builder.BuildMergeEdge(
			string(edge.FromType), edge.FromID,
			string(edge.ToType), edge.ToID,
			string(edge.Type),
			keyProps, createProps, matchProps,
		)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, Statement{Query: query, Params: builder.Params()})
	}

	return stmts, nil
}

// mergeKeyProps names the attributes that are part of an edge type's merge
// key beyond (type, from, to). CITES carries one observation per period;
// collapsing distinct periods into one edge would destroy temporal data.
// The switch is exhaustive over the closed edge type set.
func mergeKeyProps(t models.EdgeType) []string {
	switch t {
	case models.EdgeCites:
		return []string{"period"}
	case models.EdgeAnnounced, models.EdgeAffects, models.EdgeBelongsTo,
		models.EdgeMentions, models.EdgeReportsOn, models.EdgeCovers:
		return nil
	}
	return nil
}

// reservedNodeProp reports whether key is owned by the merge engine on
// nodes: the derived id and the bookkeeping fields.
func reservedNodeProp(key string) bool {
	switch key {
	case "id", "name", "created_at", "updated_at":
		return true
	}
	return false
}

// reservedEdgeProp reports whether key is owned by the merge engine on
// edges.
func reservedEdgeProp(key string) bool {
	switch key {
	case "created_at", "updated_at":
		return true
	}
	return false
}

// storable coerces extractor attribute values into Neo4j-storable
// primitives.
func storable(value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case bool, string, int, int64, float64:
		return v
	case float32:
		return float64(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
