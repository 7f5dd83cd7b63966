package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Backend wraps the Neo4j driver for the knowledge graph store. Connection
// endpoint and credentials are deployment configuration; nothing here knows
// about TLS schemes beyond what the URI carries.
type Backend struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewBackend creates a Neo4j backend and verifies connectivity up front,
// so a misconfigured worker fails at startup instead of on its first job.
func NewBackend(ctx context.Context, uri, username, password, database string) (*Backend, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}

	return &Backend{
		driver:   driver,
		database: database,
	}, nil
}

// Session opens a new session against the configured database.
func (b *Backend) Session(ctx context.Context) neo4j.SessionWithContext {
	return b.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: b.database})
}

// Counts returns total node and relationship counts, for the operator
// status surface.
func (b *Backend) Counts(ctx context.Context) (nodes, edges int64, err error) {
	session := b.Session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (n) OPTIONAL MATCH ()-[r]->() RETURN count(DISTINCT n) AS nodes, count(DISTINCT r) AS edges`, nil)
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("count graph: %w", err)
	}

	record := result.(*neo4j.Record)
	if v, ok := record.Get("nodes"); ok {
		nodes, _ = v.(int64)
	}
	if v, ok := record.Get("edges"); ok {
		edges, _ = v.(int64)
	}
	return nodes, edges, nil
}

// Close closes the underlying driver.
func (b *Backend) Close(ctx context.Context) error {
	return b.driver.Close(ctx)
}
