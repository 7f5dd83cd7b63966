package articles

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/newsgraph/newsgraph-go/internal/models"
)

// Reader is the read interface to the external article store.
type Reader interface {
	GetArticle(ctx context.Context, ref string) (*models.Article, error)
}

// SQLReader reads published articles from the publishing database. The
// connection is read-only by convention and is always separate from the
// queue's and the graph's: the pipeline must never participate in the
// article-publishing transaction.
type SQLReader struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// OpenReader connects to the article store. driver is "sqlite3" or "pgx".
func OpenReader(driver, dsn string) (*SQLReader, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect article store: %w", err)
	}
	return &SQLReader{
		db:     db,
		logger: slog.Default().With("component", "articles"),
	}, nil
}

// GetArticle loads one published article by its reference.
func (r *SQLReader) GetArticle(ctx context.Context, ref string) (*models.Article, error) {
	var article models.Article
	err := r.db.GetContext(ctx, &article, r.db.Rebind(`
		SELECT id, source, title, content, published_at
		FROM news
		WHERE id = ?`), ref)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("article not found: %s", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read article %s: %w", ref, err)
	}
	return &article, nil
}

// Close closes the article store connection.
func (r *SQLReader) Close() error {
	return r.db.Close()
}
