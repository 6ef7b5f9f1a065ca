package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raine/marktplatz-bot/internal/category"
	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

// PostgresCategorySource reads the category tree from an external Postgres
// category store. The table is expected to look like:
//
//	categories(id text, level int, parent_id text null, slug text,
//	           translations jsonb, position int)
type PostgresCategorySource struct {
	DB *sql.DB
}

// OpenPostgresCategorySource connects to dsn and verifies the connection.
func OpenPostgresCategorySource(ctx context.Context, dsn string) (*PostgresCategorySource, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open category store: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach category store: %w", err)
	}

	log.Info().Msg("connected to postgres category store")
	return &PostgresCategorySource{DB: db}, nil
}

// LoadCategories returns all category nodes ordered by level and position.
func (p *PostgresCategorySource) LoadCategories(ctx context.Context) ([]category.Node, error) {
	const q = `
select id, level, coalesce(parent_id, '') as parent_id, slug, translations
from categories
order by level, position, id`

	rows, err := p.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var nodes []category.Node
	for rows.Next() {
		var n category.Node
		var translations []byte
		if err := rows.Scan(&n.ID, &n.Level, &n.ParentID, &n.Slug, &translations); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if len(translations) > 0 {
			if err := json.Unmarshal(translations, &n.Translations); err != nil {
				return nil, fmt.Errorf("failed to decode translations for category %s: %w", n.ID, err)
			}
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return nodes, nil
}

// Close closes the connection pool.
func (p *PostgresCategorySource) Close() error {
	return p.DB.Close()
}
