package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raine/marktplatz-bot/internal/analysis"
	"github.com/raine/marktplatz-bot/internal/category"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// StoredItem is a fused listing draft as persisted.
type StoredItem struct {
	ID             string
	Title          string
	Description    string
	Price          *float64
	CategoryID     string // empty when no category resolved
	CategoryStatus string
	ImageCount     int
	FailedImages   int
	Analysis       analysis.AnalysisResult
	CreatedAt      time.Time
}

// SQLiteStore persists vision cache entries, the category tree and items.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions (only works once the file exists)
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("dbPath", dbPath).Msg("failed to restrict database permissions")
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	visionCacheQuery := `
	CREATE TABLE IF NOT EXISTS vision_cache (
		image_hash TEXT PRIMARY KEY,
		analysis TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(visionCacheQuery); err != nil {
		return fmt.Errorf("failed to create vision_cache table: %w", err)
	}

	categoriesQuery := `
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		level INTEGER NOT NULL,
		parent_id TEXT,
		slug TEXT NOT NULL,
		translations TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(categoriesQuery); err != nil {
		return fmt.Errorf("failed to create categories table: %w", err)
	}

	itemsQuery := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		price REAL,
		category_id TEXT,
		category_status TEXT NOT NULL,
		image_count INTEGER NOT NULL,
		failed_images INTEGER NOT NULL,
		analysis TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(itemsQuery); err != nil {
		return fmt.Errorf("failed to create items table: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetVisionCache retrieves a cached vision analysis by image hash.
// Returns nil, nil if no cache entry exists.
func (s *SQLiteStore) GetVisionCache(imageHash string) (*analysis.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow("SELECT analysis FROM vision_cache WHERE image_hash = ?", imageHash).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vision cache: %w", err)
	}

	var a analysis.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("failed to decode cached analysis: %w", err)
	}
	return &a, nil
}

// SetVisionCache stores a vision analysis in the cache.
func (s *SQLiteStore) SetVisionCache(imageHash string, a *analysis.AnalysisResult) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO vision_cache (image_hash, analysis)
		VALUES (?, ?)
		ON CONFLICT(image_hash) DO UPDATE SET
			analysis = excluded.analysis,
			created_at = CURRENT_TIMESTAMP
	`, imageHash, string(raw))
	if err != nil {
		return fmt.Errorf("failed to cache vision result: %w", err)
	}
	return nil
}

// ReplaceCategories swaps the stored category tree for nodes in one transaction.
// Node order is kept so sibling order survives a round trip.
func (s *SQLiteStore) ReplaceCategories(nodes []category.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM categories"); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO categories (id, position, level, parent_id, slug, translations)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare category insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range nodes {
		translations, err := json.Marshal(n.Translations)
		if err != nil {
			return fmt.Errorf("failed to encode translations for category %s: %w", n.ID, err)
		}
		if _, err := stmt.Exec(n.ID, i, n.Level, nullString(n.ParentID), n.Slug, string(translations)); err != nil {
			return fmt.Errorf("failed to insert category %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit categories: %w", err)
	}
	return nil
}

// LoadCategories returns all stored category nodes in insertion order.
func (s *SQLiteStore) LoadCategories(ctx context.Context) ([]category.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, level, parent_id, slug, translations FROM categories ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var nodes []category.Node
	for rows.Next() {
		var n category.Node
		var parentID sql.NullString
		var translations string
		if err := rows.Scan(&n.ID, &n.Level, &parentID, &n.Slug, &translations); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		n.ParentID = parentID.String
		if err := json.Unmarshal([]byte(translations), &n.Translations); err != nil {
			return nil, fmt.Errorf("failed to decode translations for category %s: %w", n.ID, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return nodes, nil
}

// SaveItem stores an item and returns its generated id.
func (s *SQLiteStore) SaveItem(item *StoredItem) (string, error) {
	raw, err := json.Marshal(item.Analysis)
	if err != nil {
		return "", fmt.Errorf("failed to encode analysis: %w", err)
	}

	id := uuid.NewString()
	createdAt := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO items (id, title, description, price, category_id, category_status, image_count, failed_images, analysis, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, item.Title, item.Description, nullFloat(item.Price), nullString(item.CategoryID),
		item.CategoryStatus, item.ImageCount, item.FailedImages, string(raw), createdAt)
	if err != nil {
		return "", fmt.Errorf("failed to save item: %w", err)
	}

	item.ID = id
	item.CreatedAt = createdAt
	return id, nil
}

// GetItem returns the item with id, or nil, nil if it does not exist.
func (s *SQLiteStore) GetItem(id string) (*StoredItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var item StoredItem
	var price sql.NullFloat64
	var categoryID sql.NullString
	var raw string
	err := s.db.QueryRow(`
		SELECT id, title, description, price, category_id, category_status, image_count, failed_images, analysis, created_at
		FROM items WHERE id = ?
	`, id).Scan(&item.ID, &item.Title, &item.Description, &price, &categoryID,
		&item.CategoryStatus, &item.ImageCount, &item.FailedImages, &raw, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}

	if price.Valid {
		item.Price = &price.Float64
	}
	item.CategoryID = categoryID.String
	if err := json.Unmarshal([]byte(raw), &item.Analysis); err != nil {
		return nil, fmt.Errorf("failed to decode item analysis: %w", err)
	}
	return &item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
