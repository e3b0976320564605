// Package store persists analysis records and their per-page results in
// SQLite. Records are created when a run starts, mutated exactly once on
// completion or failure, and never deleted.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/model"
)

var ErrRecordNotFound = errors.New("analysis record not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analyses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  url TEXT NOT NULL,
  status TEXT NOT NULL,
  product_count INTEGER,
  screenshot_ref TEXT,
  detail TEXT,
  error TEXT,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses(user_id, created_at);

CREATE TABLE IF NOT EXISTS analysis_pages (
  id TEXT PRIMARY KEY,
  analysis_id TEXT NOT NULL REFERENCES analyses(id),
  position INTEGER NOT NULL,
  url TEXT NOT NULL,
  title TEXT,
  product_count INTEGER NOT NULL,
  categories TEXT,
  confidence REAL NOT NULL,
  evidence TEXT,
  page_type TEXT,
  status TEXT NOT NULL,
  error TEXT
);

CREATE INDEX IF NOT EXISTS idx_pages_analysis ON analysis_pages(analysis_id, position);
`

// Store is the SQLite-backed record database. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for tests.
func Open(path string, logger logging.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: ensure dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// Serialize writers; modernc's driver plus WAL handles concurrent use
	// best with a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		logger.Warn("store: pragmas", logging.Field{Key: "error", Value: err.Error()})
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an existing database handle; the schema must already be
// applied.
func NewWithDB(db *sql.DB, logger logging.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "store"}),
	}
}

// Create inserts a pending record for a starting run.
func (s *Store) Create(ctx context.Context, userID, url string) (*model.AnalysisRecord, error) {
	now := time.Now().UTC()
	rec := &model.AnalysisRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		URL:       url,
		Status:    model.RecordPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, user_id, url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.URL, string(rec.Status), now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert record: %w", err)
	}
	return rec, nil
}

// MarkAnalyzing flips a pending record to analyzing.
func (s *Store) MarkAnalyzing(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, model.RecordAnalyzing, "")
}

// Fail marks a record failed with a user-facing error message.
func (s *Store) Fail(ctx context.Context, id, errMsg string) error {
	return s.setStatus(ctx, id, model.RecordFailed, errMsg)
}

func (s *Store) setStatus(ctx context.Context, id string, status model.RecordStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), nullable(errMsg), time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Complete stores the final result: status, total, serialized detail blob and
// the flattened per-page rows, all in one transaction.
func (s *Store) Complete(ctx context.Context, id string, result *model.AnalysisResult, screenshotRef string) error {
	detail, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("store: marshal result: %w", err)
	}

	status := model.RecordCompleted
	errMsg := ""
	if result.Status == model.ResultFailed {
		status = model.RecordFailed
		errMsg = "no page could be analyzed"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			s.logger.Warn("store: tx rollback failed", logging.Field{Key: "error", Value: rerr.Error()})
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE analyses
		 SET status = ?, product_count = ?, screenshot_ref = ?, detail = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		string(status), result.TotalProducts, nullable(screenshotRef), string(detail),
		nullable(errMsg), time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("store: update record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO analysis_pages
		 (id, analysis_id, position, url, title, product_count, categories, confidence, evidence, page_type, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range result.PageResults {
		categories, _ := json.Marshal(p.Categories)
		evidence, _ := json.Marshal(p.Evidence)
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), id, i, p.URL, p.Title, p.ProductCount,
			string(categories), p.Confidence, string(evidence), p.PageType,
			string(p.Status), nullable(p.Error),
		); err != nil {
			return fmt.Errorf("store: insert page row: %w", err)
		}
	}

	return tx.Commit()
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, url, status, product_count, screenshot_ref, detail, error, created_at, updated_at
		 FROM analyses WHERE id = ? LIMIT 1`, id)
	return scanRecord(row)
}

// ListByUser returns a user's records, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]model.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, url, status, product_count, screenshot_ref, detail, error, created_at, updated_at
		 FROM analyses WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Pages returns the flattened per-page rows of a completed analysis in run
// order.
func (s *Store) Pages(ctx context.Context, analysisID string) ([]model.PageResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, title, product_count, categories, confidence, evidence, page_type, status, error
		 FROM analysis_pages WHERE analysis_id = ?
		 ORDER BY position ASC`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PageResult
	for rows.Next() {
		var p model.PageResult
		var title, pageType, categories, evidence, status, errMsg sql.NullString
		if err := rows.Scan(&p.URL, &title, &p.ProductCount, &categories, &p.Confidence,
			&evidence, &pageType, &status, &errMsg); err != nil {
			return nil, err
		}
		p.Title = title.String
		p.PageType = pageType.String
		p.Status = model.PageStatus(status.String)
		p.Error = errMsg.String
		if categories.Valid {
			_ = json.Unmarshal([]byte(categories.String), &p.Categories)
		}
		if evidence.Valid {
			_ = json.Unmarshal([]byte(evidence.String), &p.Evidence)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.AnalysisRecord, error) {
	var (
		rec                         model.AnalysisRecord
		status                      string
		productCount                sql.NullInt64
		screenshotRef, detail, errS sql.NullString
		createdAt, updatedAt        int64
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.URL, &status, &productCount,
		&screenshotRef, &detail, &errS, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	rec.Status = model.RecordStatus(status)
	if productCount.Valid {
		v := int(productCount.Int64)
		rec.ProductCount = &v
	}
	rec.ScreenshotRef = screenshotRef.String
	rec.Detail = detail.String
	rec.Error = errS.String
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
