package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iconidentify/threadgrabba/internal/domain"
)

// SQLiteProcessedURLRepository implements ProcessedURLRepository on sqlite.
type SQLiteProcessedURLRepository struct {
	db *DB
}

// NewSQLiteProcessedURLRepository creates a processed-URL repository.
func NewSQLiteProcessedURLRepository(db *DB) *SQLiteProcessedURLRepository {
	return &SQLiteProcessedURLRepository{db: db}
}

// FindProcessedURL returns the record for url, or nil when absent.
func (r *SQLiteProcessedURLRepository) FindProcessedURL(ctx context.Context, url string) (*domain.ProcessedURLRecord, error) {
	var (
		rec         domain.ProcessedURLRecord
		processedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT url, kind, title, processed_at FROM processed_urls WHERE url = ?`, url,
	).Scan(&rec.URL, &rec.Kind, &rec.Title, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find processed url: %w", err)
	}

	if rec.ProcessedAt, err = parseTime(processedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordProcessedURL stores rec once; later records for the same URL are ignored.
func (r *SQLiteProcessedURLRepository) RecordProcessedURL(ctx context.Context, rec *domain.ProcessedURLRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_urls (url, kind, title, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING
	`, rec.URL, rec.Kind, rec.Title, formatTime(rec.ProcessedAt))
	if err != nil {
		return fmt.Errorf("record processed url: %w", err)
	}
	return nil
}
