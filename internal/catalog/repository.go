package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Repository interface {
	CreateConversion(ctx context.Context, c *Conversion) error
	GetConversion(ctx context.Context, id string) (*Conversion, error)
	ListConversions(ctx context.Context, limit int) ([]*Conversion, error)
	UpdateConversionStatus(ctx context.Context, id, status, filename, errorMsg string, duration time.Duration) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const conversionColumns = `id, url, status, filename, error, duration_ms, created_at, updated_at`

func (r *SQLiteRepository) CreateConversion(ctx context.Context, c *Conversion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversions (`+conversionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.URL, c.Status, nullString(c.Filename), nullString(c.Error), c.DurationMS,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	return err
}

// GetConversion returns nil, nil when no record has the given id.
func (r *SQLiteRepository) GetConversion(ctx context.Context, id string) (*Conversion, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversionColumns+` FROM conversions WHERE id = ?`, id)
	c, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *SQLiteRepository) ListConversions(ctx context.Context, limit int) ([]*Conversion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversionColumns+`
		FROM conversions ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversions := []*Conversion{}
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		conversions = append(conversions, c)
	}
	return conversions, rows.Err()
}

func (r *SQLiteRepository) UpdateConversionStatus(ctx context.Context, id, status, filename, errorMsg string, duration time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversions SET status = ?, filename = ?, error = ?, duration_ms = ?, updated_at = ?
		WHERE id = ?
	`, status, nullString(filename), nullString(errorMsg), duration.Milliseconds(), formatTime(time.Now()), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversion(row rowScanner) (*Conversion, error) {
	var c Conversion
	var filename, errMsg sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&c.ID, &c.URL, &c.Status, &filename, &errMsg, &c.DurationMS, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	c.Filename = filename.String
	c.Error = errMsg.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
