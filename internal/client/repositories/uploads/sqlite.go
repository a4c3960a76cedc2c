package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/dbx"
	"github.com/dmitrijs2005/remotestorage/internal/remotestorage"
)

// SQLiteRepository implements remotestorage.UploadIndex over dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

var _ remotestorage.UploadIndex = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, m remotestorage.UploadedMeta) error {

	query := `INSERT INTO uploads (upload_id, purpose, context, name, mime, size, storage_key, link, uploaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(upload_id) DO UPDATE SET purpose = excluded.purpose,
				context = excluded.context,
				name = excluded.name,
				mime = excluded.mime,
				size = excluded.size,
				storage_key = excluded.storage_key,
				link = excluded.link,
				uploaded_at = excluded.uploaded_at
	`
	_, err := r.db.ExecContext(ctx, query, m.UploadID, m.Target.Purpose, m.Target.Context, m.Name, m.Mime,
		m.Size, m.Key, m.Link, m.UploadedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert upload: %w", err)
	}

	return nil
}

const selectColumns = `upload_id, purpose, context, name, mime, size, storage_key, link, uploaded_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMeta(s scanner) (remotestorage.UploadedMeta, error) {
	var (
		m  remotestorage.UploadedMeta
		at int64
	)
	err := s.Scan(&m.UploadID, &m.Target.Purpose, &m.Target.Context, &m.Name, &m.Mime, &m.Size, &m.Key, &m.Link, &at)
	if err != nil {
		return remotestorage.UploadedMeta{}, err
	}
	m.UploadedAt = time.Unix(0, at)
	return m, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, uploadID string) (remotestorage.UploadedMeta, bool, error) {

	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM uploads WHERE upload_id = ?`, uploadID)

	m, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return remotestorage.UploadedMeta{}, false, nil
	}
	if err != nil {
		return remotestorage.UploadedMeta{}, false, fmt.Errorf("failed to select upload: %w", err)
	}

	return m, true, nil
}

// ListByTarget returns the uploads of target, newest first.
func (r *SQLiteRepository) ListByTarget(ctx context.Context, target remotestorage.Target) ([]remotestorage.UploadedMeta, error) {

	query := `SELECT ` + selectColumns + ` FROM uploads WHERE purpose = ? AND context = ? ORDER BY uploaded_at DESC`
	rows, err := r.db.QueryContext(ctx, query, target.Purpose, target.Context)
	if err != nil {
		return nil, fmt.Errorf("error selecting uploads: %w", err)
	}
	defer rows.Close()

	var result []remotestorage.UploadedMeta

	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Purge deletes uploads recorded before the bound and reports how many went.
func Purge(ctx context.Context, db *sql.DB, before time.Time) (int64, error) {
	var removed int64

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE uploaded_at < ?`, before.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to purge uploads: %w", err)
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}
