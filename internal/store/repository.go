// Package store persists project items and their cut lists in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

// Config keys.
const (
	KeyAuthToken   = "auth_token"
	KeyProjectName = "project_name"
)

type Repository interface {
	SaveItem(ctx context.Context, item media.Item) error
	GetItem(ctx context.Context, id string) (*media.Item, error)
	ListItems(ctx context.Context) ([]media.Item, error)
	DeleteItem(ctx context.Context, id string) error
	CountItems(ctx context.Context) (int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// timeFormat is fixed width so created_at sorts lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const itemColumns = `id, kind, name, path, base_id, cuts_applied, duration_us, width, height, frame_rate, state, error, created_at`

// SaveItem inserts or replaces item together with its full cut list.
// Transient readiness states are stored as not_ready.
func (r *SQLiteRepository) SaveItem(ctx context.Context, it media.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	state := it.State
	if state == media.StateResolvingBase || state == media.StatePropagatingMetadata {
		state = media.StateNotReady
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			cuts_applied = excluded.cuts_applied,
			duration_us = excluded.duration_us,
			width = excluded.width,
			height = excluded.height,
			frame_rate = excluded.frame_rate,
			state = excluded.state,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, it.ID, it.Kind.String(), it.Name, nullString(it.Path), nullString(it.BaseID),
		boolToInt(it.CutsApplied), it.Metadata.Duration.Microseconds(),
		it.Metadata.Width, it.Metadata.Height, it.Metadata.FrameRate,
		state.String(), nullString(it.Error), it.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("save item %s: %w", it.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM cuts WHERE item_id = ?", it.ID); err != nil {
		return fmt.Errorf("clear cuts of %s: %w", it.ID, err)
	}
	for i, c := range it.Cuts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cuts (item_id, position, start_us, end_us) VALUES (?, ?, ?, ?)
		`, it.ID, i, c.Start.Microseconds(), c.End.Microseconds())
		if err != nil {
			return fmt.Errorf("save cut %d of %s: %w", i, it.ID, err)
		}
	}

	return tx.Commit()
}

// GetItem returns nil, nil when id is not stored.
func (r *SQLiteRepository) GetItem(ctx context.Context, id string) (*media.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cuts, err := r.cutsByItem(ctx, "WHERE item_id = ?", id)
	if err != nil {
		return nil, err
	}
	it.Cuts = cuts[id]
	return &it, nil
}

// ListItems returns every stored item, oldest first.
func (r *SQLiteRepository) ListItems(ctx context.Context) ([]media.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []media.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cuts, err := r.cutsByItem(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Cuts = cuts[items[i].ID]
	}
	return items, nil
}

func (r *SQLiteRepository) cutsByItem(ctx context.Context, where string, args ...any) (map[string][]timeline.Interval, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT item_id, start_us, end_us FROM cuts `+where+` ORDER BY item_id, position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]timeline.Interval)
	for rows.Next() {
		var id string
		var start, end int64
		if err := rows.Scan(&id, &start, &end); err != nil {
			return nil, err
		}
		out[id] = append(out[id], timeline.Interval{
			Start: time.Duration(start) * time.Microsecond,
			End:   time.Duration(end) * time.Microsecond,
		})
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (media.Item, error) {
	var it media.Item
	var kind, state, createdAt string
	var path, baseID, errMsg sql.NullString
	var cutsApplied int
	var durationUS int64

	err := row.Scan(&it.ID, &kind, &it.Name, &path, &baseID, &cutsApplied, &durationUS,
		&it.Metadata.Width, &it.Metadata.Height, &it.Metadata.FrameRate, &state, &errMsg, &createdAt)
	if err != nil {
		return media.Item{}, err
	}

	if it.Kind, err = media.ParseKind(kind); err != nil {
		return media.Item{}, fmt.Errorf("item %s: %w", it.ID, err)
	}
	if it.State, err = media.ParseState(state); err != nil {
		return media.Item{}, fmt.Errorf("item %s: %w", it.ID, err)
	}
	it.Path = path.String
	it.BaseID = baseID.String
	it.Error = errMsg.String
	it.CutsApplied = cutsApplied == 1
	it.Metadata.Duration = time.Duration(durationUS) * time.Microsecond
	it.Dirty = it.State != media.StateReady
	it.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return it, nil
}

func (r *SQLiteRepository) DeleteItem(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) CountItems(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n)
	return n, err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
