package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"mfetl/internal/registry"
	"mfetl/pkg/platform/sentinel"
)

// Schema creates the snapshot tables. Only the latest snapshot is retained.
const Schema = `
CREATE TABLE IF NOT EXISTS registry_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	fetched_at  TIMESTAMPTZ NOT NULL,
	entry_count INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS registry_schemes (
	snapshot_id   BIGINT NOT NULL REFERENCES registry_snapshots(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	scheme_code   TEXT NOT NULL,
	scheme_name   TEXT NOT NULL,
	isin_growth   TEXT NOT NULL DEFAULT '',
	isin_reinvest TEXT NOT NULL DEFAULT '',
	nav           DOUBLE PRECISION,
	nav_date      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (snapshot_id, position)
);`

// Postgres persists the last good snapshot with a COPY bulk load.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed snapshot store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create registry schema: %w", err)
	}
	return nil
}

// Save replaces the stored snapshot in one transaction.
func (p *Postgres) Save(ctx context.Context, snap *registry.Snapshot) error {
	if snap == nil {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var snapshotID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO registry_snapshots (fetched_at, entry_count) VALUES ($1, $2) RETURNING id`,
		snap.FetchedAt().UTC(), snap.Len(),
	).Scan(&snapshotID)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("registry_schemes",
		"snapshot_id", "position", "scheme_code", "scheme_name",
		"isin_growth", "isin_reinvest", "nav", "nav_date",
	))
	if err != nil {
		return fmt.Errorf("prepare scheme copy: %w", err)
	}
	for i, q := range snap.Quotes() {
		var nav any
		if q.NAV != nil {
			nav = *q.NAV
		}
		if _, err := stmt.ExecContext(ctx, snapshotID, i, q.SchemeCode, q.SchemeName,
			q.ISINGrowth, q.ISINReinvest, nav, q.Date); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy scheme %s: %w", q.SchemeCode, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush scheme copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close scheme copy: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM registry_snapshots WHERE id <> $1`, snapshotID); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load returns the most recent snapshot.
func (p *Postgres) Load(ctx context.Context) (*registry.Snapshot, error) {
	var (
		snapshotID int64
		fetchedAt  time.Time
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, fetched_at FROM registry_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&snapshotID, &fetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find snapshot: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT scheme_code, scheme_name, isin_growth, isin_reinvest, nav, nav_date
		FROM registry_schemes
		WHERE snapshot_id = $1
		ORDER BY position`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("load schemes: %w", err)
	}
	defer rows.Close()

	var quotes []registry.NAVQuote
	for rows.Next() {
		var (
			q   registry.NAVQuote
			nav sql.NullFloat64
		)
		if err := rows.Scan(&q.SchemeCode, &q.SchemeName, &q.ISINGrowth, &q.ISINReinvest, &nav, &q.Date); err != nil {
			return nil, fmt.Errorf("scan scheme: %w", err)
		}
		if nav.Valid {
			v := nav.Float64
			q.NAV = &v
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemes: %w", err)
	}
	return registry.NewSnapshot(quotes, fetchedAt), nil
}
