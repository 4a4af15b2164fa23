package loader

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ratingcore/internal/constants"
	"ratingcore/internal/prefix"
	"ratingcore/pkg/metrics"
)

const dbPostgres = "postgres"

type PostgresPrefixRepository struct {
	db          *sql.DB
	serviceName string
}

func NewPostgresPrefixRepository(db *sql.DB, serviceName string) *PostgresPrefixRepository {
	return &PostgresPrefixRepository{db: db, serviceName: serviceName}
}

func (r *PostgresPrefixRepository) LoadPrefixEntries(ctx context.Context, source string) (entries []prefix.Entry, err error) {
	start := time.Now()
	defer func() {
		r.observe("load_prefix_entries", start, err)
	}()

	query := `
		SELECT keys, value, attributes
		FROM ` + constants.PostgresPrefixTable + `
		WHERE cache_name = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query prefix entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e prefix.Entry
		if err := rows.Scan(
			pq.Array(&e.Keys),
			&e.Value,
			pq.Array(&e.Attributes),
		); err != nil {
			return nil, fmt.Errorf("failed to scan prefix entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

// ReplacePrefixEntries swaps the whole data set of source in one
// transaction. Sequence numbers follow the order of entries.
func (r *PostgresPrefixRepository) ReplacePrefixEntries(ctx context.Context, source string, entries []prefix.Entry) (err error) {
	start := time.Now()
	defer func() {
		r.observe("replace_prefix_entries", start, err)
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM `+constants.PostgresPrefixTable+` WHERE cache_name = $1`, source); err != nil {
		return fmt.Errorf("failed to delete prefix entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+constants.PostgresPrefixTable+` (cache_name, keys, value, attributes)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		attrs := e.Attributes
		if attrs == nil {
			attrs = []string{}
		}
		if _, err = stmt.ExecContext(ctx, source, pq.Array(e.Keys), e.Value, pq.Array(attrs)); err != nil {
			return fmt.Errorf("failed to insert prefix entry #%d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prefix entries: %w", err)
	}
	return nil
}

func (r *PostgresPrefixRepository) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery(r.serviceName, dbPostgres, operation, status)
	metrics.ObserveDatabaseQueryDuration(r.serviceName, dbPostgres, operation, time.Since(start))
}
