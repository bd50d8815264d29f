package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
)

// SQLRepository persists exclusions, prospects and run records. It speaks
// SQLite by default and Postgres for postgres:// DSNs.
type SQLRepository struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
}

var (
	_ ports.ExclusionStore     = (*SQLRepository)(nil)
	_ ports.ProspectRepository = (*SQLRepository)(nil)
)

// Exclusion is one stored excluded identifier.
type Exclusion struct {
	ItemID  string
	AddedAt time.Time
}

// Open connects to dsn, picks the driver from its scheme and creates the
// tables when missing.
func Open(ctx context.Context, dsn string) (*SQLRepository, error) {
	driver, conn := resolveDriver(dsn)

	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite" && strings.Contains(conn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := NewSQLRepository(db, driver)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLRepository wires an existing sql.DB. driver is "sqlite" or "postgres".
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	placeholder := sq.Question
	if driver == "postgres" {
		placeholder = sq.Dollar
	}
	return &SQLRepository{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:    time.Now,
	}
}

func resolveDriver(dsn string) (string, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	case dsn == "" || dsn == ":memory:":
		return "sqlite", "file:prospects?mode=memory&cache=shared"
	default:
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	}
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// Migrate creates the tables used by the pipeline.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS exclusions (
			item_id TEXT PRIMARY KEY,
			added_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prospects (
			item_id TEXT PRIMARY KEY,
			service_type TEXT NOT NULL,
			partition_name TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT,
			author TEXT,
			composite DOUBLE PRECISION NOT NULL,
			local_score DOUBLE PRECISION NOT NULL,
			tier TEXT NOT NULL,
			escalation TEXT NOT NULL,
			indicators TEXT NOT NULL,
			posted_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prospects_service ON prospects(service_type, composite DESC)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			service_type TEXT NOT NULL,
			started_at BIGINT NOT NULL,
			finished_at BIGINT NOT NULL,
			stats_json TEXT NOT NULL,
			fingerprint TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// LoadAll returns every excluded identifier.
func (r *SQLRepository) LoadAll(ctx context.Context) (map[string]struct{}, error) {
	query, args, err := r.sb.Select("item_id").From("exclusions").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build exclusions query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()

	result := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		result[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// Contains checks a single identifier.
func (r *SQLRepository) Contains(ctx context.Context, id string) (bool, error) {
	query, args, err := r.sb.Select("1").From("exclusions").Where(sq.Eq{"item_id": id}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build contains query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query exclusion %s: %w", id, err)
	}
	return true, nil
}

// Add records an identifier; adding twice is a no-op.
func (r *SQLRepository) Add(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("add exclusion: empty identifier")
	}
	query, args, err := r.sb.Insert("exclusions").
		Columns("item_id", "added_at").
		Values(id, r.now().UnixMilli()).
		Suffix("ON CONFLICT (item_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert exclusion: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert exclusion %s: %w", id, err)
	}
	return nil
}

// Remove deletes an identifier; removing a missing one is a no-op.
func (r *SQLRepository) Remove(ctx context.Context, id string) error {
	query, args, err := r.sb.Delete("exclusions").Where(sq.Eq{"item_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete exclusion: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete exclusion %s: %w", id, err)
	}
	return nil
}

// ListExclusions returns stored exclusions, oldest first.
func (r *SQLRepository) ListExclusions(ctx context.Context) ([]Exclusion, error) {
	query, args, err := r.sb.Select("item_id", "added_at").From("exclusions").OrderBy("added_at", "item_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list exclusions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()

	var out []Exclusion
	for rows.Next() {
		var (
			e       Exclusion
			addedAt int64
		)
		if err := rows.Scan(&e.ItemID, &addedAt); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		e.AddedAt = time.UnixMilli(addedAt).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// UpsertProspects stores qualified items, replacing earlier scores.
func (r *SQLRepository) UpsertProspects(ctx context.Context, serviceType string, items []domain.ScoredItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prospects tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updatedAt := r.now().UnixMilli()
	for _, item := range items {
		indicators, err := json.Marshal(item.Indicators)
		if err != nil {
			return fmt.Errorf("encode indicators %s: %w", item.ID(), err)
		}
		query, args, err := r.sb.Insert("prospects").
			Columns("item_id", "service_type", "partition_name", "title", "url", "author",
				"composite", "local_score", "tier", "escalation", "indicators", "posted_at", "updated_at").
			Values(item.ID(), serviceType, item.Item.Partition, item.Item.Title, item.Item.URL, item.Item.Author,
				item.Composite, item.LocalScore, string(item.Tier), string(item.Escalation), string(indicators),
				item.Item.CreatedAt.UnixMilli(), updatedAt).
			Suffix(`ON CONFLICT (item_id) DO UPDATE SET
				service_type = excluded.service_type,
				composite = excluded.composite,
				local_score = excluded.local_score,
				tier = excluded.tier,
				escalation = excluded.escalation,
				indicators = excluded.indicators,
				updated_at = excluded.updated_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert prospect: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert prospect %s: %w", item.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prospects: %w", err)
	}
	return nil
}

// StoredProspect is a row of the prospects table.
type StoredProspect struct {
	ItemID     string
	Title      string
	Composite  float64
	Tier       domain.Tier
	Escalation domain.EscalationState
	UpdatedAt  time.Time
}

// TopProspects lists the best stored prospects of a service type.
func (r *SQLRepository) TopProspects(ctx context.Context, serviceType string, limit int) ([]StoredProspect, error) {
	builder := r.sb.Select("item_id", "title", "composite", "tier", "escalation", "updated_at").
		From("prospects").
		Where(sq.Eq{"service_type": serviceType}).
		OrderBy("composite DESC", "item_id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build top prospects: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prospects: %w", err)
	}
	defer rows.Close()

	var out []StoredProspect
	for rows.Next() {
		var (
			p         StoredProspect
			tier, esc string
			updatedAt int64
		)
		if err := rows.Scan(&p.ItemID, &p.Title, &p.Composite, &tier, &esc, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan prospect: %w", err)
		}
		p.Tier = domain.Tier(tier)
		p.Escalation = domain.EscalationState(esc)
		p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SaveRun records a run summary.
func (r *SQLRepository) SaveRun(ctx context.Context, run domain.RunRecord) error {
	query, args, err := r.sb.Insert("runs").
		Columns("run_id", "service_type", "started_at", "finished_at", "stats_json", "fingerprint").
		Values(run.RunID, run.ServiceType, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), string(run.StatsJSON), run.Fingerprint).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert run: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun loads a run summary by identifier.
func (r *SQLRepository) GetRun(ctx context.Context, runID string) (domain.RunRecord, error) {
	query, args, err := r.sb.Select("run_id", "service_type", "started_at", "finished_at", "stats_json", "fingerprint").
		From("runs").
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("build get run: %w", err)
	}

	var (
		rec               domain.RunRecord
		started, finished int64
		stats             string
	)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&rec.RunID, &rec.ServiceType, &started, &finished, &stats, &rec.Fingerprint); err != nil {
		return domain.RunRecord{}, fmt.Errorf("query run %s: %w", runID, err)
	}
	rec.StartedAt = time.UnixMilli(started).UTC()
	rec.FinishedAt = time.UnixMilli(finished).UTC()
	rec.StatsJSON = []byte(stats)
	return rec, nil
}
