package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spigell/job-radar/internal/jobs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

var (
	// ErrIndexUnreadable means the seen index could not be loaded. Running
	// without it would re-report every posting, so callers treat it as fatal.
	ErrIndexUnreadable = errors.New("seen index unreadable")
	ErrNoCycles        = errors.New("no cycles recorded")
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS seen_jobs (
		id TEXT PRIMARY KEY,
		first_seen_cycle TEXT NOT NULL,
		first_seen_at BIGINT NOT NULL,
		title TEXT NOT NULL,
		company TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		started_at BIGINT NOT NULL,
		ended_at BIGINT NOT NULL,
		record TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS cycles_started_at ON cycles (started_at)`,
}

// SQLStore persists the seen index and the append-only cycle log. Seen
// lookups are served from memory.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger

	mu   sync.RWMutex
	seen map[string]string
}

// Open connects with the driver matching the dialect and prepares the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, logger *zap.Logger) (*SQLStore, error) {
	driver := "sqlite"
	switch dialect {
	case SQLite:
	case Postgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported store dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == SQLite {
		// One writer keeps sqlite from returning SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s, err := New(ctx, db, dialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New runs migrations on db and loads the seen index.
func New(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLStore{db: db, dialect: dialect, logger: logger, seen: make(map[string]string)}

	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w: migrate: %v", ErrIndexUnreadable, err)
		}
	}

	if err := s.load(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnreadable, err)
	}

	logger.Info("seen index loaded", zap.Int("jobs", len(s.seen)))
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, first_seen_cycle FROM seen_jobs`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, cycle string
		if err := rows.Scan(&id, &cycle); err != nil {
			return err
		}
		s.seen[id] = cycle
	}
	return rows.Err()
}

func (s *SQLStore) Seen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// FirstSeen returns the cycle that first reported the posting.
func (s *SQLStore) FirstSeen(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cycle, ok := s.seen[id]
	return cycle, ok
}

func (s *SQLStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// MarkSeen records postings as seen in the given cycle. Ids already present
// keep their first cycle. It returns how many ids were new.
func (s *SQLStore) MarkSeen(ctx context.Context, cycleID string, postings []jobs.Posting, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.rebind(`INSERT INTO seen_jobs (id, first_seen_cycle, first_seen_at, title, company)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	var added []string
	for _, p := range postings {
		if _, ok := s.seen[p.ID]; ok {
			continue
		}
		res, err := tx.ExecContext(ctx, query, p.ID, cycleID, at.UnixMilli(), p.Title, p.Company)
		if err != nil {
			return 0, fmt.Errorf("mark %s seen: %w", p.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue
		}
		added = append(added, p.ID)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	for _, id := range added {
		s.seen[id] = cycleID
	}
	return len(added), nil
}

// AppendCycle stores a finished cycle. Records are never updated.
func (s *SQLStore) AppendCycle(ctx context.Context, rec jobs.CycleRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cycle %s: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO cycles (id, started_at, ended_at, record) VALUES (?, ?, ?, ?)`),
		rec.ID, rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("append cycle %s: %w", rec.ID, err)
	}
	return nil
}

// Replay calls fn for every recorded cycle in start order.
func (s *SQLStore) Replay(ctx context.Context, fn func(jobs.CycleRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM cycles ORDER BY started_at, id`)
	if err != nil {
		return fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Recent returns up to limit cycles, newest first.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]jobs.CycleRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, record FROM cycles ORDER BY started_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []jobs.CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) Latest(ctx context.Context) (*jobs.CycleRecord, error) {
	recs, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNoCycles
	}
	return &recs[0], nil
}

func scanCycle(rows *sql.Rows) (jobs.CycleRecord, error) {
	var (
		id      string
		payload string
		rec     jobs.CycleRecord
	)
	if err := rows.Scan(&id, &payload); err != nil {
		return rec, fmt.Errorf("scan cycle: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return rec, fmt.Errorf("decode cycle %s: %w", id, err)
	}
	return rec, nil
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
