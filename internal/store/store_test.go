package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spigell/job-radar/internal/jobs"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, path string) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), SQLite, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func cycle(id string, start time.Time) jobs.CycleRecord {
	return jobs.CycleRecord{
		ID:          id,
		StartedAt:   start,
		EndedAt:     start.Add(time.Minute),
		NewPostings: 2,
		Outcomes:    []jobs.AdapterOutcome{{Source: "adzuna", Status: jobs.OutcomeSucceeded, Count: 2, Attempts: 1}},
	}
}

func TestSeenIndexSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radar.db")
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	s, err := Open(ctx, SQLite, path, nil)
	require.NoError(t, err)

	added, err := s.MarkSeen(ctx, "c1", []jobs.Posting{{ID: "a", Title: "T", Company: "C"}, {ID: "b", Title: "T2", Company: "C"}}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.MarkSeen(ctx, "c2", []jobs.Posting{{ID: "b", Title: "T2", Company: "C"}, {ID: "c", Title: "T3", Company: "C"}}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	require.NoError(t, s.Close())

	reopened := openTemp(t, path)
	assert.Equal(t, 3, reopened.Len())
	assert.True(t, reopened.Seen("a"))
	assert.False(t, reopened.Seen("zzz"))

	first, ok := reopened.FirstSeen("b")
	require.True(t, ok)
	assert.Equal(t, "c1", first)
}

func TestConcurrentMarkSeenIsAtomicPerID(t *testing.T) {
	s := openTemp(t, filepath.Join(t.TempDir(), "radar.db"))
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.MarkSeen(ctx, "c", []jobs.Posting{{ID: "same", Title: "T", Company: "C"}}, time.Now())
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
}

func TestCycleLogReplayAndLatest(t *testing.T) {
	s := openTemp(t, filepath.Join(t.TempDir(), "radar.db"))
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoCycles)

	// Appended out of order on purpose.
	require.NoError(t, s.AppendCycle(ctx, cycle("second", base.Add(time.Hour))))
	require.NoError(t, s.AppendCycle(ctx, cycle("first", base)))
	require.NoError(t, s.AppendCycle(ctx, cycle("third", base.Add(2*time.Hour))))

	// Append only.
	assert.Error(t, s.AppendCycle(ctx, cycle("first", base)))

	var order []string
	require.NoError(t, s.Replay(ctx, func(rec jobs.CycleRecord) error {
		order = append(order, rec.ID)
		return nil
	}))
	assert.Equal(t, []string{"first", "second", "third"}, order)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "third", latest.ID)
	assert.Equal(t, 2, latest.NewPostings)
	require.Len(t, latest.Outcomes, 1)
	assert.Equal(t, jobs.OutcomeSucceeded, latest.Outcomes[0].Status)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[1].ID)

	stop := errors.New("stop")
	err = s.Replay(ctx, func(jobs.CycleRecord) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func expectMigrations(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS seen_jobs`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS cycles`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS cycles_started_at`).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUnreadableIndexIsReported(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectMigrations(mock)
	mock.ExpectQuery(`SELECT id, first_seen_cycle FROM seen_jobs`).WillReturnError(errors.New("disk I/O error"))

	_, err = New(context.Background(), db, SQLite, nil)
	require.Error(t, err)
	if !errors.Is(err, ErrIndexUnreadable) {
		t.Fatalf("expected ErrIndexUnreadable, got %v", err)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectMigrations(mock)
	mock.ExpectQuery(`SELECT id, first_seen_cycle FROM seen_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_seen_cycle"}).AddRow("old", "c0"))

	s, err := New(context.Background(), db, Postgres, nil)
	require.NoError(t, err)
	assert.True(t, s.Seen("old"))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO seen_jobs .* VALUES \(\$1, \$2, \$3, \$4, \$5\)`).
		WithArgs("new", "c1", sqlmock.AnyArg(), "T", "C").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	added, err := s.MarkSeen(context.Background(), "c1", []jobs.Posting{{ID: "old"}, {ID: "new", Title: "T", Company: "C"}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	mock.ExpectExec(`INSERT INTO cycles`).WillReturnError(errors.New("connection reset"))
	assert.Error(t, s.AppendCycle(context.Background(), cycle("x", time.Now())))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("mysql"), "", nil)
	assert.Error(t, err)
}
