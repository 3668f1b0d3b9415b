package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execRecorder is a Querier that only supports Exec.
type execRecorder struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

type execCall struct {
	sql  string
	args []any
}

func (q *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return pgconn.CommandTag{}, q.err
	}
	q.calls = append(q.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (q *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (q *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (q *execRecorder) rowsWritten() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.calls {
		n += len(c.args) / 10
	}
	return n
}

func entry(action Action) Entry {
	return Entry{Role: "owner", EntityType: "cars", EntityID: "1", Action: action, IP: "unknown", UserAgent: "unknown"}
}

func TestAsyncSink_FlushOnBatchSize(t *testing.T) {
	db := &execRecorder{}
	sink := NewAsyncSink(db, NewStore(), LoggerConfig{BatchSize: 3, FlushInterval: time.Hour}, nil)
	defer sink.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Write(context.Background(), entry(ActionCreate)))
	}

	assert.Eventually(t, func() bool { return db.rowsWritten() == 3 }, time.Second, 10*time.Millisecond)
}

func TestAsyncSink_FlushOnInterval(t *testing.T) {
	db := &execRecorder{}
	sink := NewAsyncSink(db, NewStore(), LoggerConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, nil)
	defer sink.Close()

	require.NoError(t, sink.Write(context.Background(), entry(ActionUpdate)))

	assert.Eventually(t, func() bool { return db.rowsWritten() == 1 }, time.Second, 10*time.Millisecond)
}

func TestAsyncSink_CloseDrains(t *testing.T) {
	db := &execRecorder{}
	sink := NewAsyncSink(db, NewStore(), LoggerConfig{BatchSize: 100, FlushInterval: time.Hour}, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Write(context.Background(), entry(ActionDelete)))
	}
	require.NoError(t, sink.Close())

	assert.Equal(t, 5, db.rowsWritten())
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	metrics := NewMetrics()
	// No worker runs, so the one-slot buffer stays full.
	sink := &AsyncSink{ch: make(chan Entry, 1), store: NewStore(), db: &execRecorder{}, metrics: metrics,
		cfg: LoggerConfig{BatchSize: 100, FlushInterval: time.Hour}, cancel: func() {}}

	require.NoError(t, sink.Write(context.Background(), entry(ActionCreate)))
	require.NoError(t, sink.Write(context.Background(), entry(ActionCreate)))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.dropped))
}

func TestAsyncSink_FlushFailureCounted(t *testing.T) {
	metrics := NewMetrics()
	db := &execRecorder{err: errors.New("connection reset")}
	sink := NewAsyncSink(db, NewStore(), LoggerConfig{BatchSize: 1, FlushInterval: time.Hour}, metrics)

	require.NoError(t, sink.Write(context.Background(), entry(ActionCreate)))
	require.NoError(t, sink.Close())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("flush")))
}

func TestBuildBatchInsert(t *testing.T) {
	sql, args := buildBatchInsert([]Entry{entry(ActionCreate), entry(ActionUpdate)})

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO audit_logs (user_id, role,"))
	assert.Contains(t, sql, "($1, $2, $3, $4, $5, $6, $7, $8, $9, $10), ($11,")
	assert.Contains(t, sql, "$20)")
	assert.Len(t, args, 20)
	assert.Equal(t, "update", args[15])
}

func TestDirectSink_Write(t *testing.T) {
	db := &execRecorder{}
	sink := NewDirectSink(NewStore(), db)

	require.NoError(t, sink.Write(context.Background(), entry(ActionView)))
	require.Len(t, db.calls, 1)
	assert.Nil(t, db.calls[0].args[6], "empty before state is stored as NULL")
}
