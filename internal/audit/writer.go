package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/clusteradmin/internal/mailbox"
)

// Schema creates the audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS admin_audit (
	id            UUID PRIMARY KEY,
	instance      TEXT NOT NULL,
	connection_id BIGINT NOT NULL,
	seq           BIGINT NOT NULL,
	operator      TEXT NOT NULL DEFAULT '',
	request_kind  TEXT NOT NULL,
	destination   TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	submitted_at  TIMESTAMPTZ NOT NULL,
	emitted_at    TIMESTAMPTZ NOT NULL
)`

// flushTimeout bounds a single batch insert.
const flushTimeout = 10 * time.Second

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig holds configuration for the audit writer.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // Records queued beyond this are dropped
}

// DefaultWriterConfig returns default writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// WriterMetrics contains writer statistics.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

// Writer batches audit records into the admin_audit table.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *mailbox.Queue[Record]
	db    DB

	batch       []Record
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewWriter creates a new audit writer.
func NewWriter(cfg WriterConfig, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  mailbox.New[Record](cfg.BatchSize),
		batch:  make([]Record, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the audit table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, Schema)
	return err
}

// Record implements Sink. Records beyond the buffer limit are dropped.
func (w *Writer) Record(r Record) {
	if w.input.Len() >= w.cfg.BufferSize || !w.input.Send(r) {
		w.batchMu.Lock()
		w.metrics.Dropped++
		dropped := w.metrics.Dropped
		w.batchMu.Unlock()

		if dropped == 1 || dropped%1000 == 0 {
			w.logger.Warn("audit buffer full, dropping records", "dropped", dropped)
		}
	}
}

// Start begins consuming records and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("audit writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued records, flushes them and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping audit writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("audit writer stopped")
	case <-ctx.Done():
		w.logger.Warn("audit writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves records from the queue into the batch until the queue
// is closed and drained.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		r, ok := w.input.Receive()
		if !ok {
			return
		}
		w.add(r)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *Writer) add(r Record) {
	w.batchMu.Lock()
	w.batch = append(w.batch, r)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]Record, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("audit batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed audit records",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts records using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(rows []Record) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO admin_audit (id, instance, connection_id, seq, operator, request_kind, destination, outcome, submitted_at, emitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Instance, int64(r.ConnectionID), int64(r.Seq), r.Operator, r.RequestKind, r.Destination, r.Outcome, r.SubmittedAt, r.EmittedAt)
	}

	// The writer's own context is canceled before the final flush.
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
