// Package observability records kiosk telemetry in SQLite: navigation step
// timings and outcomes, runtime samples, and session events.
//
// Persistence is asynchronous. A full buffer is flushed in the caller's
// goroutine; a failing store logs and drops datapoints instead of slowing
// key handling.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/tvshell/dbopen"
)

// Metric names.
const (
	MetricNavStep       = "nav_step"        // ms per handled navigation, labels direction/stage/moved/retried
	MetricGoroutines    = "goroutines"      // count
	MetricHeapAllocMB   = "heap_alloc_mb"   // Go heap
	MetricBrowserHeapMB = "browser_heap_mb" // page JS heap
)

// Metric is one datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string
}

// MetricsManager buffers metrics and writes them in batches.
type MetricsManager struct {
	db            *sql.DB
	session       string
	bufferSize    int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	buffer []*Metric
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewMetricsManager starts a manager tagging rows with session. Zero
// bufferSize and flushInterval default to 100 and 5s.
func NewMetricsManager(db *sql.DB, session string, bufferSize int, flushInterval time.Duration, logger *slog.Logger) *MetricsManager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	mm := &MetricsManager{
		db:            db,
		session:       session,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		logger:        logger,
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go mm.flushLoop()
	return mm
}

// Record queues m.
func (mm *MetricsManager) Record(m *Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.buffer = append(mm.buffer, m)
	if len(mm.buffer) >= mm.bufferSize {
		mm.flushLocked()
	}
}

// RecordNav queues one navigation step.
func (mm *MetricsManager) RecordNav(direction, stage string, moved, retried bool, elapsed time.Duration) {
	mm.Record(&Metric{
		Name:  MetricNavStep,
		Value: float64(elapsed.Microseconds()) / 1000,
		Unit:  "milliseconds",
		Labels: map[string]string{
			"direction": direction,
			"stage":     stage,
			"moved":     fmt.Sprint(moved),
			"retried":   fmt.Sprint(retried),
		},
	})
}

// Flush writes the buffer now.
func (mm *MetricsManager) Flush() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.flushLocked()
}

// Query returns metrics named name (all when empty) recorded at or after
// since (unbounded when zero), newest first.
func (mm *MetricsManager) Query(ctx context.Context, name string, since time.Time, limit int) ([]*Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE 1=1"
	var args []any
	if name != "" {
		q += " AND metric_name = ?"
		args = append(args, name)
	}
	if !since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, since.UnixMilli())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mm.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			m      Metric
			ts     int64
			labels sql.NullString
			unit   sql.NullString
		)
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labels, &unit); err != nil {
			return nil, fmt.Errorf("observability: scan metric: %w", err)
		}
		m.Timestamp, m.Unit = time.UnixMilli(ts), unit.String
		if labels.Valid {
			json.Unmarshal([]byte(labels.String), &m.Labels)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// NavSummary counts navigation steps by stage and outcome since the given
// time: "directional/true" -> 12.
func (mm *MetricsManager) NavSummary(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := mm.db.QueryContext(ctx, `
		SELECT json_extract(labels, '$.stage'), json_extract(labels, '$.moved'), COUNT(*)
		FROM metrics_timeseries
		WHERE metric_name = ? AND timestamp >= ?
		GROUP BY 1, 2`, MetricNavStep, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("observability: nav summary: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var stage, moved sql.NullString
		var n int
		if err := rows.Scan(&stage, &moved, &n); err != nil {
			return nil, fmt.Errorf("observability: scan summary: %w", err)
		}
		out[stage.String+"/"+moved.String] += n
	}
	return out, rows.Err()
}

// Cleanup deletes metrics older than retention and returns the count removed.
func (mm *MetricsManager) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := dbopen.Exec(ctx, mm.db, "DELETE FROM metrics_timeseries WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup metrics: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes the buffer and stops the flush goroutine. It is safe to
// call more than once.
func (mm *MetricsManager) Close() error {
	mm.once.Do(func() { close(mm.stop) })
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stop:
			mm.Flush()
			return
		case <-ticker.C:
			mm.Flush()
		}
	}
}

func (mm *MetricsManager) flushLocked() {
	if len(mm.buffer) == 0 {
		return
	}
	batch := mm.buffer
	mm.buffer = make([]*Metric, 0, mm.bufferSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := dbopen.RunTx(ctx, mm.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (session_id, metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, m := range batch {
			var labels sql.NullString
			if len(m.Labels) > 0 {
				if b, err := json.Marshal(m.Labels); err == nil {
					labels = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, mm.session, m.Name, m.Timestamp.UnixMilli(), m.Value, labels, m.Unit); err != nil {
				return fmt.Errorf("insert %s: %w", m.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		mm.logger.Error("observability: flush metrics", "dropped", len(batch), "error", err)
	}
}
