// Package blackbox is the flight recorder: safety faults and periodic
// commanded-effort samples are persisted to sqlite for post-incident review.
// Writes are queued on a buffered channel and flushed by a background
// goroutine so nothing in the control tick ever waits on the database.
package blackbox

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// queueDepth bounds the pending-write queue. Fault bursts beyond this are
// counted and dropped rather than stalling the enqueuing tick.
const queueDepth = 1024

// FaultKind classifies a runtime safety fault.
type FaultKind string

const (
	FaultEffortNulled    FaultKind = "effort_nulled"    // joint past the excursion bound
	FaultEffortRamped    FaultKind = "effort_ramped"    // proximity ramp engaged
	FaultSlewLimited     FaultKind = "slew_limited"     // per-cycle delta bound engaged
	FaultCeiling         FaultKind = "ceiling"          // absolute sanity ceiling hit
	FaultPositionClamped FaultKind = "position_clamped" // position target out of limits
)

// FaultEvent is one recorded safety fault.
type FaultEvent struct {
	ID          string
	TSUnixNanos int64
	Joint       string
	Kind        FaultKind
	Value       float64
	Detail      string
}

// EffortSample is one periodic measured-vs-commanded effort sample.
type EffortSample struct {
	TSUnixNanos int64
	Joint       string
	Measured    float64
	Commanded   float64
}

type flushRequest struct {
	done chan struct{}
}

// Recorder writes fault events and effort samples to a sqlite file.
type Recorder struct {
	db      *sql.DB
	queue   chan any
	done    chan struct{}
	dropped atomic.Uint64
}

// Open opens (creating if needed) the blackbox database at path, applies any
// pending schema migrations, and starts the background writer.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open blackbox database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	r := &Recorder{
		db:    db,
		queue: make(chan any, queueDepth),
		done:  make(chan struct{}),
	}
	go r.writer()
	return r, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: we don't close m because it would close the underlying DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("blackbox migration failed: %w", err)
	}
	return nil
}

// writer consumes the queue until Close.
func (r *Recorder) writer() {
	defer close(r.done)
	for item := range r.queue {
		switch v := item.(type) {
		case FaultEvent:
			if _, err := r.db.Exec(
				`INSERT INTO fault_events (id, ts_unix_nanos, joint, kind, value, detail) VALUES (?, ?, ?, ?, ?, ?)`,
				v.ID, v.TSUnixNanos, v.Joint, string(v.Kind), v.Value, v.Detail,
			); err != nil {
				logf("failed to insert fault event for %s: %v", v.Joint, err)
			}
		case EffortSample:
			if _, err := r.db.Exec(
				`INSERT INTO effort_samples (ts_unix_nanos, joint, measured, commanded) VALUES (?, ?, ?, ?)`,
				v.TSUnixNanos, v.Joint, v.Measured, v.Commanded,
			); err != nil {
				logf("failed to insert effort sample for %s: %v", v.Joint, err)
			}
		case flushRequest:
			close(v.done)
		}
	}
}

// enqueue is non-blocking: drops (and counts) when the queue is full.
func (r *Recorder) enqueue(item any) {
	select {
	case r.queue <- item:
	default:
		r.dropped.Add(1)
	}
}

// RecordFault queues a fault event. A missing ID or timestamp is filled in.
func (r *Recorder) RecordFault(e FaultEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TSUnixNanos == 0 {
		e.TSUnixNanos = time.Now().UnixNano()
	}
	r.enqueue(e)
}

// RecordEffortSample queues a measured-vs-commanded effort sample.
func (r *Recorder) RecordEffortSample(s EffortSample) {
	if s.TSUnixNanos == 0 {
		s.TSUnixNanos = time.Now().UnixNano()
	}
	r.enqueue(s)
}

// Flush blocks until every item queued before the call has been written.
// Intended for tests and shutdown, not the control tick.
func (r *Recorder) Flush() {
	req := flushRequest{done: make(chan struct{})}
	r.queue <- req
	<-req.done
}

// Dropped returns the number of queue overflows so far.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// RecentFaults returns up to limit fault events, newest first.
func (r *Recorder) RecentFaults(limit int) ([]FaultEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, ts_unix_nanos, joint, kind, value, detail FROM fault_events ORDER BY ts_unix_nanos DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query fault events: %w", err)
	}
	defer rows.Close()

	var events []FaultEvent
	for rows.Next() {
		var e FaultEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.TSUnixNanos, &e.Joint, &kind, &e.Value, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan fault event: %w", err)
		}
		e.Kind = FaultKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// EffortSamples returns samples for a joint within [fromNanos, toNanos],
// oldest first.
func (r *Recorder) EffortSamples(joint string, fromNanos, toNanos int64) ([]EffortSample, error) {
	rows, err := r.db.Query(
		`SELECT ts_unix_nanos, joint, measured, commanded FROM effort_samples
		 WHERE joint = ? AND ts_unix_nanos BETWEEN ? AND ? ORDER BY ts_unix_nanos ASC`,
		joint, fromNanos, toNanos,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query effort samples: %w", err)
	}
	defer rows.Close()

	var samples []EffortSample
	for rows.Next() {
		var s EffortSample
		if err := rows.Scan(&s.TSUnixNanos, &s.Joint, &s.Measured, &s.Commanded); err != nil {
			return nil, fmt.Errorf("failed to scan effort sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Close stops the writer after draining the queue and closes the database.
func (r *Recorder) Close() error {
	close(r.queue)
	<-r.done
	return r.db.Close()
}
