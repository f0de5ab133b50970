package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
)

// maxDatagram bounds a single command datagram. A full-robot batch (~60
// joints, 12 arrays) encodes well under this.
const maxDatagram = 64 * 1024

// pendingBuffer is the receive-side buffer depth. At 500Hz the tick drains
// every 2ms, so this absorbs multi-sender bursts without growing latency.
const pendingBuffer = 64

// Receiver listens for command batches on a UDP socket. Reception and JSON
// decoding run on a background goroutine (Monitor); decoded batches are
// buffered until the control tick drains them. Mutation of the Store only
// happens inside Drain, synchronously within the tick.
type Receiver struct {
	conn    net.PacketConn
	pending chan Batch

	// counters, readable via Stats
	received   atomic.Uint64
	dropped    atomic.Uint64
	decodeErrs atomic.Uint64
}

// NewReceiver binds a UDP socket on listenAddr and returns a Receiver. The
// caller must run Monitor to start reception and Close when done.
func NewReceiver(listenAddr string) (*Receiver, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind command listener on %s: %w", listenAddr, err)
	}
	return newReceiver(conn), nil
}

func newReceiver(conn net.PacketConn) *Receiver {
	return &Receiver{
		conn:    conn,
		pending: make(chan Batch, pendingBuffer),
	}
}

// Monitor reads datagrams until the context is cancelled or the socket is
// closed. Malformed datagrams are counted and skipped. When the pending
// buffer is full the newest batch is dropped rather than blocking the
// reader; the tick will catch up on the next drain.
func (r *Receiver) Monitor(ctx context.Context) error {
	// Unblock the read when the context is cancelled.
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("command socket read: %w", err)
		}

		var batch Batch
		if err := json.Unmarshal(buf[:n], &batch); err != nil {
			r.decodeErrs.Add(1)
			continue
		}
		if err := batch.Validate(); err != nil {
			r.decodeErrs.Add(1)
			continue
		}
		r.received.Add(1)

		select {
		case r.pending <- batch:
		default:
			r.dropped.Add(1)
		}
	}
}

// Drain applies every batch buffered since the previous drain to the store,
// in arrival order, returning immediately when none are pending. This is the
// zero-timeout poll at the start of each control cycle: commands delivered
// before the drain are visible to this cycle's control law, later arrivals
// wait for the next cycle.
func (r *Receiver) Drain(store *Store) (batches, applied int) {
	for {
		select {
		case batch := <-r.pending:
			batches++
			applied += batch.Apply(store)
		default:
			return batches, applied
		}
	}
}

// Stats returns receive counters for debug surfaces.
func (r *Receiver) Stats() (received, dropped, decodeErrs uint64) {
	return r.received.Load(), r.dropped.Load(), r.decodeErrs.Load()
}

// LocalAddr returns the bound socket address.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Close closes the underlying socket, terminating Monitor.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
