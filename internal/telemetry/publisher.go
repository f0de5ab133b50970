package telemetry

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// Publisher sends one snapshot on a named channel. Implementations must be
// non-blocking or bounded-time: Publish is called from the control tick.
type Publisher interface {
	Publish(channel string, msg any) error
	Close() error
}

// envelope is the JSON framing for UDP delivery: the channel name plus the
// snapshot payload.
type envelope struct {
	Channel string `json:"channel"`
	Msg     any    `json:"msg"`
}

// UDPPublisher delivers snapshots as JSON datagrams to a fixed target.
// UDP writes never block on a slow consumer, which keeps the tick bounded.
type UDPPublisher struct {
	mu   sync.Mutex
	conn net.Conn
}

// NewUDPPublisher dials the telemetry target address.
func NewUDPPublisher(target string) (*UDPPublisher, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to dial telemetry target %s: %w", target, err)
	}
	return &UDPPublisher{conn: conn}, nil
}

func (p *UDPPublisher) Publish(channel string, msg any) error {
	data, err := json.Marshal(envelope{Channel: channel, Msg: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal %s snapshot: %w", channel, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send %s snapshot: %w", channel, err)
	}
	return nil
}

func (p *UDPPublisher) Close() error {
	return p.conn.Close()
}

// CapturePublisher records published snapshots for tests and the bench rig's
// dry-run mode.
type CapturePublisher struct {
	mu sync.Mutex

	// Published records every Publish call in order.
	Published []CapturedMessage

	// Err is returned by the next Publish call if set.
	Err error

	// Closed indicates whether Close was called.
	Closed bool
}

// CapturedMessage is one recorded Publish call.
type CapturedMessage struct {
	Channel string
	Msg     any
}

func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

func (p *CapturePublisher) Publish(channel string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		err := p.Err
		p.Err = nil
		return err
	}
	p.Published = append(p.Published, CapturedMessage{Channel: channel, Msg: msg})
	return nil
}

func (p *CapturePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Channels returns the channel names published so far, in order.
func (p *CapturePublisher) Channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Published))
	for i, m := range p.Published {
		out[i] = m.Channel
	}
	return out
}

// Last returns the most recent message published on channel, or nil.
func (p *CapturePublisher) Last(channel string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.Published) - 1; i >= 0; i-- {
		if p.Published[i].Channel == channel {
			return p.Published[i].Msg
		}
	}
	return nil
}
