package p1feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/monitoring"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/timeutil"
)

const (
	// maxDatagramSize bounds the receive buffer; a full batch of
	// wire sightings fits in a few kilobytes.
	maxDatagramSize = 65536

	// parseErrLogEvery limits log noise from a misbehaving sender;
	// the first parse error always logs.
	parseErrLogEvery = 100
)

// ListenerConfig configures a UDP sighting listener. Zero values get
// working defaults.
type ListenerConfig struct {
	Address     string        // UDP listen address, default ":4040"
	RcvBuf      int           // OS receive buffer, default 256 KiB
	LogInterval time.Duration // stats log cadence, default 1 minute
	StaleAfter  time.Duration // batch freshness window, default 1s
	Clock       timeutil.Clock
	// SocketFactory is the UDP socket source (for testing).
	SocketFactory SocketFactory
}

// ListenerStats is a snapshot of the listener's counters.
type ListenerStats struct {
	Packets     uint64 `json:"packets"`
	Bytes       uint64 `json:"bytes"`
	Batches     uint64 `json:"batches"`
	Sightings   uint64 `json:"sightings"`
	ParseErrors uint64 `json:"parse_errors"`
}

// Listener receives detector datagrams over UDP and serves the
// freshest batch as a Feed. It is a mailbox, not a queue: each
// datagram replaces the previous batch, and a batch older than the
// staleness window reads as empty so a dead detector does not leave
// ghost sightings behind.
type Listener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	staleAfter  time.Duration
	clock       timeutil.Clock
	factory     SocketFactory

	connMu sync.RWMutex
	conn   UDPSocket

	mu         sync.Mutex
	batch      []pursuit.Sighting
	receivedAt time.Time
	batchTNs   int64

	packets   atomic.Uint64
	bytes     atomic.Uint64
	batches   atomic.Uint64
	sightings atomic.Uint64
	parseErrs atomic.Uint64
}

// NewListener creates a listener; Start must be called before any
// datagrams arrive, but Inject and Sightings work immediately.
func NewListener(config ListenerConfig) *Listener {
	address := config.Address
	if address == "" {
		address = ":4040"
	}
	rcvBuf := config.RcvBuf
	if rcvBuf == 0 {
		rcvBuf = 256 * 1024
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	staleAfter := config.StaleAfter
	if staleAfter == 0 {
		staleAfter = time.Second
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	factory := config.SocketFactory
	if factory == nil {
		factory = ListenSystemUDP
	}

	return &Listener{
		address:     address,
		rcvBuf:      rcvBuf,
		logInterval: logInterval,
		staleAfter:  staleAfter,
		clock:       clock,
		factory:     factory,
	}
}

// Source describes the feed for session records.
func (l *Listener) Source() string {
	return "udp:" + l.address
}

// Sightings implements pursuit.Feed: the freshest batch, pre-filtered
// by straight-line range from the mount when maxDistance is positive.
// A stale or absent batch reads as empty, never as an error.
func (l *Listener) Sightings(maxDistance float64) ([]pursuit.Sighting, error) {
	l.mu.Lock()
	batch := l.batch
	receivedAt := l.receivedAt
	l.mu.Unlock()

	if len(batch) == 0 || l.clock.Since(receivedAt) > l.staleAfter {
		return nil, nil
	}

	out := make([]pursuit.Sighting, 0, len(batch))
	for _, s := range batch {
		if maxDistance > 0 && s.Pos.Len() > maxDistance {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Inject delivers one datagram to the mailbox as if it had arrived on
// the socket. Scenario replay and tests use this path.
func (l *Listener) Inject(d Datagram) {
	converted := d.Convert()

	l.mu.Lock()
	l.batch = converted
	l.receivedAt = l.clock.Now()
	l.batchTNs = d.T
	l.mu.Unlock()

	l.batches.Add(1)
	l.sightings.Add(uint64(len(d.Sightings)))
}

// Stats returns a snapshot of the listener's counters.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Packets:     l.packets.Load(),
		Bytes:       l.bytes.Load(),
		Batches:     l.batches.Load(),
		Sightings:   l.sightings.Load(),
		ParseErrors: l.parseErrs.Load(),
	}
}

// LocalAddr returns the bound socket address, nil before Start.
func (l *Listener) LocalAddr() net.Addr {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *Listener) setConn(conn UDPSocket) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn = conn
}

// Start binds the socket and receives datagrams until ctx is
// cancelled. Read deadlines keep the loop responsive to cancellation.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.factory("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.setConn(conn)
	defer conn.Close()

	if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
		monitoring.Logf("feed: failed to set UDP receive buffer to %d: %v", l.rcvBuf, err)
	}

	monitoring.Logf("feed: listening on %s with receive buffer %d bytes", l.address, l.rcvBuf)

	go l.statsLogging(ctx)

	buffer := make([]byte, maxDatagramSize)
	var deadlineErrLogged bool

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Short deadlines so cancellation is noticed between reads
			if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
				if !deadlineErrLogged {
					monitoring.Logf("feed: failed to set read deadline: %v", err)
					deadlineErrLogged = true
				}
			}

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return nil
				}
				monitoring.Logf("feed: UDP read error: %v", err)
				continue
			}

			if err := l.handleDatagram(buffer[:n]); err != nil {
				count := l.parseErrs.Add(1)
				if count == 1 || count%parseErrLogEvery == 0 {
					monitoring.Logf("feed: bad datagram from %v (%d so far): %v", addr, count, err)
				}
			}
		}
	}
}

// handleDatagram parses one datagram and replaces the mailbox batch.
func (l *Listener) handleDatagram(packet []byte) error {
	l.packets.Add(1)
	l.bytes.Add(uint64(len(packet)))

	var d Datagram
	if err := json.Unmarshal(packet, &d); err != nil {
		return err
	}

	l.Inject(d)
	return nil
}

// statsLogging reports counters shortly after startup, then on the
// configured interval.
func (l *Listener) statsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.logStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.logStats()
		}
	}
}

func (l *Listener) logStats() {
	stats := l.Stats()
	monitoring.Logf("feed: %d packets (%d bytes), %d batches, %d sightings, %d parse errors",
		stats.Packets, stats.Bytes, stats.Batches, stats.Sightings, stats.ParseErrors)
}
