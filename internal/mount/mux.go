package mount

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var (
	// ErrWriteFailed reports a short write to the drive port.
	ErrWriteFailed = errors.New("short write to drive port")

	// ErrCommandNotAllowed reports a command outside the allow list.
	ErrCommandNotAllowed = errors.New("command not in allow list")
)

// Porter is the minimal surface the mux needs from a serial port.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// subscriberBuffer is the per-subscriber line queue depth. Fan-out is
// non-blocking; a subscriber that falls this far behind loses lines.
const subscriberBuffer = 16

// Mux owns a pan-tilt drive port. It serialises writes, enforces the
// command allow list, and multiplexes lines read from the port to any
// number of subscribers.
type Mux[T Porter] struct {
	port      T
	commandMu sync.Mutex

	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

// NewMux wraps an open port.
func NewMux[T Porter](port T) *Mux[T] {
	return &Mux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a subscriber ID (8 random bytes, hex encoded).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new line channel. The returned ID identifies
// the channel for Unsubscribe.
func (m *Mux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (m *Mux[T]) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Send validates command against the allow list and writes it to the
// port with CRLF framing. Only one writer touches the port at a time.
func (m *Mux[T]) Send(command string) error {
	command = strings.TrimSpace(command)
	if !IsAllowedCommand(command) {
		return fmt.Errorf("%w: %q", ErrCommandNotAllowed, command)
	}

	m.commandMu.Lock()
	defer m.commandMu.Unlock()
	framed := command + "\r\n"
	n, err := m.port.Write([]byte(framed))
	if err != nil {
		return err
	}
	if n != len(framed) {
		return ErrWriteFailed
	}
	return nil
}

// Initialize halts any motion left over from a previous run, re-homes
// the head so reported angles are absolute, and requests the firmware
// version and initial position so both land in the monitor stream.
func (m *Mux[T]) Initialize() error {
	for _, command := range []string{
		"ST", // halt any motion in progress
		"HM", // re-home, zeroing the reported angles
		"?V", // firmware version
		"?P", // initial position report
	} {
		if err := m.Send(command); err != nil {
			return fmt.Errorf("failed to send init command %q: %w", command, err)
		}
	}
	return nil
}

// Monitor reads lines from the drive and fans them out to subscribers
// until the context is cancelled, the port errors, or the port reaches
// EOF. The blocking reads live in their own goroutine so cancellation
// is never held up by a quiet port.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				return scan.Err()
			}
			if !m.publish(line) {
				return nil
			}
		}
	}
}

// publish fans a line out to every subscriber, dropping it for any
// whose buffer is full. It reports false when the mux is closing.
func (m *Mux[T]) publish(line string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	for _, ch := range m.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
	return true
}

// Close closes all subscriber channels and the port.
func (m *Mux[T]) Close() error {
	m.mu.Lock()
	m.closing = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.mu.Unlock()
	return m.port.Close()
}

// AttachAdminRoutes mounts drive debugging endpoints under /debug/.
// They are reachable only from localhost or over the tailnet, per
// tsweb's debug access policy.
func (m *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Write one allow-listed command to the drive.
	debug.HandleSilentFunc("drive-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := m.Send(command); err != nil {
			if errors.Is(err, ErrCommandNotAllowed) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to drive", command)
	})

	// Live tail of drive events as Server-Sent Events.
	debug.HandleSilentFunc("drive-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		io.WriteString(w, ": ping\n\n")
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", line)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
