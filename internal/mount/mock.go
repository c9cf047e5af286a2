package mount

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// MockPort is an in-memory Porter. Reads block until data is pushed or
// the port closes, so a Mux monitor loop behaves as it would against
// real hardware. With auto-respond enabled the port answers commands
// the way drive firmware does, which is enough to run the daemon with
// no gimbal attached.
type MockPort struct {
	mu          sync.Mutex
	cond        *sync.Cond
	readBuf     bytes.Buffer
	written     bytes.Buffer
	closed      bool
	autoRespond bool
}

// NewMockPort returns an open MockPort.
func NewMockPort() *MockPort {
	p := &MockPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetAutoRespond toggles canned firmware replies to written commands.
func (p *MockPort) SetAutoRespond(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoRespond = on
}

// Push enqueues one line of device output.
func (p *MockPort) Push(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushLocked(line)
}

func (p *MockPort) pushLocked(line string) {
	if p.closed {
		return
	}
	p.readBuf.WriteString(line)
	p.readBuf.WriteString("\r\n")
	p.cond.Signal()
}

// Read blocks until device output is available or the port is closed.
func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.readBuf.Len() == 0 {
		p.cond.Wait()
	}
	if p.readBuf.Len() == 0 {
		return 0, io.EOF
	}
	return p.readBuf.Read(b)
}

// Write records the command and, with auto-respond on, queues the
// canned reply.
func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.written.Write(b)
	if p.autoRespond {
		p.respondLocked(strings.TrimSpace(string(b)))
	}
	return len(b), nil
}

func (p *MockPort) respondLocked(command string) {
	switch {
	case command == "?P":
		p.pushLocked("P 0.000 0.000")
	case command == "?V":
		p.pushLocked("V mock-1.0")
	case command == "?S":
		p.pushLocked("S idle")
	case strings.HasPrefix(command, "MV "), command == "TR", command == "HM", command == "ST":
		p.pushLocked("OK " + command[:2])
	default:
		p.pushLocked("ERR unknown command")
	}
}

// Close wakes any blocked reader and marks the port closed.
func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Written returns every command written so far, CRLF framing stripped.
func (p *MockPort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw := strings.TrimSuffix(p.written.String(), "\r\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\r\n")
}

// NewMockMux returns a Mux backed by a fresh MockPort, plus the port
// itself for scripting.
func NewMockMux() (*Mux[*MockPort], *MockPort) {
	port := NewMockPort()
	return NewMux(port), port
}
