package p1feed

import (
	"net"
	"sync"
	"time"
)

// MockUDPPacket is one scripted datagram for MockUDPSocket.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockUDPSocket plays back a scripted packet sequence. Once the script
// is exhausted every read times out, mimicking an idle socket, so the
// listener's deadline loop keeps spinning until cancelled.
type MockUDPSocket struct {
	mu       sync.Mutex
	script   []MockUDPPacket
	next     int
	closed   bool
	bufSize  int
	deadline time.Time
	laddr    *net.UDPAddr
}

// NewMockUDPSocket scripts the given packets on a fake loopback bind.
func NewMockUDPSocket(packets []MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		script: packets,
		laddr:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4040},
	}
}

func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if m.next >= len(m.script) {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: scriptDrained{}}
	}
	pkt := m.script[m.next]
	m.next++
	return copy(b, pkt.Data), pkt.Addr, nil
}

func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufSize = bytes
	return nil
}

func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	return nil
}

func (m *MockUDPSocket) LocalAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.laddr
}

func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ReadBuffer reports the size applied via SetReadBuffer.
func (m *MockUDPSocket) ReadBuffer() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bufSize
}

// Factory returns a SocketFactory that hands back this socket.
func (m *MockUDPSocket) Factory() SocketFactory {
	return func(network string, laddr *net.UDPAddr) (UDPSocket, error) {
		return m, nil
	}
}

// FailingSocketFactory returns a SocketFactory whose bind always
// fails with err.
func FailingSocketFactory(err error) SocketFactory {
	return func(network string, laddr *net.UDPAddr) (UDPSocket, error) {
		return nil, err
	}
}

// scriptDrained is the timeout the mock serves past the end of its
// script; it satisfies net.Error so the listener treats it like any
// deadline expiry.
type scriptDrained struct{}

func (scriptDrained) Error() string   { return "i/o timeout" }
func (scriptDrained) Timeout() bool   { return true }
func (scriptDrained) Temporary() bool { return true }
