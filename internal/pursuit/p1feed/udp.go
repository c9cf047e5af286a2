package p1feed

import (
	"net"
	"time"
)

// UDPSocket is the slice of *net.UDPConn the listener touches.
// *net.UDPConn satisfies it directly; tests substitute a scripted
// socket so no real port is bound.
type UDPSocket interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// SocketFactory binds the listen socket for Start. The zero-config
// default is ListenSystemUDP.
type SocketFactory func(network string, laddr *net.UDPAddr) (UDPSocket, error)

// ListenSystemUDP binds a kernel UDP socket.
func ListenSystemUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
