//go:build !pcap
// +build !pcap

package p1feed

import "fmt"

// ReadCapture is a stub implementation when PCAP support is disabled
// Build with -tags=pcap to enable capture file reading
func ReadCapture(pcapFile string, udpPort int) ([]Datagram, error) {
	return nil, fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable capture file reading")
}
