//go:build !pcap
// +build !pcap

package main

import (
	"context"
	"fmt"
	"net"
)

// replayPCAP is the stub used when PCAP support is disabled.
func replayPCAP(ctx context.Context, pcapFile string, conn net.Conn) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to stream capture files")
}
