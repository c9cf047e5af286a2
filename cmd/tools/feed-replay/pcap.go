//go:build pcap
// +build pcap

package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// replayPCAP streams the UDP payloads of a packet capture to conn,
// pacing each packet by the gap between capture timestamps.
func replayPCAP(ctx context.Context, pcapFile string, conn net.Conn) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("udp"); err != nil {
		return fmt.Errorf("failed to set BPF filter: %w", err)
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())

	sent := 0
	var lastCapture time.Time
	for {
		select {
		case <-ctx.Done():
			log.Printf("PCAP replay stopping (%d packets sent)", sent)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				log.Printf("✓ Streamed %d packets from %s", sent, pcapFile)
				return nil
			}

			captureTime := packet.Metadata().Timestamp
			if !lastCapture.IsZero() {
				if delay := captureTime.Sub(lastCapture); delay > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(delay):
					}
				}
			}
			lastCapture = captureTime

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			if _, err := conn.Write(udp.Payload); err != nil {
				return fmt.Errorf("send failed after %d packets: %w", sent, err)
			}
			sent++
		}
	}
}
