//go:build pcap
// +build pcap

package p1feed

import (
	"encoding/json"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/kestrel-optics/pursuit.camera/internal/monitoring"
)

// ReadCapture extracts detector datagrams from a packet capture file:
// UDP payloads addressed to the feed port, parsed as wire datagrams.
// Payloads that do not parse are skipped. Datagrams without a capture
// timestamp inherit the pcap packet timestamp.
// This function is only available when building with the 'pcap' build tag.
func ReadCapture(pcapFile string, udpPort int) ([]Datagram, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return nil, fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())

	var datagrams []Datagram
	skipped := 0
	for packet := range packetSource.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		var d Datagram
		if err := json.Unmarshal(udp.Payload, &d); err != nil {
			skipped++
			continue
		}
		if d.T == 0 {
			if meta := packet.Metadata(); meta != nil {
				d.T = meta.Timestamp.UnixNano()
			}
		}
		datagrams = append(datagrams, d)
	}

	monitoring.Logf("feed: capture %s: %d datagrams, %d skipped payloads",
		pcapFile, len(datagrams), skipped)

	return datagrams, nil
}
