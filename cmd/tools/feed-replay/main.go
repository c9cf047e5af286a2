// Command feed-replay streams a recorded scenario to a running
// daemon's feed port, pacing datagrams by their capture timestamps.
// With -pcap (and a binary built with -tags=pcap) it replays raw
// detector datagrams from a packet capture instead.
//
// Usage:
//
//	go run ./cmd/tools/feed-replay -scenario scenario.jsonl -addr 127.0.0.1:4040
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/p1feed"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4040", "daemon feed address")
	scenario := flag.String("scenario", "", "scenario file to stream")
	pcapFile := flag.String("pcap", "", "packet capture to stream (needs a -tags=pcap build)")
	fast := flag.Bool("fast", false, "ignore capture timing and stream as fast as possible")
	loop := flag.Bool("loop", false, "restart the scenario when it ends")
	flag.Parse()

	if (*scenario == "") == (*pcapFile == "") {
		log.Fatal("Error: exactly one of -scenario or -pcap is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()

	if *pcapFile != "" {
		if err := replayPCAP(ctx, *pcapFile, conn); err != nil {
			log.Fatalf("PCAP replay failed: %v", err)
		}
		return
	}

	datagrams, err := p1feed.ReadScenario(*scenario)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}

	replayer := p1feed.NewReplayer(datagrams, nil, *fast)
	log.Printf("Streaming %d frames to %s", replayer.Len(), *addr)

	sent := 0
	send := func(d p1feed.Datagram) error {
		buf, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if _, err := conn.Write(buf); err != nil {
			return err
		}
		sent++
		return nil
	}

	for {
		if err := replayer.Run(ctx, send); err != nil {
			if ctx.Err() != nil {
				log.Printf("Stopped after %d frames", sent)
				return
			}
			log.Fatalf("Replay failed after %d frames: %v", sent, err)
		}
		if !*loop {
			break
		}
		log.Printf("Looping after %d frames", sent)
	}

	log.Printf("✓ Streamed %d frames to %s", sent, *addr)
}
