//go:build pcap
// +build pcap

// Command command-capture sniffs the bridge's UDP command and telemetry
// traffic from a live interface or a pcap file and prints each decoded
// message with its capture timestamp. Build with the 'pcap' tag (requires
// libpcap).
//
// Usage:
//
//	command-capture -iface lo -port 7667          # live command traffic
//	command-capture -pcap session.pcap -port 7668 # recorded telemetry
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/rdeits/valkyrie-translator/internal/command"
)

var (
	iface    = flag.String("iface", "", "Interface to capture from (live mode)")
	pcapFile = flag.String("pcap", "", "PCAP file to read (offline mode)")
	port     = flag.Int("port", 7667, "UDP port to filter")
	asBatch  = flag.Bool("decode-commands", true, "Decode payloads as command batches (false prints raw JSON)")
)

func openHandle() (*pcap.Handle, error) {
	if *pcapFile != "" {
		return pcap.OpenOffline(*pcapFile)
	}
	if *iface != "" {
		return pcap.OpenLive(*iface, 65536, true, pcap.BlockForever)
	}
	return nil, fmt.Errorf("one of -iface or -pcap is required")
}

func main() {
	flag.Parse()

	handle, err := openHandle()
	if err != nil {
		log.Fatalf("failed to open capture: %v", err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", *port)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		log.Fatalf("failed to set BPF filter %q: %v", filterStr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	decodeErrs := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Printf("capture stopping (processed %d packets, %d decode errors)", packetCount, decodeErrs)
			return
		case packet := <-packetSource.Packets():
			if packet == nil {
				elapsed := time.Since(startTime)
				log.Printf("capture complete: %d packets in %v (%d decode errors)", packetCount, elapsed, decodeErrs)
				return
			}
			packetCount++

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			ts := packet.Metadata().Timestamp.Format(time.RFC3339Nano)

			if *asBatch {
				var batch command.Batch
				if err := json.Unmarshal(udp.Payload, &batch); err != nil || batch.Validate() != nil {
					decodeErrs++
					continue
				}
				fmt.Printf("%s utime=%d joints=%d %v\n", ts, batch.Utime, batch.NumJoints, batch.JointName[:batch.NumJoints])
				continue
			}

			var raw json.RawMessage
			if err := json.Unmarshal(udp.Payload, &raw); err != nil {
				decodeErrs++
				continue
			}
			out, _ := json.Marshal(raw)
			fmt.Fprintf(os.Stdout, "%s %s\n", ts, out)
		}
	}
}
