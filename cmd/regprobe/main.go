// cmd/regprobe/main.go
//
// regprobe reads the register map back from a running gateway over the
// network fieldbus listener and prints it the way a polling client
// sees it: raw registers first, then the decoded per-device blocks.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tamzrod/ct-gateway/internal/uplink/fieldbus"
)

func main() {
	var (
		endpoint = flag.String("endpoint", "127.0.0.1:1502", "host:port of the fieldbus network listener")
		timeout  = flag.Duration("timeout", 5*time.Second, "request timeout")
		devices  = flag.Int("devices", fieldbus.DefaultMaxDevices, "device blocks to read")
		raw      = flag.Bool("raw", false, "also dump raw register values")
	)
	flag.Parse()

	if *devices < 1 || *devices > fieldbus.DefaultMaxDevices {
		fmt.Fprintf(os.Stderr, "regprobe: -devices must be 1..%d\n", fieldbus.DefaultMaxDevices)
		os.Exit(2)
	}

	start := uint16(fieldbus.FirstBase)
	qty := uint16(*devices * fieldbus.BaseStride)

	regs, err := fieldbus.Probe(*endpoint, *timeout, start, qty)
	if err != nil {
		fmt.Fprintln(os.Stderr, "regprobe:", err)
		os.Exit(1)
	}

	if *raw {
		for i, v := range regs {
			if i%10 == 0 {
				fmt.Printf("\n%5d:", int(start)+i)
			}
			fmt.Printf(" %5d", v)
		}
		fmt.Println()
		fmt.Println()
	}

	for d := 0; d < *devices; d++ {
		base := d * fieldbus.BaseStride
		block := regs[base : base+fieldbus.BaseStride]

		var id [4]uint16
		copy(id[:], block[:4])
		decoded := fieldbus.DecodeDeviceID(id)
		if decoded == "0000000000000000" {
			continue // empty slot
		}

		fmt.Printf("device %d @ %d  id=%s\n", d+1, int(start)+base, decoded)
		for ch := 0; ch < 8; ch++ {
			reg := block[4+ch]
			fmt.Printf("  ch%d reg=%5d value=%.2f\n", ch, reg, fieldbus.UnscaleValue(reg))
		}
	}
}
