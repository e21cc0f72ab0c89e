// internal/uplink/fieldbus/server.go
package fieldbus

import (
	"encoding/binary"

	"github.com/tbrandon/mbserver"
)

// attachBank wires a server so holding-register reads are answered from
// the gateway-owned bank instead of the server's built-in array. The
// bank stays the single owner of the register state; the server only
// ever sees copies.
func attachBank(srv *mbserver.Server, bank *Bank) {
	srv.RegisterFunctionHandler(3, readHoldingHandler(bank))
}

func readHoldingHandler(bank *Bank) func(*mbserver.Server, mbserver.Framer) ([]byte, *mbserver.Exception) {
	return func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		data := frame.GetData()
		if len(data) < 4 {
			return nil, &mbserver.IllegalDataValue
		}

		start := int(binary.BigEndian.Uint16(data[0:2]))
		qty := int(binary.BigEndian.Uint16(data[2:4]))
		if qty < 1 || qty > 125 {
			return nil, &mbserver.IllegalDataValue
		}

		regs, ok := bank.Read(start, qty)
		if !ok {
			return nil, &mbserver.IllegalDataAddress
		}

		return append([]byte{byte(len(regs) * 2)}, mbserver.Uint16ToBytes(regs)...), &mbserver.Success
	}
}
