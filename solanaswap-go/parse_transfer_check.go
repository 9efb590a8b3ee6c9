package solanaswapgo

import (
	"encoding/binary"
)

// TransferChecked accounts: [source, mint, destination, authority]
func (p *Parser) processTransferCheck(instr Instruction) transferLeg {
	return transferLeg{
		Source:      instr.Accounts[0],
		Destination: instr.Accounts[2],
		Authority:   instr.Accounts[3],
		Amount:      binary.LittleEndian.Uint64(instr.Data[1:9]),
	}
}
