package solanaswapgo

import (
	"encoding/binary"
)

// transferLeg is a token movement between two entries of the account table.
type transferLeg struct {
	Source      uint16
	Destination uint16
	Authority   uint16
	Amount      uint64
}

func (p *Parser) processTransfer(instr Instruction) transferLeg {
	return transferLeg{
		Source:      instr.Accounts[0],
		Destination: instr.Accounts[1],
		Authority:   instr.Accounts[2],
		Amount:      binary.LittleEndian.Uint64(instr.Data[1:9]),
	}
}

// tokenLegs decodes every Transfer and TransferChecked among instrs; anything else is ignored.
func (p *Parser) tokenLegs(instrs []Instruction) []transferLeg {
	var legs []transferLeg
	for _, instr := range instrs {
		switch {
		case p.isTransfer(instr):
			legs = append(legs, p.processTransfer(instr))
		case p.isTransferCheck(instr):
			legs = append(legs, p.processTransferCheck(instr))
		}
	}
	return legs
}

// nonNativeMint finds the non-WSOL mint held by wallet in the token account at index,
// looking at both pre and post balances.
func (p *Parser) nonNativeMint(index uint16, wallet uint16) (TokenBalance, bool) {
	walletKey, exists := p.tx.key(wallet)
	if !exists {
		return TokenBalance{}, false
	}
	for _, balances := range [][]TokenBalance{p.tx.PreTokenBalances, p.tx.PostTokenBalances} {
		for _, b := range balances {
			if b.AccountIndex != index || !b.Owner.Equals(walletKey) {
				continue
			}
			if b.Mint.Equals(NATIVE_SOL_MINT_PROGRAM_ID) {
				continue
			}
			return b, true
		}
	}
	return TokenBalance{}, false
}

func (p *Parser) postTokenBalance(index uint16) (TokenBalance, bool) {
	for _, b := range p.tx.PostTokenBalances {
		if b.AccountIndex == index {
			return b, true
		}
	}
	return TokenBalance{}, false
}
