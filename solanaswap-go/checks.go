package solanaswapgo

import (
	"github.com/gagliardetto/solana-go"
)

const (
	tokenInstructionTransfer        = 3
	tokenInstructionTransferChecked = 12

	raydiumInstructionInitialize2 = 1
	raydiumInstructionDeposit     = 3
	raydiumInstructionWithdraw    = 4
	raydiumInstructionSwapBaseIn  = 9
)

func (p *Parser) programID(instr Instruction) (solana.PublicKey, bool) {
	return p.tx.key(instr.ProgramIDIndex)
}

// Only the legacy Token program; pools on this AMM never hold Token-2022 mints.
func (p *Parser) isTokenProgram(instr Instruction) bool {
	progID, ok := p.programID(instr)
	return ok && progID.Equals(solana.TokenProgramID)
}

func (p *Parser) accountsInRange(instr Instruction, n int) bool {
	if len(instr.Accounts) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if int(instr.Accounts[i]) >= len(p.allAccountKeys) {
			return false
		}
	}
	return true
}

// isTransfer: Token Program "Transfer" (3)
func (p *Parser) isTransfer(instr Instruction) bool {
	if !p.isTokenProgram(instr) || len(instr.Data) < 9 {
		return false
	}
	return instr.Data[0] == tokenInstructionTransfer && p.accountsInRange(instr, 3)
}

// isTransferCheck: Token Program "TransferChecked" (12)
func (p *Parser) isTransferCheck(instr Instruction) bool {
	if !p.isTokenProgram(instr) || len(instr.Data) < 9 {
		return false
	}
	return instr.Data[0] == tokenInstructionTransferChecked && p.accountsInRange(instr, 4)
}

func (p *Parser) isRaydiumInstruction(instr Instruction, discriminant byte) bool {
	if p.raydiumIndex < 0 || int(instr.ProgramIDIndex) != p.raydiumIndex {
		return false
	}
	return len(instr.Data) > 0 && instr.Data[0] == discriminant
}

func (p *Parser) isPumpFunTradeEventInstruction(instr Instruction) bool {
	if p.pumpFunIndex < 0 || int(instr.ProgramIDIndex) != p.pumpFunIndex {
		return false
	}
	return len(instr.Data) == PumpfunTradeEventSize
}
