// liquidity_ops.go
package solanaswapgo

// LiquidityOp represents add/remove-liquidity classification on the AMM.
type LiquidityOp int

const (
	LiquidityNone LiquidityOp = iota
	LiquidityInitialize
	LiquidityAdd
	LiquidityRemove
)

func (op LiquidityOp) String() string {
	switch op {
	case LiquidityInitialize:
		return "initialize"
	case LiquidityAdd:
		return "add"
	case LiquidityRemove:
		return "remove"
	default:
		return "none"
	}
}

// DetectLiquidityOp classifies the first top-level AMM liquidity instruction.
func (p *Parser) DetectLiquidityOp() LiquidityOp {
	for _, instr := range p.tx.Instructions {
		switch {
		case p.isRaydiumInstruction(instr, raydiumInstructionInitialize2):
			return LiquidityInitialize
		case p.isRaydiumInstruction(instr, raydiumInstructionDeposit):
			return LiquidityAdd
		case p.isRaydiumInstruction(instr, raydiumInstructionWithdraw):
			return LiquidityRemove
		}
	}
	return LiquidityNone
}

// Initialize2 accounts used to recover a migrated pool.
const (
	migrationAccounts       = 18
	migrationAmmIndex       = 4
	migrationMintIndex      = 9
	migrationPool1Index     = 10
	migrationPool2Index     = 11
	migrationAuthorityIndex = 17
)

// DetectMigration finds a pool initialization signed by the bonding-curve
// migration authority and returns the new pool's addresses.
func (p *Parser) DetectMigration() (*RaydiumAddresses, bool) {
	for _, instr := range p.tx.Instructions {
		if !p.isRaydiumInstruction(instr, raydiumInstructionInitialize2) {
			continue
		}
		if !p.accountsInRange(instr, migrationAccounts) {
			continue
		}
		if !p.allAccountKeys[instr.Accounts[migrationAuthorityIndex]].Equals(PUMP_FUN_MIGRATION_ID) {
			continue
		}
		return &RaydiumAddresses{
			Mint:  p.allAccountKeys[instr.Accounts[migrationMintIndex]],
			Amm:   p.allAccountKeys[instr.Accounts[migrationAmmIndex]],
			Pool1: p.allAccountKeys[instr.Accounts[migrationPool1Index]],
			Pool2: p.allAccountKeys[instr.Accounts[migrationPool2Index]],
		}, true
	}
	return nil, false
}

func DetectMigration(tx *RawTransaction) (*RaydiumAddresses, bool) {
	if tx == nil || tx.Instructions == nil {
		return nil, false
	}
	return NewTransactionParserFromRaw(tx).DetectMigration()
}

// PoolBalances reads the post-state reserves of every pool swapped against.
// Exactly one side of a pool must hold WSOL; other pools are skipped.
func (p *Parser) PoolBalances() []PoolBalance {
	if !p.complete() {
		return nil
	}
	var out []PoolBalance
	seen := make(map[uint16]int)
	for _, call := range p.raydiumSwapCalls() {
		accounts, ok := p.resolveRaydiumSwap(call.Instruction)
		if !ok {
			continue
		}
		pool1, ok1 := p.postTokenBalance(accounts.Pool1)
		pool2, ok2 := p.postTokenBalance(accounts.Pool2)
		if !ok1 || !ok2 {
			continue
		}
		pool1Native := pool1.Mint.Equals(NATIVE_SOL_MINT_PROGRAM_ID)
		pool2Native := pool2.Mint.Equals(NATIVE_SOL_MINT_PROGRAM_ID)
		if pool1Native == pool2Native {
			continue
		}

		balance := PoolBalance{Amm: p.allAccountKeys[accounts.Amm]}
		if pool1Native {
			balance.SolPool, balance.TokenPool = pool1.Amount, pool2.Amount
		} else {
			balance.SolPool, balance.TokenPool = pool2.Amount, pool1.Amount
		}

		// same pool swapped twice: post state is identical, keep one entry
		if i, dup := seen[accounts.Amm]; dup {
			out[i] = balance
			continue
		}
		seen[accounts.Amm] = len(out)
		out = append(out, balance)
	}
	return out
}

func PoolBalances(tx *RawTransaction) []PoolBalance {
	if tx == nil {
		return nil
	}
	return NewTransactionParserFromRaw(tx).PoolBalances()
}
