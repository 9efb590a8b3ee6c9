package solanaswapgo

// raydiumSwapShape is one of the two historical account lists of SwapBaseIn.
type raydiumSwapShape int

const (
	// 18 accounts, includes the AMM target orders account
	raydiumSwapWithTargetOrders raydiumSwapShape = iota
	// 17 accounts, target orders dropped
	raydiumSwapWithoutTargetOrders
)

type raydiumSwapLayout struct {
	Accounts    int
	Amm         int
	Pool1       int
	Pool2       int
	Source      int
	Destination int
	Wallet      int
}

var raydiumSwapLayouts = [...]raydiumSwapLayout{
	raydiumSwapWithTargetOrders:    {Accounts: 18, Amm: 1, Pool1: 5, Pool2: 6, Source: 15, Destination: 16, Wallet: 17},
	raydiumSwapWithoutTargetOrders: {Accounts: 17, Amm: 1, Pool1: 4, Pool2: 5, Source: 14, Destination: 15, Wallet: 16},
}

func raydiumSwapShapeOf(accounts int) (raydiumSwapShape, bool) {
	for shape, layout := range raydiumSwapLayouts {
		if layout.Accounts == accounts {
			return raydiumSwapShape(shape), true
		}
	}
	return 0, false
}

// raydiumSwapAccounts are the table indexes a SwapBaseIn instruction resolves to.
type raydiumSwapAccounts struct {
	Amm         uint16
	Pool1       uint16
	Pool2       uint16
	Source      uint16
	Destination uint16
	Wallet      uint16
}

func (p *Parser) resolveRaydiumSwap(instr Instruction) (raydiumSwapAccounts, bool) {
	shape, ok := raydiumSwapShapeOf(len(instr.Accounts))
	if !ok || !p.accountsInRange(instr, len(instr.Accounts)) {
		return raydiumSwapAccounts{}, false
	}
	layout := raydiumSwapLayouts[shape]
	return raydiumSwapAccounts{
		Amm:         instr.Accounts[layout.Amm],
		Pool1:       instr.Accounts[layout.Pool1],
		Pool2:       instr.Accounts[layout.Pool2],
		Source:      instr.Accounts[layout.Source],
		Destination: instr.Accounts[layout.Destination],
		Wallet:      instr.Accounts[layout.Wallet],
	}, true
}

// raydiumSwapCall is a SwapBaseIn instruction plus the token instructions it invoked.
type raydiumSwapCall struct {
	Instruction Instruction
	Inner       []Instruction
	Nested      bool
}

// raydiumSwapCalls lists top-level swaps first, then swaps invoked by other programs.
func (p *Parser) raydiumSwapCalls() []raydiumSwapCall {
	if p.raydiumIndex < 0 {
		return nil
	}

	var calls []raydiumSwapCall
	for i, instr := range p.tx.Instructions {
		if !p.isRaydiumInstruction(instr, raydiumInstructionSwapBaseIn) {
			continue
		}
		calls = append(calls, raydiumSwapCall{Instruction: instr, Inner: p.getInnerInstructions(i)})
	}

	for _, group := range p.tx.InnerInstructions {
		for j, instr := range group.Instructions {
			if !p.isRaydiumInstruction(instr, raydiumInstructionSwapBaseIn) {
				continue
			}
			calls = append(calls, raydiumSwapCall{
				Instruction: instr,
				Inner:       directChildren(group.Instructions, j),
				Nested:      true,
			})
		}
	}
	return calls
}

// directChildren returns the instructions invoked by group[parent] itself: the
// following entries one stack level deeper, up to the next sibling.
func directChildren(group []Instruction, parent int) []Instruction {
	height := group[parent].StackHeight
	if height == 0 {
		return nil
	}
	var out []Instruction
	for _, instr := range group[parent+1:] {
		if instr.StackHeight <= height {
			break
		}
		if instr.StackHeight == height+1 {
			out = append(out, instr)
		}
	}
	return out
}

func (p *Parser) processRaydSwap(call raydiumSwapCall) (Trade, bool) {
	accounts, ok := p.resolveRaydiumSwap(call.Instruction)
	if !ok {
		p.Log.Debugf("skipping raydium swap with %d accounts", len(call.Instruction.Accounts))
		return Trade{}, false
	}

	var sourceAmount, destAmount *uint64
	for _, leg := range p.tokenLegs(call.Inner) {
		if leg.Source == accounts.Source {
			if sourceAmount != nil {
				return Trade{}, false
			}
			sourceAmount = &leg.Amount
		}
		if leg.Destination == accounts.Destination {
			if destAmount != nil {
				return Trade{}, false
			}
			destAmount = &leg.Amount
		}
	}
	if sourceAmount == nil || destAmount == nil {
		p.Log.Debugf("skipping raydium swap without both transfer legs in %s", p.tx.Signature)
		return Trade{}, false
	}

	sourceToken, sourceNonNative := p.nonNativeMint(accounts.Source, accounts.Wallet)
	destToken, destNonNative := p.nonNativeMint(accounts.Destination, accounts.Wallet)

	trade := p.newTrade(RAYDIUM)
	trade.Wallet = p.allAccountKeys[accounts.Wallet]
	switch {
	case sourceNonNative && destNonNative:
		return Trade{}, false
	case destNonNative:
		trade.Direction = BUY
		trade.Mint = destToken.Mint
		trade.Lamports = *sourceAmount
		trade.Tokens = *destAmount
	case sourceNonNative:
		trade.Direction = SELL
		trade.Mint = sourceToken.Mint
		trade.Lamports = *destAmount
		trade.Tokens = *sourceAmount
	default:
		return Trade{}, false
	}

	amm := p.allAccountKeys[accounts.Amm]
	pool1 := p.allAccountKeys[accounts.Pool1]
	pool2 := p.allAccountKeys[accounts.Pool2]
	trade.Amm, trade.Pool1, trade.Pool2 = &amm, &pool1, &pool2
	return trade, true
}

func (p *Parser) newTrade(platform SwapType) Trade {
	return Trade{
		Signature: p.tx.Signature.String(),
		Platform:  platform,
		Block:     p.tx.Slot,
		Timestamp: p.tx.BlockTime,
	}
}
