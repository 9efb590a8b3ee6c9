package solanaswapgo

// TransactionFee is the stated fee plus the net gain of every fee-paying account
// (relay tips, bonding-curve fee recipient).
func (p *Parser) TransactionFee() int64 {
	total := int64(p.tx.Fee)
	for i, key := range p.allAccountKeys {
		if i >= len(p.tx.PreBalances) || i >= len(p.tx.PostBalances) {
			break
		}
		if IsFeePayingAddress(key) {
			total += int64(p.tx.PostBalances[i]) - int64(p.tx.PreBalances[i])
		}
	}
	return total
}

// assignFees splits the transaction fee evenly across trades; the remainder is dropped.
func (p *Parser) assignFees(trades []Trade) {
	share := p.TransactionFee() / int64(len(trades))
	for i := range trades {
		fee := share
		trades[i].FeeLamports = &fee
	}
}
