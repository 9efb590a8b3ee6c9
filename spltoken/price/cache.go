package price

import (
	"fmt"
	"time"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"

	"github.com/dgraph-io/ristretto"
	"github.com/gagliardetto/solana-go"
)

// PoolCache keeps the latest PoolBalance per AMM id; a newer write always replaces an older one.
type PoolCache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

// NewPoolCache holds up to maxPools entries; ttl <= 0 keeps entries until evicted.
func NewPoolCache(maxPools int64, ttl time.Duration) (*PoolCache, error) {
	if maxPools <= 0 {
		maxPools = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxPools * 10,
		MaxCost:            maxPools,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pool cache: %w", err)
	}
	return &PoolCache{c: c, ttl: ttl}, nil
}

func (pc *PoolCache) Put(balance solanaswapgo.PoolBalance) {
	if pc.ttl > 0 {
		pc.c.SetWithTTL(balance.Amm.String(), balance, 1, pc.ttl)
		return
	}
	pc.c.Set(balance.Amm.String(), balance, 1)
}

// PutTransaction stores every pool balance observed in tx.
func (pc *PoolCache) PutTransaction(tx *solanaswapgo.RawTransaction) int {
	balances := solanaswapgo.PoolBalances(tx)
	for _, b := range balances {
		pc.Put(b)
	}
	return len(balances)
}

func (pc *PoolCache) Get(amm solana.PublicKey) (solanaswapgo.PoolBalance, bool) {
	v, ok := pc.c.Get(amm.String())
	if !ok {
		return solanaswapgo.PoolBalance{}, false
	}
	b, ok := v.(solanaswapgo.PoolBalance)
	return b, ok
}

// Wait blocks until buffered writes are visible to Get.
func (pc *PoolCache) Wait() { pc.c.Wait() }

func (pc *PoolCache) Close() { pc.c.Close() }

// Quote prices amountIn against the cached pool. Buying spends lamports for tokens.
func (pc *PoolCache) Quote(amm solana.PublicKey, amountIn uint64, isBuy bool) (uint64, error) {
	b, ok := pc.Get(amm)
	if !ok {
		return 0, fmt.Errorf("no pool balance cached for %s", amm)
	}
	if isBuy {
		return GetOutAmount(b.SolPool, b.TokenPool, amountIn, DefaultFeeRate), nil
	}
	return GetOutAmount(b.TokenPool, b.SolPool, amountIn, DefaultFeeRate), nil
}
