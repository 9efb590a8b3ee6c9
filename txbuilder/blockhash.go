package txbuilder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

const (
	blockhashRefreshInterval = 10 * time.Second
	blockhashRetryInterval   = 3 * time.Second
)

var ErrNoBlockhash = errors.New("no recent blockhash fetched yet")

// BlockhashSource is satisfied by *rpcpool.Transport.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context) (*rpc.GetLatestBlockhashResult, error)
}

// BlockhashCache keeps the most recent blockhash so building a transaction never
// waits on the network.
type BlockhashCache struct {
	src BlockhashSource
	Log *logrus.Logger

	mu                   sync.RWMutex
	blockhash            solana.Hash
	lastValidBlockHeight uint64
	fetchedAt            time.Time
}

func NewBlockhashCache(src BlockhashSource, log *logrus.Logger) *BlockhashCache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BlockhashCache{src: src, Log: log}
}

// Refresh fetches a blockhash once.
func (c *BlockhashCache) Refresh(ctx context.Context) error {
	res, err := c.src.GetLatestBlockhash(ctx)
	if err != nil {
		return err
	}
	if res == nil || res.Value == nil {
		return errors.New("failed to get latest blockhash")
	}

	c.mu.Lock()
	c.blockhash = res.Value.Blockhash
	c.lastValidBlockHeight = res.Value.LastValidBlockHeight
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Run refreshes every 10 seconds, or 3 seconds after a failed fetch, until ctx
// is done.
func (c *BlockhashCache) Run(ctx context.Context) {
	for {
		wait := blockhashRefreshInterval
		if err := c.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.Log.WithError(err).Trace("error getting latest blockhash")
			wait = blockhashRetryInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Latest returns the cached blockhash, or ErrNoBlockhash before the first fetch.
func (c *BlockhashCache) Latest() (solana.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.blockhash.IsZero() {
		return solana.Hash{}, ErrNoBlockhash
	}
	return c.blockhash, nil
}

// Age is how long ago the cached blockhash was fetched.
func (c *BlockhashCache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() {
		return 0
	}
	return time.Since(c.fetchedAt)
}
