package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"github.com/franco-bianco/solanatrade-go/metrics"
)

var (
	ErrNoNodes = errors.New("rpcpool: no nodes configured")
	// ErrNoAvailableNodes means every basic node was backing off, so no basic attempt was made.
	ErrNoAvailableNodes = errors.New("rpcpool: every basic node is backing off")
)

// ExhaustedError is returned when both pools ran out of attempts.
type ExhaustedError struct {
	Basic       error
	Performance error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("Basic nodes failed with: %v. Performance nodes failed with: %v", e.Basic, e.Performance)
}

func (e *ExhaustedError) Unwrap() []error {
	var errs []error
	if e.Basic != nil {
		errs = append(errs, e.Basic)
	}
	if e.Performance != nil {
		errs = append(errs, e.Performance)
	}
	return errs
}

// Transport owns the basic and performance pools for the lifetime of the process.
type Transport struct {
	basic       *Pool
	performance *Pool

	Log     *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	random  func() float64
	headers map[string]string
}

type Option func(*Transport)

func WithLogger(l *logrus.Logger) Option {
	return func(t *Transport) { t.Log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithClock replaces time.Now when computing backoff windows.
func WithClock(now func() time.Time) Option {
	return func(t *Transport) { t.now = now }
}

// WithRandom replaces the jitter source. It must return values in [0, 1).
func WithRandom(r func() float64) Option {
	return func(t *Transport) { t.random = r }
}

// WithHeaders sets extra HTTP headers on every node client (API keys).
func WithHeaders(h map[string]string) Option {
	return func(t *Transport) { t.headers = h }
}

func New(basicURLs, performanceURLs []string, opts ...Option) (*Transport, error) {
	if len(basicURLs) == 0 && len(performanceURLs) == 0 {
		return nil, ErrNoNodes
	}
	t := &Transport{
		Log:    logrus.StandardLogger(),
		now:    time.Now,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = metrics.Discard()
	}
	t.basic = newPool(Basic, basicURLs, t.headers)
	t.performance = newPool(Performance, performanceURLs, t.headers)
	return t, nil
}

func (t *Transport) Basic() *Pool       { return t.basic }
func (t *Transport) Performance() *Pool { return t.performance }

// Call runs fn on the basic pool, falling back to the performance pool.
func Call[T any](ctx context.Context, t *Transport, fn func(context.Context, *rpc.Client) (T, error)) (T, error) {
	var zero T

	basicErr := ErrNoAvailableNodes
	for i := 0; i < maxAttemptsBasic; i++ {
		idx := t.basic.next(t.now())
		// every basic node is backing off
		if idx == -1 {
			break
		}
		res, err := attempt(ctx, t, t.basic, idx, fn)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		basicErr = err
	}

	t.Log.Trace("all basic nodes failed, using performance nodes")
	t.metrics.RPCFallbacks.Inc()
	res, perfErr := CallPerformance(ctx, t, fn)
	if perfErr != nil {
		if ctx.Err() != nil {
			return zero, perfErr
		}
		return zero, &ExhaustedError{Basic: basicErr, Performance: perfErr}
	}
	return res, nil
}

// CallPerformance runs fn on the performance pool only.
func CallPerformance[T any](ctx context.Context, t *Transport, fn func(context.Context, *rpc.Client) (T, error)) (T, error) {
	var zero T
	if t.performance.Len() == 0 {
		return zero, ErrNoNodes
	}

	var lastErr error
	for i := 0; i < maxAttemptsPerformance; i++ {
		idx := t.performance.next(t.now())
		res, err := attempt(ctx, t, t.performance, idx, fn)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

func attempt[T any](ctx context.Context, t *Transport, p *Pool, idx int, fn func(context.Context, *rpc.Client) (T, error)) (T, error) {
	node := p.node(idx)
	start := time.Now()
	res, err := fn(ctx, node.Client)
	t.metrics.RPCCallLatency.WithLabelValues(string(p.tier)).Observe(time.Since(start).Seconds())

	if err == nil {
		p.registerSuccess(idx)
		t.Log.WithFields(logrus.Fields{"tier": p.tier, "node": idx}).Trace("rpc call succeeded")
		return res, nil
	}
	// a cancelled caller says nothing about the node
	if ctx.Err() != nil {
		return res, err
	}

	t.metrics.RPCNodeFailures.WithLabelValues(string(p.tier)).Inc()
	streak := p.registerFailure(idx, t.now(), t.random())
	entry := t.Log.WithFields(logrus.Fields{"tier": p.tier, "node": idx, "url": node.URL})
	if streak == failureStreakWarn {
		entry.Warnf("node failed %d times in a row", failureStreakWarn)
	}
	entry.WithError(err).Trace("rpc call failed")
	return res, err
}

// GetTransaction fetches a confirmed transaction through the performance pool.
func (t *Transport) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	return CallPerformance(ctx, t, func(ctx context.Context, c *rpc.Client) (*rpc.GetTransactionResult, error) {
		return c.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: pointer.ToUint64(0),
		})
	})
}

// SendTransaction submits through the performance pool without preflight.
func (t *Transport) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return CallPerformance(ctx, t, func(ctx context.Context, c *rpc.Client) (solana.Signature, error) {
		return c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight: true,
		})
	})
}

func (t *Transport) GetLatestBlockhash(ctx context.Context) (*rpc.GetLatestBlockhashResult, error) {
	return Call(ctx, t, func(ctx context.Context, c *rpc.Client) (*rpc.GetLatestBlockhashResult, error) {
		return c.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	})
}

func (t *Transport) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return Call(ctx, t, func(ctx context.Context, c *rpc.Client) (uint64, error) {
		res, err := c.GetBalance(ctx, account, rpc.CommitmentConfirmed)
		if err != nil {
			return 0, err
		}
		return res.Value, nil
	})
}

func (t *Transport) GetSlot(ctx context.Context) (uint64, error) {
	return Call(ctx, t, func(ctx context.Context, c *rpc.Client) (uint64, error) {
		return c.GetSlot(ctx, rpc.CommitmentConfirmed)
	})
}
