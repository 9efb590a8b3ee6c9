package rpcpool

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franco-bianco/solanatrade-go/metrics"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTransport(t *testing.T, basic, perf []string, opts ...Option) (*Transport, *fakeClock, *metrics.Metrics) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := metrics.New("test", prometheus.NewRegistry())
	logger, _ := logtest.NewNullLogger()
	all := append([]Option{
		WithClock(clock.now),
		WithRandom(func() float64 { return 0.5 }),
		WithMetrics(m),
		WithLogger(logger),
	}, opts...)
	tr, err := New(basic, perf, all...)
	require.NoError(t, err)
	return tr, clock, m
}

// urlOf maps a client handed to a call back to its node URL.
func urlOf(tr *Transport, c *rpc.Client) string {
	for _, p := range []*Pool{tr.basic, tr.performance} {
		for _, n := range p.nodes {
			if n.Client == c {
				return n.URL
			}
		}
	}
	return ""
}

func TestBackoffDuration_Bounds(t *testing.T) {
	for k := 1; k <= 8; k++ {
		base := float64(500*time.Millisecond) * float64(int(1)<<k)
		for _, r := range []float64{0, 0.25, 0.5, 0.75, 0.999999} {
			d := float64(backoffDuration(k, r))
			assert.GreaterOrEqual(t, d, base*0.875, "k=%d r=%v", k, r)
			assert.LessOrEqual(t, d, base*1.125, "k=%d r=%v", k, r)
		}
	}
	assert.Equal(t, time.Second, backoffDuration(1, 0.5))
	assert.Greater(t, backoffDuration(1000, 0.5), time.Duration(0))
}

func TestNew_NoNodes(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrNoNodes)
}

func TestCall_RoundRobinSkipsBackingOffNodes(t *testing.T) {
	tr, clock, _ := newTestTransport(t, []string{"a", "b", "c"}, []string{"p"})

	var calls []string
	failB := true
	fn := func(_ context.Context, c *rpc.Client) (string, error) {
		u := urlOf(tr, c)
		calls = append(calls, u)
		if u == "b" && failB {
			return "", errors.New("b down")
		}
		return u, nil
	}
	ctx := context.Background()

	// the cursor starts at 0 and advances before picking
	got, err := Call(ctx, tr, fn)
	require.NoError(t, err)
	assert.Equal(t, "c", got)
	assert.Equal(t, []string{"b", "c"}, calls)

	health := tr.Basic().Health()
	assert.Equal(t, 1, health[1].ConsecutiveFailures)
	assert.Equal(t, clock.t.Add(time.Second), health[1].NextAvailable)

	got, err = Call(ctx, tr, fn)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	// b is still backing off
	got, err = Call(ctx, tr, fn)
	require.NoError(t, err)
	assert.Equal(t, "c", got)

	clock.advance(time.Second + time.Millisecond)
	failB = false
	got, err = Call(ctx, tr, fn)
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	got, err = Call(ctx, tr, fn)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.Equal(t, 0, tr.Basic().Health()[1].ConsecutiveFailures)
	assert.True(t, tr.Basic().Health()[1].NextAvailable.IsZero())
}

func TestCall_FallsBackWhenBasicNodesBackOff(t *testing.T) {
	tr, _, m := newTestTransport(t, []string{"a", "b"}, []string{"p"})

	var calls []string
	fn := func(_ context.Context, c *rpc.Client) (string, error) {
		u := urlOf(tr, c)
		calls = append(calls, u)
		if u != "p" {
			return "", errors.New(u + " down")
		}
		return u, nil
	}

	got, err := Call(context.Background(), tr, fn)
	require.NoError(t, err)
	assert.Equal(t, "p", got)
	// the third basic attempt finds both nodes backing off and falls back
	assert.Equal(t, []string{"b", "a", "p"}, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCFallbacks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RPCNodeFailures.WithLabelValues("basic")))
}

func TestCall_ExhaustedErrorCarriesBothCauses(t *testing.T) {
	tr, _, _ := newTestTransport(t, []string{"a", "b", "c", "d"}, []string{"p"})

	errBasic := errors.New("basic boom")
	errPerf := errors.New("perf boom")
	perfCalls := 0
	fn := func(_ context.Context, c *rpc.Client) (int, error) {
		if urlOf(tr, c) == "p" {
			perfCalls++
			return 0, errPerf
		}
		return 0, errBasic
	}

	_, err := Call(context.Background(), tr, fn)
	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "Basic nodes failed with: basic boom. Performance nodes failed with: perf boom", err.Error())
	assert.ErrorIs(t, err, errBasic)
	assert.ErrorIs(t, err, errPerf)
	// a lone performance node is retried even while it backs off
	assert.Equal(t, maxAttemptsPerformance, perfCalls)
	assert.Equal(t, 3, tr.Basic().Health()[1].ConsecutiveFailures+tr.Basic().Health()[2].ConsecutiveFailures+tr.Basic().Health()[3].ConsecutiveFailures)
}

func TestCallPerformance_NoNodes(t *testing.T) {
	tr, _, _ := newTestTransport(t, []string{"a"}, nil)
	_, err := CallPerformance(context.Background(), tr, func(context.Context, *rpc.Client) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrNoNodes)
}

func TestCall_CancelledContextDoesNotPenalizeNode(t *testing.T) {
	tr, _, _ := newTestTransport(t, []string{"a"}, []string{"p"})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Call(ctx, tr, func(ctx context.Context, _ *rpc.Client) (int, error) {
		calls++
		cancel()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, tr.Basic().Health()[0].ConsecutiveFailures)
}

func TestCall_WarnsOnFailureStreak(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	tr, _, _ := newTestTransport(t, nil, []string{"p"}, WithLogger(logger))

	_, err := CallPerformance(context.Background(), tr, func(context.Context, *rpc.Client) (int, error) {
		return 0, errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, maxAttemptsPerformance, tr.Performance().Health()[0].ConsecutiveFailures)

	warns := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warns++
		}
	}
	assert.Equal(t, 1, warns)
}

func TestGetSlot_OverHTTP(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "bad gateway")
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"getSlot"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":321}`)
	}))
	defer good.Close()

	tr, _, m := newTestTransport(t, []string{bad.URL}, []string{good.URL})
	slot, err := tr.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(321), slot)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCFallbacks))
	assert.Equal(t, 1, tr.Basic().Health()[0].ConsecutiveFailures)
}
