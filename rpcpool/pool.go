// Package rpcpool spreads RPC calls over two pools of Solana nodes. Calls go to the
// basic pool first and fall back to the performance pool once every basic node is
// backing off or the basic attempts are used up.
package rpcpool

import (
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

type Tier string

const (
	Basic       Tier = "basic"
	Performance Tier = "performance"
)

const (
	maxAttemptsBasic       = 3
	maxAttemptsPerformance = 6

	backoffBase = 500 * time.Millisecond
	// failure streak length that gets logged
	failureStreakWarn = 5
	// keeps the window inside time.Duration
	maxBackoffExponent = 30
)

// Node is one RPC endpoint and its health.
type Node struct {
	URL    string
	Client *rpc.Client

	consecutiveFailures int
	nextAvailable       time.Time
}

// Pool is an ordered node list with a round robin cursor.
type Pool struct {
	tier  Tier
	mu    sync.Mutex
	nodes []*Node
	index int
}

func newPool(tier Tier, urls []string, headers map[string]string) *Pool {
	p := &Pool{tier: tier}
	for _, u := range urls {
		var c *rpc.Client
		if len(headers) > 0 {
			c = rpc.NewWithHeaders(u, headers)
		} else {
			c = rpc.New(u)
		}
		p.nodes = append(p.nodes, &Node{URL: u, Client: c})
	}
	return p
}

func (p *Pool) Len() int { return len(p.nodes) }

// next advances the cursor to the next node whose backoff has passed. When none
// has, the basic pool reports -1 and the performance pool keeps the node it landed on.
func (p *Pool) next(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.nodes)
	if n == 0 {
		return -1
	}
	for i := 0; i < n; i++ {
		p.index = (p.index + 1) % n
		if p.nodes[p.index].nextAvailable.Before(now) {
			return p.index
		}
	}
	if p.tier == Performance {
		return p.index
	}
	return -1
}

func (p *Pool) node(i int) *Node {
	return p.nodes[i]
}

// registerFailure returns the node's new streak length.
func (p *Pool) registerFailure(i int, now time.Time, r float64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	node := p.nodes[i]
	node.consecutiveFailures++
	node.nextAvailable = now.Add(backoffDuration(node.consecutiveFailures, r))
	return node.consecutiveFailures
}

func (p *Pool) registerSuccess(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	node := p.nodes[i]
	node.consecutiveFailures = 0
	node.nextAvailable = time.Time{}
}

// NodeHealth is a point in time copy of a node's health.
type NodeHealth struct {
	URL                 string    `json:"url"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	NextAvailable       time.Time `json:"nextAvailable"`
}

func (p *Pool) Health() []NodeHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]NodeHealth, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, NodeHealth{
			URL:                 n.URL,
			ConsecutiveFailures: n.consecutiveFailures,
			NextAvailable:       n.nextAvailable,
		})
	}
	return out
}

// backoffDuration is 500ms * 2^failures with up to 12.5% jitter either way.
// r is a uniform sample in [0, 1).
func backoffDuration(failures int, r float64) time.Duration {
	if failures > maxBackoffExponent {
		failures = maxBackoffExponent
	}
	base := float64(backoffBase/time.Millisecond) * math.Pow(2, float64(failures))
	jitter := base * (0.5 - r) / 4
	ms := math.Floor(base + jitter)
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}
