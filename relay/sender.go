// Package relay submits signed transactions to third party relays: the Jito block
// engine as a one transaction bundle, and Nozomi as a plain transaction. A relay
// acknowledging receipt is all a send reports; inclusion is confirmed elsewhere.
package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/franco-bianco/solanatrade-go/metrics"
)

type Kind string

const (
	Jito   Kind = "jito"
	Nozomi Kind = "nozomi"
)

const (
	DefaultRequestsPerEndpoint = 5
	maxAttempts                = 3
	// queued sends that get logged as rate limit pressure
	queueWarn = 8

	jitoBundlePath = "/api/v1/bundles"
)

var (
	ErrNoEndpoints       = errors.New("relay: no endpoints configured")
	ErrAllAttemptsFailed = errors.New("relay: all attempts failed")
)

// Sender round robins over a relay's endpoints behind one rate limiter.
type Sender struct {
	kind      Kind
	method    string
	endpoints []string

	limiter *rate.Limiter
	http    *httpClient

	mu   sync.Mutex
	next int

	waiting atomic.Int64

	Log     *logrus.Logger
	metrics *metrics.Metrics
}

type Option func(*Sender)

func WithLogger(l *logrus.Logger) Option {
	return func(s *Sender) { s.Log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sender) { s.metrics = m }
}

// WithRequestsPerEndpoint sets the per second admission rate contributed by each endpoint.
func WithRequestsPerEndpoint(n int) Option {
	return func(s *Sender) {
		if n <= 0 {
			n = DefaultRequestsPerEndpoint
		}
		burst := n * len(s.endpoints)
		s.limiter = rate.NewLimiter(rate.Limit(burst), burst)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Sender) { s.http = newHTTP(d) }
}

// NewJito builds a bundle sender. Hosts are block engine host names; a value that
// already carries a scheme is used as the base URL.
func NewJito(hosts []string, opts ...Option) (*Sender, error) {
	endpoints := make([]string, 0, len(hosts))
	for _, h := range hosts {
		endpoints = append(endpoints, JitoBundleURL(h))
	}
	return newSender(Jito, "sendBundle", endpoints, opts...)
}

// NewNozomi builds a single transaction sender. URLs are used as given.
func NewNozomi(urls []string, opts ...Option) (*Sender, error) {
	return newSender(Nozomi, "sendTransaction", urls, opts...)
}

func JitoBundleURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host + jitoBundlePath
	}
	return "https://" + host + jitoBundlePath
}

func newSender(kind Kind, method string, endpoints []string, opts ...Option) (*Sender, error) {
	var cleaned []string
	for _, e := range endpoints {
		if e = strings.TrimSpace(e); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoEndpoints)
	}

	burst := DefaultRequestsPerEndpoint * len(cleaned)
	s := &Sender{
		kind:      kind,
		method:    method,
		endpoints: cleaned,
		limiter:   rate.NewLimiter(rate.Limit(burst), burst),
		http:      newHTTP(10 * time.Second),
		Log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.Discard()
	}
	return s, nil
}

func (s *Sender) Kind() Kind { return s.kind }

func (s *Sender) nextEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep := s.endpoints[s.next]
	s.next = (s.next + 1) % len(s.endpoints)
	return ep
}

// admit blocks until the rate limiter lets one more request through.
func (s *Sender) admit(ctx context.Context) error {
	n := s.waiting.Add(1)
	s.metrics.RelayQueueWaiting.WithLabelValues(string(s.kind)).Set(float64(n))
	defer func() {
		s.metrics.RelayQueueWaiting.WithLabelValues(string(s.kind)).Set(float64(s.waiting.Add(-1)))
	}()

	if n >= queueWarn {
		s.Log.WithField("relay", s.kind).Warnf("rate limit pressure: %d sends waiting", n)
	}
	return s.limiter.Wait(ctx)
}

// Send submits a signed transaction, trying up to three endpoints in rotation.
// The error only says the relay never acknowledged it.
func (s *Sender) Send(ctx context.Context, tx *solana.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	if err := s.admit(ctx); err != nil {
		return err
	}

	var params []interface{}
	switch s.kind {
	case Jito:
		params = []interface{}{[]string{encoded}, map[string]string{"encoding": "base64"}}
	case Nozomi:
		params = []interface{}{encoded, map[string]string{"encoding": "base64"}}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ep := s.nextEndpoint()
		res, err := s.http.call(ctx, ep, s.method, params)
		if err == nil {
			s.metrics.RelaySends.WithLabelValues(string(s.kind), "ok").Inc()
			s.Log.WithFields(logrus.Fields{"relay": s.kind, "result": string(res)}).Debug("transaction sent to relay")
			s.checkAck(res, tx)
			return nil
		}
		s.metrics.RelaySends.WithLabelValues(string(s.kind), "error").Inc()
		s.Log.WithFields(logrus.Fields{"relay": s.kind, "endpoint": ep, "attempt": attempt + 1}).WithError(err).Error("relay send failed")
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: %w: %v", s.kind, ErrAllAttemptsFailed, lastErr)
}

// checkAck warns when a transaction relay acknowledges a signature other than ours.
func (s *Sender) checkAck(res jsoniter.RawMessage, tx *solana.Transaction) {
	if s.kind != Nozomi || len(tx.Signatures) == 0 {
		return
	}
	var ack string
	if err := json.Unmarshal(res, &ack); err != nil {
		return
	}
	sig, err := base58.Decode(ack)
	if err != nil || !bytes.Equal(sig, tx.Signatures[0][:]) {
		s.Log.WithFields(logrus.Fields{"relay": s.kind, "ack": ack, "signature": tx.Signatures[0]}).Warn("relay acknowledged an unexpected signature")
	}
}

// BundleStatus is one entry of getInflightBundleStatuses.
type BundleStatus struct {
	BundleID   string  `json:"bundle_id"`
	Status     string  `json:"status"`
	LandedSlot *uint64 `json:"landed_slot"`
}

type bundleStatusesResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []BundleStatus `json:"value"`
}

// BundleStatuses asks the next block engine for the in-flight status of bundles.
func (s *Sender) BundleStatuses(ctx context.Context, bundleIDs []string) ([]BundleStatus, error) {
	if s.kind != Jito {
		return nil, fmt.Errorf("bundle statuses are not served by %s", s.kind)
	}
	res, err := s.http.call(ctx, s.nextEndpoint(), "getInflightBundleStatuses", []interface{}{bundleIDs})
	if err != nil {
		return nil, err
	}
	var out bundleStatusesResult
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, fmt.Errorf("decode bundle statuses: %w", err)
	}
	return out.Value, nil
}
