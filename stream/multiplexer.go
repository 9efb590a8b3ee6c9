// Package stream fans Yellowstone geyser updates out to wallet, coin and signature
// subscribers, and answers "did this transaction land" questions from a short lived
// cache of recent signatures and slot statuses.
package stream

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/sirupsen/logrus"

	"github.com/franco-bianco/solanatrade-go/metrics"
	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
)

const (
	DefaultConfirmationTimeout     = 60 * time.Second
	DefaultSlotConfirmationTimeout = 60 * time.Second
	DefaultCacheRetention          = 60 * time.Second
	DefaultReconnectDelay          = 500 * time.Millisecond
	DefaultResubscribeDelay        = 10 * time.Second
)

var (
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrStreamClosed        = errors.New("stream closed")
)

// SlotRejectedError means the slot a transaction landed in was marked dead.
type SlotRejectedError struct {
	Slot   uint64
	Reason string
}

func (e *SlotRejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("slot %d rejected", e.Slot)
	}
	return fmt.Sprintf("slot %d rejected: %s", e.Slot, e.Reason)
}

type Config struct {
	ConfirmationTimeout     time.Duration
	SlotConfirmationTimeout time.Duration
	CacheRetention          time.Duration
	ReconnectDelay          time.Duration
	ResubscribeDelay        time.Duration
	// CachedWallets are watched on a second connection that only feeds the
	// signature cache and signature subscribers.
	CachedWallets []solana.PublicKey
}

func (c *Config) setDefaults() {
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if c.SlotConfirmationTimeout <= 0 {
		c.SlotConfirmationTimeout = DefaultSlotConfirmationTimeout
	}
	if c.CacheRetention <= 0 {
		c.CacheRetention = DefaultCacheRetention
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ResubscribeDelay <= 0 {
		c.ResubscribeDelay = DefaultResubscribeDelay
	}
}

type SlotStatus string

const (
	SlotProcessed SlotStatus = "processed"
	SlotConfirmed SlotStatus = "confirmed"
	SlotDead      SlotStatus = "dead"
)

// geyser slot status values
const (
	geyserSlotProcessed = 0
	geyserSlotConfirmed = 1
	geyserSlotFinalized = 2
	geyserSlotDead      = 6
)

type slotState struct {
	status SlotStatus
	reason string
}

// index maps an address to the subscribers interested in it. It is never mutated
// after publication; every change builds a new one.
type index struct {
	wallets    map[solana.PublicKey][]*subscriber
	mints      map[solana.PublicKey][]*subscriber
	signatures map[solana.Signature][]*subscriber
}

type slotWaiter struct {
	done chan error
}

// Multiplexer owns the subscriber registry and caches for the lifetime of the process.
type Multiplexer struct {
	Log     *logrus.Logger
	metrics *metrics.Metrics
	cfg     Config

	observe func(*solanaswapgo.RawTransaction)

	mu          sync.Mutex
	subscribers map[string]*subscriber
	idx         atomic.Pointer[index]

	slotMu      sync.Mutex
	slotWaiters map[uint64][]*slotWaiter

	signatures  *expirable.LRU[solana.Signature, *txUpdate]
	slots       *expirable.LRU[uint64, slotState]
	highestSlot atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

type Option func(*Multiplexer)

func WithLogger(l *logrus.Logger) Option {
	return func(m *Multiplexer) { m.Log = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Multiplexer) { m.metrics = mt }
}

// WithTransactionObserver calls fn with every decodable transaction from the primary
// connection. fn runs on the dispatch goroutine and must not block.
func WithTransactionObserver(fn func(*solanaswapgo.RawTransaction)) Option {
	return func(m *Multiplexer) { m.observe = fn }
}

func New(cfg Config, opts ...Option) *Multiplexer {
	cfg.setDefaults()
	m := &Multiplexer{
		Log:         logrus.StandardLogger(),
		cfg:         cfg,
		subscribers: make(map[string]*subscriber),
		slotWaiters: make(map[uint64][]*slotWaiter),
		signatures:  expirable.NewLRU[solana.Signature, *txUpdate](0, nil, cfg.CacheRetention),
		slots:       expirable.NewLRU[uint64, slotState](0, nil, cfg.CacheRetention),
		closed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.Discard()
	}
	m.idx.Store(&index{})
	return m
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SubscribeWallet calls back with the trades wallet makes. The returned function
// unsubscribes and may be called any number of times.
func (m *Multiplexer) SubscribeWallet(wallet solana.PublicKey, callback func(WalletUpdate)) func() {
	return m.add(&subscriber{form: FormWallet, key: wallet, onWallet: callback})
}

// SubscribeMint calls back with price observations and the migration of mint.
func (m *Multiplexer) SubscribeMint(mint solana.PublicKey, callback func(CoinUpdate)) func() {
	return m.add(&subscriber{form: FormCoin, key: mint, onCoin: callback})
}

// SubscribeSignature calls back when sig is seen on either connection. It stays
// registered until unsubscribed.
func (m *Multiplexer) SubscribeSignature(sig solana.Signature, callback func(SignatureUpdate)) func() {
	return m.add(&subscriber{form: FormSignature, signature: sig, onSignature: callback})
}

// SubscribeTimedCoin forwards migrations of mint immediately and, every interval,
// the last seen price or a null update when no price was seen yet. Interval
// callbacks run on their own goroutine.
func (m *Multiplexer) SubscribeTimedCoin(mint solana.PublicKey, interval time.Duration, callback func(CoinUpdate)) func() {
	var (
		mu   sync.Mutex
		last *CoinUpdate
	)
	unsubscribe := m.SubscribeMint(mint, func(u CoinUpdate) {
		switch u.Kind {
		case CoinPrice:
			mu.Lock()
			last = &u
			mu.Unlock()
		case CoinMigration:
			callback(u)
		}
	})

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				mu.Lock()
				u := CoinUpdate{Kind: CoinNull}
				if last != nil {
					u = *last
				}
				mu.Unlock()
				callback(u)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			unsubscribe()
		})
	}
}

func (m *Multiplexer) add(s *subscriber) func() {
	s.id = newID()
	s.active.Store(true)

	m.mu.Lock()
	m.subscribers[s.id] = s
	m.rebuildLocked()
	m.mu.Unlock()

	m.metrics.StreamSubscribers.WithLabelValues(string(s.form)).Inc()
	m.Log.WithFields(logrus.Fields{"form": s.form, "id": s.id}).Trace("subscribed")

	var once sync.Once
	return func() {
		once.Do(func() { m.remove(s) })
	}
}

func (m *Multiplexer) remove(s *subscriber) {
	// stops an in-flight dispatch holding the old index
	s.active.Store(false)

	m.mu.Lock()
	delete(m.subscribers, s.id)
	m.rebuildLocked()
	m.mu.Unlock()

	m.metrics.StreamSubscribers.WithLabelValues(string(s.form)).Dec()
	m.Log.WithFields(logrus.Fields{"form": s.form, "id": s.id}).Trace("unsubscribed")
}

func (m *Multiplexer) rebuildLocked() {
	next := &index{
		wallets:    make(map[solana.PublicKey][]*subscriber),
		mints:      make(map[solana.PublicKey][]*subscriber),
		signatures: make(map[solana.Signature][]*subscriber),
	}
	for _, s := range m.subscribers {
		switch s.form {
		case FormWallet:
			next.wallets[s.key] = append(next.wallets[s.key], s)
		case FormCoin:
			next.mints[s.key] = append(next.mints[s.key], s)
		case FormSignature:
			next.signatures[s.signature] = append(next.signatures[s.signature], s)
		}
	}
	m.idx.Store(next)
}

// dispatch routes one update received on conn. Each connection calls it from a
// single goroutine, which keeps per connection ordering.
func (m *Multiplexer) dispatch(conn Connection, update *pb.SubscribeUpdate) {
	switch u := update.GetUpdateOneof().(type) {
	case *pb.SubscribeUpdate_Slot:
		m.metrics.StreamUpdates.WithLabelValues("slot").Inc()
		m.handleSlot(u.Slot)
	case *pb.SubscribeUpdate_Transaction:
		m.metrics.StreamUpdates.WithLabelValues("transaction").Inc()
		if u.Transaction.GetTransaction() == nil {
			return
		}
		tx := newTxUpdate(u.Transaction, m.Log, m.countTrades)
		if conn == CachedWallets {
			m.handleCachedTransaction(tx)
			return
		}
		m.handleTransaction(tx)
	}
}

func (m *Multiplexer) countTrades(trades []solanaswapgo.Trade) {
	for _, t := range trades {
		m.metrics.ExtractedTrades.WithLabelValues(string(t.Platform)).Inc()
	}
}

func (m *Multiplexer) handleTransaction(tx *txUpdate) {
	idx := m.idx.Load()

	var waiters []*subscriber
	seen := make(map[string]struct{})
	collect := func(subs []*subscriber) {
		for _, s := range subs {
			if _, dup := seen[s.id]; dup {
				continue
			}
			seen[s.id] = struct{}{}
			waiters = append(waiters, s)
		}
	}
	for _, k := range tx.accountKeys() {
		if len(k) != solana.PublicKeyLength {
			continue
		}
		key := solana.PublicKeyFromBytes(k)
		collect(idx.wallets[key])
		collect(idx.mints[key])
	}
	collect(idx.signatures[tx.signature])

	for _, s := range waiters {
		s.deliver(tx)
	}
	if m.observe != nil {
		if raw := tx.Raw(); raw != nil {
			m.observe(raw)
		}
	}
}

// handleCachedTransaction remembers the transaction for late confirmation lookups
// and serves signature subscribers only.
func (m *Multiplexer) handleCachedTransaction(tx *txUpdate) {
	if tx.signature.IsZero() {
		return
	}
	m.signatures.Add(tx.signature, tx)
	for _, s := range m.idx.Load().signatures[tx.signature] {
		s.deliver(tx)
	}
}

func (m *Multiplexer) handleSlot(u *pb.SubscribeUpdateSlot) {
	slot := u.GetSlot()
	if slot > m.highestSlot.Load() {
		m.highestSlot.Store(slot)
		m.metrics.HighestSlotSeen.Set(float64(slot))
	}

	switch int32(u.GetStatus()) {
	case geyserSlotProcessed:
		// never downgrade a slot that already settled
		if _, ok := m.slots.Peek(slot); !ok {
			m.slots.Add(slot, slotState{status: SlotProcessed})
		}
	case geyserSlotConfirmed, geyserSlotFinalized:
		m.slots.Add(slot, slotState{status: SlotConfirmed})
		m.resolveSlot(slot, nil)
	case geyserSlotDead:
		reason := u.GetDeadError()
		m.slots.Add(slot, slotState{status: SlotDead, reason: reason})
		m.resolveSlot(slot, &SlotRejectedError{Slot: slot, Reason: reason})
	}
}

func (m *Multiplexer) resolveSlot(slot uint64, err error) {
	m.slotMu.Lock()
	waiters := m.slotWaiters[slot]
	delete(m.slotWaiters, slot)
	m.slotMu.Unlock()

	for _, w := range waiters {
		w.done <- err
	}
}

func (m *Multiplexer) addSlotWaiter(slot uint64) *slotWaiter {
	w := &slotWaiter{done: make(chan error, 1)}
	m.slotMu.Lock()
	m.slotWaiters[slot] = append(m.slotWaiters[slot], w)
	m.slotMu.Unlock()
	return w
}

func (m *Multiplexer) removeSlotWaiter(slot uint64, w *slotWaiter) {
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	waiters := m.slotWaiters[slot]
	for i, x := range waiters {
		if x == w {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(m.slotWaiters, slot)
	} else {
		m.slotWaiters[slot] = waiters
	}
}

// Stats is a snapshot for health pages.
type Stats struct {
	Subscribers      map[Form]int `json:"subscribers"`
	SlotWaiters      int          `json:"slotWaiters"`
	CachedSignatures int          `json:"cachedSignatures"`
	CachedSlots      int          `json:"cachedSlots"`
	HighestSlotSeen  uint64       `json:"highestSlotSeen"`
}

func (m *Multiplexer) Stats() Stats {
	st := Stats{
		Subscribers:      map[Form]int{FormWallet: 0, FormCoin: 0, FormSignature: 0},
		CachedSignatures: m.signatures.Len(),
		CachedSlots:      m.slots.Len(),
		HighestSlotSeen:  m.highestSlot.Load(),
	}
	m.mu.Lock()
	for _, s := range m.subscribers {
		st.Subscribers[s.form]++
	}
	m.mu.Unlock()

	m.slotMu.Lock()
	for _, w := range m.slotWaiters {
		st.SlotWaiters += len(w)
	}
	m.slotMu.Unlock()
	return st
}
