package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
)

// ConfirmSignature waits until sig is seen on the stream and its slot is confirmed,
// then returns the trades it made. A transaction that failed on chain returns its
// *solanaswapgo.TransactionError. Timeouts wrap ErrConfirmationTimeout and a dead
// slot returns *SlotRejectedError.
func (m *Multiplexer) ConfirmSignature(ctx context.Context, sig solana.Signature) ([]solanaswapgo.Trade, error) {
	if trades, ok, err := m.cachedResult(sig); ok {
		return trades, err
	}

	seen := make(chan SignatureUpdate, 1)
	unsubscribe := m.SubscribeSignature(sig, func(u SignatureUpdate) {
		select {
		case seen <- u:
		default:
		}
	})
	defer unsubscribe()

	// the update may have landed between the first lookup and subscribing
	if trades, ok, err := m.cachedResult(sig); ok {
		return trades, err
	}

	timer := time.NewTimer(m.cfg.ConfirmationTimeout)
	defer timer.Stop()

	select {
	case u := <-seen:
		if u.Err != nil {
			return nil, u.Err
		}
		m.Log.WithFields(logrus.Fields{"signature": sig, "slot": u.Slot}).Trace("signature processed, waiting for slot confirmation")
		if err := m.AwaitSlotConfirmation(ctx, u.Slot); err != nil {
			return nil, err
		}
		return u.Trades, nil
	case <-timer.C:
		m.Log.WithField("signature", sig).Warn("signature confirmation timeout")
		return nil, fmt.Errorf("signature %s: %w", sig, ErrConfirmationTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closed:
		return nil, ErrStreamClosed
	}
}

// cachedResult answers from the signature and slot caches. ok is false unless the
// signature was seen in a slot known to be confirmed.
func (m *Multiplexer) cachedResult(sig solana.Signature) ([]solanaswapgo.Trade, bool, error) {
	tx, ok := m.signatures.Get(sig)
	if !ok {
		return nil, false, nil
	}
	st, ok := m.slots.Get(tx.slot)
	if !ok || st.status != SlotConfirmed {
		return nil, false, nil
	}
	if raw := tx.Raw(); raw != nil && raw.Err != nil {
		return nil, true, raw.Err
	}
	trades := tx.Trades()
	if trades == nil {
		trades = []solanaswapgo.Trade{}
	}
	return trades, true, nil
}

// AwaitSlotConfirmation returns once slot is confirmed or finalized. A dead slot
// returns *SlotRejectedError and running out of time wraps ErrConfirmationTimeout.
func (m *Multiplexer) AwaitSlotConfirmation(ctx context.Context, slot uint64) error {
	w := m.addSlotWaiter(slot)
	defer m.removeSlotWaiter(slot, w)

	// registered first, so a status arriving now is not lost
	if st, ok := m.slots.Get(slot); ok {
		switch st.status {
		case SlotConfirmed:
			return nil
		case SlotDead:
			return &SlotRejectedError{Slot: slot, Reason: st.reason}
		}
	}

	timer := time.NewTimer(m.cfg.SlotConfirmationTimeout)
	defer timer.Stop()

	select {
	case err := <-w.done:
		if err != nil {
			m.Log.WithField("slot", slot).Trace("slot rejected")
		}
		return err
	case <-timer.C:
		return fmt.Errorf("slot %d: %w", slot, ErrConfirmationTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		return ErrStreamClosed
	}
}

// Close releases every waiter with ErrStreamClosed.
func (m *Multiplexer) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}
