package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/franco-bianco/solanatrade-go/metrics"
	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
	"github.com/franco-bianco/solanatrade-go/stream"
)

// submit paths outlive the caller's context but not this
const defaultSubmitTimeout = 30 * time.Second

var ErrChannelUnavailable = errors.New("delivery channel not configured")

// RPCSubmitter is satisfied by *rpcpool.Transport.
type RPCSubmitter interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// RelaySender is satisfied by *relay.Sender.
type RelaySender interface {
	Send(ctx context.Context, tx *solana.Transaction) error
}

// Confirmer is satisfied by *stream.Multiplexer.
type Confirmer interface {
	ConfirmSignature(ctx context.Context, sig solana.Signature) ([]solanaswapgo.Trade, error)
}

// Submitter sends signed transactions on one of three channels and waits for the
// stream to confirm them. The submit itself is never awaited; the confirmation is
// the only outcome that counts.
type Submitter struct {
	rpc       RPCSubmitter
	jito      RelaySender
	nozomi    RelaySender
	confirmer Confirmer

	submitTimeout time.Duration

	Log     *logrus.Logger
	metrics *metrics.Metrics
}

type SubmitterOption func(*Submitter)

func WithJito(s RelaySender) SubmitterOption {
	return func(sub *Submitter) { sub.jito = s }
}

func WithNozomi(s RelaySender) SubmitterOption {
	return func(sub *Submitter) { sub.nozomi = s }
}

func WithLogger(l *logrus.Logger) SubmitterOption {
	return func(sub *Submitter) { sub.Log = l }
}

func WithMetrics(m *metrics.Metrics) SubmitterOption {
	return func(sub *Submitter) { sub.metrics = m }
}

func WithSubmitTimeout(d time.Duration) SubmitterOption {
	return func(sub *Submitter) { sub.submitTimeout = d }
}

func NewSubmitter(rpc RPCSubmitter, confirmer Confirmer, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		rpc:           rpc,
		confirmer:     confirmer,
		submitTimeout: defaultSubmitTimeout,
		Log:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.Discard()
	}
	return s
}

// SendAndConfirm delivers tx on channel and returns the trades it made once its
// slot is confirmed. On-chain failures come back as *solanaswapgo.TransactionError
// and running out of time wraps stream.ErrConfirmationTimeout.
func (s *Submitter) SendAndConfirm(ctx context.Context, tx *solana.Transaction, channel Channel) ([]solanaswapgo.Trade, error) {
	if len(tx.Signatures) == 0 {
		return nil, errors.New("transaction is not signed")
	}
	sig := tx.Signatures[0]
	log := s.Log.WithFields(logrus.Fields{"signature": sig, "channel": channel})

	submit, err := s.submitFunc(channel)
	if err != nil {
		return nil, err
	}

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	go func() {
		defer cancel()
		if err := submit(submitCtx, tx); err != nil {
			// confirmation decides the outcome
			log.WithError(err).Debug("submit failed")
		}
	}()

	start := time.Now()
	trades, err := s.confirmer.ConfirmSignature(ctx, sig)
	s.metrics.SubmitOutcomes.WithLabelValues(string(channel), outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.metrics.ConfirmationLatency.WithLabelValues(string(channel)).Observe(time.Since(start).Seconds())
	log.Debug("transaction sent and confirmed")
	return trades, nil
}

func (s *Submitter) submitFunc(channel Channel) (func(context.Context, *solana.Transaction) error, error) {
	switch channel {
	case ChannelPlain:
		if s.rpc == nil {
			break
		}
		return func(ctx context.Context, tx *solana.Transaction) error {
			_, err := s.rpc.SendTransaction(ctx, tx)
			return err
		}, nil
	case ChannelJito:
		if s.jito != nil {
			return s.jito.Send, nil
		}
	case ChannelNozomi:
		if s.nozomi != nil {
			return s.nozomi.Send, nil
		}
	default:
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
	return nil, fmt.Errorf("%s: %w", channel, ErrChannelUnavailable)
}

func outcome(err error) string {
	var (
		txErr    *solanaswapgo.TransactionError
		rejected *stream.SlotRejectedError
	)
	switch {
	case err == nil:
		return "confirmed"
	case errors.As(err, &txErr):
		return "failed"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, stream.ErrConfirmationTimeout):
		return "timeout"
	default:
		return "error"
	}
}
