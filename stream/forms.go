package stream

import (
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
	"github.com/franco-bianco/solanatrade-go/spltoken/price"
)

// Form is the kind of a subscription. The set is closed.
type Form string

const (
	FormWallet    Form = "wallet"
	FormCoin      Form = "coin"
	FormSignature Form = "signature"
)

// WalletUpdate carries the trades a watched wallet made in one transaction.
type WalletUpdate struct {
	Signature solana.Signature
	Slot      uint64
	Trades    []solanaswapgo.Trade
}

type CoinUpdateKind string

const (
	CoinPrice     CoinUpdateKind = "price"
	CoinMigration CoinUpdateKind = "migration"
	// CoinNull is emitted by timed subscriptions before any price was seen.
	CoinNull CoinUpdateKind = "null"
)

// CoinUpdate is a price observation or a migration of a watched mint.
type CoinUpdate struct {
	Kind             CoinUpdateKind
	Platform         solanaswapgo.SwapType
	TokensPerLamport decimal.Decimal
	Migration        *solanaswapgo.RaydiumAddresses
}

// SignatureUpdate is what the stream saw for a watched signature. Err is set when
// the transaction failed on chain.
type SignatureUpdate struct {
	Slot   uint64
	Trades []solanaswapgo.Trade
	Err    *solanaswapgo.TransactionError
}

type subscriber struct {
	id        string
	form      Form
	key       solana.PublicKey // wallet or mint
	signature solana.Signature

	onWallet    func(WalletUpdate)
	onCoin      func(CoinUpdate)
	onSignature func(SignatureUpdate)

	active atomic.Bool
}

// deliver runs the form's preprocess step and calls back when it produced a value.
func (s *subscriber) deliver(u *txUpdate) bool {
	if !s.active.Load() {
		return false
	}
	switch s.form {
	case FormWallet:
		if v, ok := preprocessWallet(u, s.key); ok {
			s.onWallet(v)
			return true
		}
	case FormCoin:
		if v, ok := preprocessCoin(u, s.key); ok {
			s.onCoin(v)
			return true
		}
	case FormSignature:
		if v, ok := preprocessSignature(u, s.signature); ok {
			s.onSignature(v)
			return true
		}
	}
	return false
}

func preprocessWallet(u *txUpdate, wallet solana.PublicKey) (WalletUpdate, bool) {
	raw := u.Raw()
	if raw == nil || !raw.HasStaticKey(wallet) {
		return WalletUpdate{}, false
	}
	var trades []solanaswapgo.Trade
	for _, t := range u.Trades() {
		if t.Wallet.Equals(wallet) {
			trades = append(trades, t)
		}
	}
	if len(trades) == 0 {
		return WalletUpdate{}, false
	}
	return WalletUpdate{Signature: u.signature, Slot: u.slot, Trades: trades}, true
}

func preprocessCoin(u *txUpdate, mint solana.PublicKey) (CoinUpdate, bool) {
	raw := u.Raw()
	if raw == nil || !raw.HasStaticKey(mint) {
		return CoinUpdate{}, false
	}
	for _, t := range u.Trades() {
		if !t.Mint.Equals(mint) {
			continue
		}
		// the first trade of the mint prices it
		p := price.TokensPerLamport(t)
		if p.IsZero() {
			break
		}
		return CoinUpdate{Kind: CoinPrice, Platform: t.Platform, TokensPerLamport: p}, true
	}
	if m, ok := solanaswapgo.DetectMigration(raw); ok && m.Mint.Equals(mint) {
		return CoinUpdate{Kind: CoinMigration, Migration: m}, true
	}
	return CoinUpdate{}, false
}

func preprocessSignature(u *txUpdate, sig solana.Signature) (SignatureUpdate, bool) {
	if !u.signature.Equals(sig) {
		return SignatureUpdate{}, false
	}
	out := SignatureUpdate{Slot: u.slot}
	if raw := u.Raw(); raw != nil && raw.Err != nil {
		out.Err = raw.Err
		return out, true
	}
	out.Trades = u.Trades()
	return out, true
}

// txUpdate is one transaction from the stream. Decoding and extraction happen at
// most once, on first use, and may be shared with cache readers.
type txUpdate struct {
	msg       *pb.SubscribeUpdateTransaction
	signature solana.Signature
	slot      uint64

	once   sync.Once
	raw    *solanaswapgo.RawTransaction
	trades []solanaswapgo.Trade

	log       *logrus.Logger
	onExtract func([]solanaswapgo.Trade)
}

func newTxUpdate(msg *pb.SubscribeUpdateTransaction, log *logrus.Logger, onExtract func([]solanaswapgo.Trade)) *txUpdate {
	u := &txUpdate{msg: msg, slot: msg.GetSlot(), log: log, onExtract: onExtract}
	if sig := msg.GetTransaction().GetSignature(); len(sig) == solana.SignatureLength {
		u.signature = solana.SignatureFromBytes(sig)
	}
	return u
}

func (u *txUpdate) parse() {
	u.once.Do(func() {
		raw, err := solanaswapgo.RawTransactionFromGeyser(u.msg)
		if err != nil {
			u.log.WithField("signature", u.signature).WithError(err).Debug("undecodable transaction update")
			return
		}
		u.raw = raw
		u.trades = solanaswapgo.ExtractTrades(raw)
		if u.onExtract != nil {
			u.onExtract(u.trades)
		}
	})
}

func (u *txUpdate) Raw() *solanaswapgo.RawTransaction {
	u.parse()
	return u.raw
}

func (u *txUpdate) Trades() []solanaswapgo.Trade {
	u.parse()
	return u.trades
}

// accountKeys are the static keys followed by the keys loaded through lookup tables.
func (u *txUpdate) accountKeys() [][]byte {
	msg := u.msg.GetTransaction().GetTransaction().GetMessage()
	meta := u.msg.GetTransaction().GetMeta()
	keys := make([][]byte, 0, len(msg.GetAccountKeys())+len(meta.GetLoadedWritableAddresses())+len(meta.GetLoadedReadonlyAddresses()))
	keys = append(keys, msg.GetAccountKeys()...)
	keys = append(keys, meta.GetLoadedWritableAddresses()...)
	keys = append(keys, meta.GetLoadedReadonlyAddresses()...)
	return keys
}
