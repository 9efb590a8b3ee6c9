package solanaswapgo

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

var defaultLog = func() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	return log
}()

type Parser struct {
	tx             *RawTransaction
	allAccountKeys solana.PublicKeySlice
	raydiumIndex   int
	pumpFunIndex   int
	Log            *logrus.Logger
}

func NewTransactionParser(res *rpc.GetTransactionResult) (*Parser, error) {
	raw, err := RawTransactionFromRPC(res)
	if err != nil {
		return nil, fmt.Errorf("failed to convert transaction: %w", err)
	}
	return NewTransactionParserFromRaw(raw), nil
}

func NewTransactionParserFromRaw(tx *RawTransaction) *Parser {
	p := &Parser{
		tx:             tx,
		allAccountKeys: tx.AccountKeys,
		raydiumIndex:   -1,
		pumpFunIndex:   -1,
		Log:            defaultLog,
	}
	for i, key := range p.allAccountKeys {
		switch {
		case key.Equals(RAYDIUM_V4_PROGRAM_ID):
			p.raydiumIndex = i
		case key.Equals(PUMP_FUN_PROGRAM_ID):
			p.pumpFunIndex = i
		}
	}
	return p
}

// complete reports whether the transaction carries everything extraction reads.
func (p *Parser) complete() bool {
	return p.tx.Instructions != nil &&
		p.tx.InnerInstructions != nil &&
		p.tx.PreTokenBalances != nil &&
		p.tx.PostTokenBalances != nil
}

// ParseTransaction returns every Raydium and pump.fun trade in the transaction,
// with the transaction fee split evenly across them.
func (p *Parser) ParseTransaction() []Trade {
	if !p.complete() {
		return nil
	}

	var trades []Trade
	for _, call := range p.raydiumSwapCalls() {
		if trade, ok := p.processRaydSwap(call); ok {
			trades = append(trades, trade)
		}
	}
	trades = append(trades, p.processPumpfunSwaps()...)

	if len(trades) == 0 {
		return nil
	}
	p.assignFees(trades)
	return trades
}

// ExtractTrades is the stateless entry point used by the stream and the RPC helpers.
func ExtractTrades(tx *RawTransaction) []Trade {
	if tx == nil {
		return nil
	}
	return NewTransactionParserFromRaw(tx).ParseTransaction()
}

type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error)
}

// TransactionTrades fetches a confirmed transaction and extracts its trades.
func TransactionTrades(ctx context.Context, fetcher TransactionFetcher, signature solana.Signature) ([]Trade, error) {
	res, err := fetcher.GetTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", signature, err)
	}
	raw, err := RawTransactionFromRPC(res)
	if err != nil {
		return nil, err
	}
	return ExtractTrades(raw), nil
}

func (p *Parser) getInnerInstructions(index int) []Instruction {
	for _, inner := range p.tx.InnerInstructions {
		if int(inner.Index) == index {
			return inner.Instructions
		}
	}
	return nil
}
