package solanaswapgo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// Instruction is a compiled instruction with indexes into RawTransaction.AccountKeys.
// StackHeight is only meaningful for inner instructions; zero means unknown.
type Instruction struct {
	ProgramIDIndex uint16
	Accounts       []uint16
	Data           []byte
	StackHeight    uint16
}

type InnerInstructions struct {
	Index        uint16
	Instructions []Instruction
}

type TokenBalance struct {
	AccountIndex uint16
	Mint         solana.PublicKey
	Owner        solana.PublicKey
	Amount       uint64
	Decimals     uint8
}

// RawTransaction is the source-independent view of a confirmed transaction.
// A nil InnerInstructions, PreTokenBalances or PostTokenBalances means the
// source did not record it, which is different from an empty slice.
type RawTransaction struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime time.Time

	// static keys, then loaded writable, then loaded readonly
	AccountKeys    solana.PublicKeySlice
	StaticKeyCount int

	Instructions      []Instruction
	InnerInstructions []InnerInstructions
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	PreBalances       []uint64
	PostBalances      []uint64
	Fee               uint64
	Err               *TransactionError
}

func (tx *RawTransaction) StaticKeys() solana.PublicKeySlice {
	if tx.StaticKeyCount > len(tx.AccountKeys) {
		return tx.AccountKeys
	}
	return tx.AccountKeys[:tx.StaticKeyCount]
}

// HasStaticKey reports whether key is one of the message's own account keys.
func (tx *RawTransaction) HasStaticKey(key solana.PublicKey) bool {
	for _, k := range tx.StaticKeys() {
		if k.Equals(key) {
			return true
		}
	}
	return false
}

func (tx *RawTransaction) key(index uint16) (solana.PublicKey, bool) {
	if int(index) >= len(tx.AccountKeys) {
		return solana.PublicKey{}, false
	}
	return tx.AccountKeys[index], true
}

// RawTransactionFromRPC converts a getTransaction result.
func RawTransactionFromRPC(res *rpc.GetTransactionResult) (*RawTransaction, error) {
	if res == nil || res.Transaction == nil {
		return nil, fmt.Errorf("transaction missing from result")
	}
	if res.Meta == nil {
		return nil, fmt.Errorf("transaction meta missing from result")
	}
	txInfo, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	meta := res.Meta

	raw := &RawTransaction{
		Slot:           res.Slot,
		StaticKeyCount: len(txInfo.Message.AccountKeys),
		PreBalances:    meta.PreBalances,
		PostBalances:   meta.PostBalances,
		Fee:            meta.Fee,
	}
	if len(txInfo.Signatures) > 0 {
		raw.Signature = txInfo.Signatures[0]
	}
	if res.BlockTime != nil {
		raw.BlockTime = res.BlockTime.Time()
	}

	keys := make(solana.PublicKeySlice, 0, len(txInfo.Message.AccountKeys)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	keys = append(keys, txInfo.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	raw.AccountKeys = keys

	raw.Instructions = make([]Instruction, len(txInfo.Message.Instructions))
	for i, inst := range txInfo.Message.Instructions {
		raw.Instructions[i] = Instruction{
			ProgramIDIndex: inst.ProgramIDIndex,
			Accounts:       inst.Accounts,
			Data:           inst.Data,
		}
	}

	if meta.InnerInstructions != nil {
		raw.InnerInstructions = make([]InnerInstructions, len(meta.InnerInstructions))
		for i, group := range meta.InnerInstructions {
			raw.InnerInstructions[i] = InnerInstructions{
				Index:        group.Index,
				Instructions: make([]Instruction, len(group.Instructions)),
			}
			for j, inst := range group.Instructions {
				raw.InnerInstructions[i].Instructions[j] = Instruction{
					ProgramIDIndex: inst.ProgramIDIndex,
					Accounts:       inst.Accounts,
					Data:           inst.Data,
					StackHeight:    inst.StackHeight,
				}
			}
		}
	}

	if raw.PreTokenBalances, err = rpcTokenBalances(meta.PreTokenBalances); err != nil {
		return nil, err
	}
	if raw.PostTokenBalances, err = rpcTokenBalances(meta.PostTokenBalances); err != nil {
		return nil, err
	}

	if meta.Err != nil {
		raw.Err, err = TransactionErrorFromRPC(meta.Err)
		if err != nil {
			return nil, fmt.Errorf("failed to decode transaction error: %w", err)
		}
	}

	return raw, nil
}

func rpcTokenBalances(in []rpc.TokenBalance) ([]TokenBalance, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		tb := TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
		}
		if b.Owner != nil {
			tb.Owner = *b.Owner
		}
		if b.UiTokenAmount != nil {
			amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid token amount %q: %w", b.UiTokenAmount.Amount, err)
			}
			tb.Amount = amount
			tb.Decimals = b.UiTokenAmount.Decimals
		}
		out = append(out, tb)
	}
	return out, nil
}

// RawTransactionFromGeyser converts a yellowstone transaction update. Geyser
// updates carry no block time, so the receive time is used.
func RawTransactionFromGeyser(update *pb.SubscribeUpdateTransaction) (*RawTransaction, error) {
	info := update.GetTransaction()
	tx := info.GetTransaction()
	meta := info.GetMeta()
	msg := tx.GetMessage()
	if msg == nil || meta == nil {
		return nil, fmt.Errorf("transaction update missing message or meta")
	}

	raw := &RawTransaction{
		Slot:           update.GetSlot(),
		BlockTime:      time.Now(),
		StaticKeyCount: len(msg.GetAccountKeys()),
		PreBalances:    meta.GetPreBalances(),
		PostBalances:   meta.GetPostBalances(),
		Fee:            meta.GetFee(),
	}
	if sig := info.GetSignature(); len(sig) == solana.SignatureLength {
		raw.Signature = solana.SignatureFromBytes(sig)
	}

	keys := make(solana.PublicKeySlice, 0, len(msg.GetAccountKeys())+len(meta.GetLoadedWritableAddresses())+len(meta.GetLoadedReadonlyAddresses()))
	for _, group := range [][][]byte{msg.GetAccountKeys(), meta.GetLoadedWritableAddresses(), meta.GetLoadedReadonlyAddresses()} {
		for _, k := range group {
			if len(k) != solana.PublicKeyLength {
				return nil, fmt.Errorf("invalid account key length %d", len(k))
			}
			keys = append(keys, solana.PublicKeyFromBytes(k))
		}
	}
	raw.AccountKeys = keys

	raw.Instructions = make([]Instruction, len(msg.GetInstructions()))
	for i, inst := range msg.GetInstructions() {
		raw.Instructions[i] = Instruction{
			ProgramIDIndex: uint16(inst.GetProgramIdIndex()),
			Accounts:       widenIndexes(inst.GetAccounts()),
			Data:           inst.GetData(),
		}
	}

	if !meta.GetInnerInstructionsNone() {
		raw.InnerInstructions = make([]InnerInstructions, len(meta.GetInnerInstructions()))
		for i, group := range meta.GetInnerInstructions() {
			raw.InnerInstructions[i] = InnerInstructions{
				Index:        uint16(group.GetIndex()),
				Instructions: make([]Instruction, len(group.GetInstructions())),
			}
			for j, inst := range group.GetInstructions() {
				raw.InnerInstructions[i].Instructions[j] = Instruction{
					ProgramIDIndex: uint16(inst.GetProgramIdIndex()),
					Accounts:       widenIndexes(inst.GetAccounts()),
					Data:           inst.GetData(),
					StackHeight:    uint16(inst.GetStackHeight()),
				}
			}
		}
	}

	var err error
	if raw.PreTokenBalances, err = geyserTokenBalances(meta.GetPreTokenBalances()); err != nil {
		return nil, err
	}
	if raw.PostTokenBalances, err = geyserTokenBalances(meta.GetPostTokenBalances()); err != nil {
		return nil, err
	}

	if txErr := meta.GetErr(); txErr != nil {
		raw.Err, err = TransactionErrorFromBincode(txErr.GetErr())
		if err != nil {
			return nil, fmt.Errorf("failed to decode transaction error: %w", err)
		}
	}

	return raw, nil
}

func widenIndexes(in []byte) []uint16 {
	out := make([]uint16, len(in))
	for i, b := range in {
		out[i] = uint16(b)
	}
	return out
}

func geyserTokenBalances(in []*pb.TokenBalance) ([]TokenBalance, error) {
	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		mint, err := solana.PublicKeyFromBase58(b.GetMint())
		if err != nil {
			return nil, fmt.Errorf("invalid mint %q: %w", b.GetMint(), err)
		}
		tb := TokenBalance{
			AccountIndex: uint16(b.GetAccountIndex()),
			Mint:         mint,
		}
		if owner := b.GetOwner(); owner != "" {
			if tb.Owner, err = solana.PublicKeyFromBase58(owner); err != nil {
				return nil, fmt.Errorf("invalid owner %q: %w", owner, err)
			}
		}
		if amt := b.GetUiTokenAmount(); amt != nil {
			if tb.Amount, err = strconv.ParseUint(amt.GetAmount(), 10, 64); err != nil {
				return nil, fmt.Errorf("invalid token amount %q: %w", amt.GetAmount(), err)
			}
			tb.Decimals = uint8(amt.GetDecimals())
		}
		out = append(out, tb)
	}
	return out, nil
}
