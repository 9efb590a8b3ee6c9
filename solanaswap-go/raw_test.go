package solanaswapgo

import (
	"context"
	"encoding/binary"
	"errors"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTransactionFromRPC(t *testing.T) {
	wallet, loadedW, loadedR := testKey(1), testKey(2), testKey(3)
	mint := testKey(9)
	sig := solana.SignatureFromBytes(append([]byte{1, 2, 3}, make([]byte, 61)...))

	body := fmt.Sprintf(`{
		"slot": 77,
		"blockTime": 1700000123,
		"transaction": {
			"signatures": [%q],
			"message": {
				"accountKeys": [%q, %q],
				"header": {"numRequiredSignatures": 1, "numReadonlySignedAccounts": 0, "numReadonlyUnsignedAccounts": 1},
				"recentBlockhash": "11111111111111111111111111111111",
				"instructions": [{"programIdIndex": 1, "accounts": [0, 2, 3], "data": "3Bxs4h24hBtQy9rw"}]
			}
		},
		"meta": {
			"err": {"InstructionError": [0, {"Custom": 6003}]},
			"fee": 5000,
			"preBalances": [10, 0, 0, 0],
			"postBalances": [5, 0, 0, 0],
			"innerInstructions": [{"index": 0, "instructions": [{"programIdIndex": 1, "accounts": [2], "data": "2", "stackHeight": 2}]}],
			"preTokenBalances": [],
			"postTokenBalances": [{"accountIndex": 2, "mint": %q, "owner": %q, "uiTokenAmount": {"amount": "12345", "decimals": 6, "uiAmountString": "0.012345"}}],
			"loadedAddresses": {"writable": [%q], "readonly": [%q]}
		}
	}`, sig.String(), wallet.String(), RAYDIUM_V4_PROGRAM_ID.String(), mint.String(), wallet.String(), loadedW.String(), loadedR.String())

	var res rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))

	raw, err := RawTransactionFromRPC(&res)
	require.NoError(t, err)

	assert.Equal(t, sig, raw.Signature)
	assert.Equal(t, uint64(77), raw.Slot)
	assert.Equal(t, int64(1700000123), raw.BlockTime.Unix())
	assert.Equal(t, solana.PublicKeySlice{wallet, RAYDIUM_V4_PROGRAM_ID, loadedW, loadedR}, raw.AccountKeys)
	assert.Equal(t, 2, raw.StaticKeyCount)
	assert.True(t, raw.HasStaticKey(wallet))
	assert.False(t, raw.HasStaticKey(loadedW))

	require.Len(t, raw.Instructions, 1)
	assert.Equal(t, []uint16{0, 2, 3}, raw.Instructions[0].Accounts)
	require.Len(t, raw.InnerInstructions, 1)
	assert.Equal(t, uint16(2), raw.InnerInstructions[0].Instructions[0].StackHeight)

	assert.NotNil(t, raw.PreTokenBalances)
	require.Len(t, raw.PostTokenBalances, 1)
	assert.Equal(t, TokenBalance{AccountIndex: 2, Mint: mint, Owner: wallet, Amount: 12345, Decimals: 6}, raw.PostTokenBalances[0])

	require.NotNil(t, raw.Err)
	code, ok := raw.Err.CustomCode()
	assert.True(t, ok)
	assert.Equal(t, uint32(6003), code)
}

func TestRawTransactionFromRPC_MissingMeta(t *testing.T) {
	_, err := RawTransactionFromRPC(&rpc.GetTransactionResult{})
	assert.Error(t, err)
	_, err = RawTransactionFromRPC(nil)
	assert.Error(t, err)
}

type fetcherFunc func(context.Context, solana.Signature) (*rpc.GetTransactionResult, error)

func (f fetcherFunc) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	return f(ctx, sig)
}

func TestTransactionTrades(t *testing.T) {
	boom := errors.New("boom")
	_, err := TransactionTrades(context.Background(), fetcherFunc(func(context.Context, solana.Signature) (*rpc.GetTransactionResult, error) {
		return nil, boom
	}), solana.Signature{1})
	assert.ErrorIs(t, err, boom)

	_, err = TransactionTrades(context.Background(), fetcherFunc(func(context.Context, solana.Signature) (*rpc.GetTransactionResult, error) {
		return &rpc.GetTransactionResult{}, nil
	}), solana.Signature{1})
	assert.Error(t, err)

	body := fmt.Sprintf(`{
		"slot": 5,
		"transaction": {
			"signatures": [%q],
			"message": {
				"accountKeys": [%q],
				"header": {"numRequiredSignatures": 1, "numReadonlySignedAccounts": 0, "numReadonlyUnsignedAccounts": 0},
				"recentBlockhash": "11111111111111111111111111111111",
				"instructions": []
			}
		},
		"meta": {
			"err": null,
			"fee": 5000,
			"preBalances": [10],
			"postBalances": [5],
			"innerInstructions": [],
			"preTokenBalances": [],
			"postTokenBalances": [],
			"loadedAddresses": {"writable": [], "readonly": []}
		}
	}`, solana.Signature{7}.String(), testKey(1).String())
	var res rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))

	var asked solana.Signature
	trades, err := TransactionTrades(context.Background(), fetcherFunc(func(_ context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
		asked = sig
		return &res, nil
	}), solana.Signature{7})
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, solana.Signature{7}, asked)
}

func TestRawTransactionFromGeyser(t *testing.T) {
	wallet, loadedW, loadedR := testKey(1), testKey(2), testKey(3)
	mint := testKey(9)
	sig := make([]byte, 64)
	sig[0] = 9

	txErr := make([]byte, 13)
	binary.LittleEndian.PutUint32(txErr[0:], 8)
	txErr[4] = 1
	binary.LittleEndian.PutUint32(txErr[5:], 25)
	binary.LittleEndian.PutUint32(txErr[9:], 6005)

	update := &pb.SubscribeUpdateTransaction{
		Slot: 99,
		Transaction: &pb.SubscribeUpdateTransactionInfo{
			Signature: sig,
			Transaction: &pb.Transaction{
				Signatures: [][]byte{sig},
				Message: &pb.Message{
					AccountKeys: [][]byte{wallet[:], PUMP_FUN_PROGRAM_ID[:]},
					Instructions: []*pb.CompiledInstruction{
						{ProgramIdIndex: 1, Accounts: []byte{0, 2}, Data: []byte{1, 2}},
					},
				},
			},
			Meta: &pb.TransactionStatusMeta{
				Err:          &pb.TransactionError{Err: txErr},
				Fee:          5000,
				PreBalances:  []uint64{1, 2, 3, 4},
				PostBalances: []uint64{1, 2, 3, 4},
				InnerInstructions: []*pb.InnerInstructions{{
					Index: 0,
					Instructions: []*pb.InnerInstruction{
						{ProgramIdIndex: 1, Accounts: []byte{3}, Data: []byte{7}, StackHeight: pointer.ToUint32(2)},
					},
				}},
				PreTokenBalances: []*pb.TokenBalance{
					{AccountIndex: 2, Mint: mint.String(), Owner: wallet.String(), UiTokenAmount: &pb.UiTokenAmount{Amount: "500", Decimals: 6}},
				},
				LoadedWritableAddresses: [][]byte{loadedW[:]},
				LoadedReadonlyAddresses: [][]byte{loadedR[:]},
			},
		},
	}

	raw, err := RawTransactionFromGeyser(update)
	require.NoError(t, err)

	assert.Equal(t, solana.SignatureFromBytes(sig), raw.Signature)
	assert.Equal(t, uint64(99), raw.Slot)
	assert.Equal(t, solana.PublicKeySlice{wallet, PUMP_FUN_PROGRAM_ID, loadedW, loadedR}, raw.AccountKeys)
	assert.Equal(t, 2, raw.StaticKeyCount)
	assert.Equal(t, []uint16{0, 2}, raw.Instructions[0].Accounts)
	assert.Equal(t, uint16(2), raw.InnerInstructions[0].Instructions[0].StackHeight)
	assert.Equal(t, []TokenBalance{{AccountIndex: 2, Mint: mint, Owner: wallet, Amount: 500, Decimals: 6}}, raw.PreTokenBalances)
	assert.NotNil(t, raw.PostTokenBalances)
	assert.Empty(t, raw.PostTokenBalances)

	require.NotNil(t, raw.Err)
	assert.Equal(t, uint8(1), raw.Err.InstructionIndex)
	code, ok := raw.Err.CustomCode()
	assert.True(t, ok)
	assert.Equal(t, uint32(6005), code)
}

func TestRawTransactionFromGeyser_InnerInstructionsNone(t *testing.T) {
	update := &pb.SubscribeUpdateTransaction{
		Transaction: &pb.SubscribeUpdateTransactionInfo{
			Transaction: &pb.Transaction{Message: &pb.Message{AccountKeys: [][]byte{testKey(1).Bytes()}}},
			Meta:        &pb.TransactionStatusMeta{InnerInstructionsNone: true},
		},
	}
	raw, err := RawTransactionFromGeyser(update)
	require.NoError(t, err)
	assert.Nil(t, raw.InnerInstructions)
	assert.Empty(t, ExtractTrades(raw))
}

func TestRawTransactionFromGeyser_BadKey(t *testing.T) {
	update := &pb.SubscribeUpdateTransaction{
		Transaction: &pb.SubscribeUpdateTransactionInfo{
			Transaction: &pb.Transaction{Message: &pb.Message{AccountKeys: [][]byte{{1, 2, 3}}}},
			Meta:        &pb.TransactionStatusMeta{},
		},
	}
	_, err := RawTransactionFromGeyser(update)
	assert.Error(t, err)
}
