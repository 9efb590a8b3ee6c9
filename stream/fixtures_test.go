package stream

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/AlekSi/pointer"
	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/stretchr/testify/require"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
)

func testKey(n byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = n
	k[31] = 0x5a
	return k
}

func testSignature(n byte) solana.Signature {
	var s solana.Signature
	s[0] = n
	s[63] = 0xa5
	return s
}

type pumpTrade struct {
	user, mint solana.PublicKey
	sig        solana.Signature
	slot       uint64
	lamports   uint64
	tokens     uint64
	isBuy      bool
	txErr      []byte
}

// pumpTradeUpdate is a bonding curve trade as the geyser stream delivers it.
func pumpTradeUpdate(t *testing.T, p pumpTrade) *pb.SubscribeUpdate {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.Write(bytes.Repeat([]byte{0xe4}, 16))
	require.NoError(t, ag_binary.NewBorshEncoder(buf).Encode(solanaswapgo.PumpfunTradeEvent{
		Mint:                 p.mint,
		SolAmount:            p.lamports,
		TokenAmount:          p.tokens,
		IsBuy:                p.isBuy,
		User:                 p.user,
		Timestamp:            1_700_000_000,
		VirtualSolReserves:   30_000_000_000,
		VirtualTokenReserves: 1_000_000_000_000,
	}))
	buf.Write(make([]byte, 16))
	require.Equal(t, solanaswapgo.PumpfunTradeEventSize, buf.Len())

	keys := [][]byte{
		p.user.Bytes(),
		solanaswapgo.PUMP_FUN_PROGRAM_ID.Bytes(),
		solanaswapgo.PUMP_FUN_EVENT_AUTHORITY.Bytes(),
		p.mint.Bytes(),
	}
	meta := &pb.TransactionStatusMeta{
		Fee:          5_000,
		PreBalances:  []uint64{1_000_000_000, 1, 1, 1},
		PostBalances: []uint64{900_000_000, 1, 1, 1},
		InnerInstructions: []*pb.InnerInstructions{{
			Index: 0,
			Instructions: []*pb.InnerInstruction{{
				ProgramIdIndex: 1,
				Accounts:       []byte{2},
				Data:           buf.Bytes(),
				StackHeight:    pointer.ToUint32(2),
			}},
		}},
		PreTokenBalances:  []*pb.TokenBalance{},
		PostTokenBalances: []*pb.TokenBalance{},
	}
	if p.txErr != nil {
		meta.Err = &pb.TransactionError{Err: p.txErr}
	}

	return &pb.SubscribeUpdate{
		Filters: []string{transactionsFilter},
		UpdateOneof: &pb.SubscribeUpdate_Transaction{
			Transaction: &pb.SubscribeUpdateTransaction{
				Slot: p.slot,
				Transaction: &pb.SubscribeUpdateTransactionInfo{
					Signature: p.sig[:],
					Transaction: &pb.Transaction{
						Signatures: [][]byte{p.sig[:]},
						Message: &pb.Message{
							AccountKeys: keys,
							Instructions: []*pb.CompiledInstruction{{
								ProgramIdIndex: 1,
								Accounts:       []byte{0, 3},
								Data:           []byte{1},
							}},
						},
					},
					Meta: meta,
				},
			},
		},
	}
}

// migrationUpdate is an AMM pool initialization signed by the bonding curve
// migration authority.
func migrationUpdate(mint, amm, pool1, pool2 solana.PublicKey, sig solana.Signature) *pb.SubscribeUpdate {
	keys := [][]byte{solanaswapgo.RAYDIUM_V4_PROGRAM_ID.Bytes()}
	accounts := make([]byte, 18)
	for i := range accounts {
		var k solana.PublicKey
		switch i {
		case 4:
			k = amm
		case 9:
			k = mint
		case 10:
			k = pool1
		case 11:
			k = pool2
		case 17:
			k = solanaswapgo.PUMP_FUN_MIGRATION_ID
		default:
			k = testKey(byte(100 + i))
		}
		keys = append(keys, k.Bytes())
		accounts[i] = byte(i + 1)
	}
	return &pb.SubscribeUpdate{
		UpdateOneof: &pb.SubscribeUpdate_Transaction{
			Transaction: &pb.SubscribeUpdateTransaction{
				Slot: 77,
				Transaction: &pb.SubscribeUpdateTransactionInfo{
					Signature: sig[:],
					Transaction: &pb.Transaction{
						Message: &pb.Message{
							AccountKeys: keys,
							Instructions: []*pb.CompiledInstruction{{
								ProgramIdIndex: 0,
								Accounts:       accounts,
								Data:           []byte{1, 254},
							}},
						},
					},
					Meta: &pb.TransactionStatusMeta{
						InnerInstructions: []*pb.InnerInstructions{},
						PreTokenBalances:  []*pb.TokenBalance{},
						PostTokenBalances: []*pb.TokenBalance{},
					},
				},
			},
		},
	}
}

func slotUpdate(slot uint64, status pb.SlotStatus) *pb.SubscribeUpdate {
	return &pb.SubscribeUpdate{
		Filters: []string{slotsFilter},
		UpdateOneof: &pb.SubscribeUpdate_Slot{
			Slot: &pb.SubscribeUpdateSlot{Slot: slot, Status: status},
		},
	}
}

type fakeStream struct {
	ctx     context.Context
	updates chan *pb.SubscribeUpdate

	mu   sync.Mutex
	sent []*pb.SubscribeRequest
}

func newFakeStream() *fakeStream {
	return &fakeStream{updates: make(chan *pb.SubscribeUpdate, 16)}
}

func (s *fakeStream) Send(req *pb.SubscribeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	return nil
}

// Recv reports EOF once updates is closed.
func (s *fakeStream) Recv() (*pb.SubscribeUpdate, error) {
	select {
	case u, ok := <-s.updates:
		if !ok {
			return nil, io.EOF
		}
		return u, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

func (s *fakeStream) CloseSend() error { return nil }

func (s *fakeStream) requests() []*pb.SubscribeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*pb.SubscribeRequest(nil), s.sent...)
}

// fakeSource hands out its streams in order, then fails.
type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	calls   int
}

func (f *fakeSource) Subscribe(ctx context.Context) (UpdateStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.streams) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	s.ctx = ctx
	return s, nil
}

func (f *fakeSource) subscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
