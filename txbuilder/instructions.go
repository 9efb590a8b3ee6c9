package txbuilder

import (
	"bytes"
	"fmt"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
)

const (
	pumpFunBuyDiscriminator  uint64 = 16927863322537952870
	pumpFunSellDiscriminator uint64 = 12502976635542562355
	raydiumSwapBaseIn        uint8  = 9
	createIdempotent         byte   = 1
)

type pumpFunTradeArgs struct {
	Discriminator uint64
	Amount        uint64
	// maxSolCost on buys, minSolOutput on sells
	SolLimit uint64
}

type raydiumSwapArgs struct {
	Discriminator    uint8
	AmountIn         uint64
	MinimumAmountOut uint64
}

func encodeArgs(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := ag_binary.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode instruction args: %w", err)
	}
	return buf.Bytes(), nil
}

// BondingCurveAddress derives the pump.fun bonding curve account of mint.
func BondingCurveAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("bonding-curve"), mint.Bytes()}, solanaswapgo.PUMP_FUN_PROGRAM_ID)
	return addr, err
}

// AssociatedTokenAddress derives owner's associated token account for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return addr, err
}

// PumpFunBuyInstruction buys amount tokens of mint, spending at most maxSolCost lamports.
func PumpFunBuyInstruction(user, mint solana.PublicKey, amount, maxSolCost uint64) (solana.Instruction, error) {
	return pumpFunTradeInstruction(user, mint, pumpFunTradeArgs{
		Discriminator: pumpFunBuyDiscriminator,
		Amount:        amount,
		SolLimit:      maxSolCost,
	})
}

// PumpFunSellInstruction sells amount tokens of mint for at least minSolOutput lamports.
func PumpFunSellInstruction(user, mint solana.PublicKey, amount, minSolOutput uint64) (solana.Instruction, error) {
	return pumpFunTradeInstruction(user, mint, pumpFunTradeArgs{
		Discriminator: pumpFunSellDiscriminator,
		Amount:        amount,
		SolLimit:      minSolOutput,
	})
}

func pumpFunTradeInstruction(user, mint solana.PublicKey, args pumpFunTradeArgs) (solana.Instruction, error) {
	curve, err := BondingCurveAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("bonding curve address: %w", err)
	}
	curveTokens, err := AssociatedTokenAddress(curve, mint)
	if err != nil {
		return nil, fmt.Errorf("associated bonding curve address: %w", err)
	}
	userTokens, err := AssociatedTokenAddress(user, mint)
	if err != nil {
		return nil, fmt.Errorf("token account: %w", err)
	}
	data, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(solanaswapgo.PUMP_FUN_GLOBAL_ID),
		solana.Meta(solanaswapgo.PUMP_FUN_FEE_RECIPIENT_ID).WRITE(),
		solana.Meta(mint),
		solana.Meta(curve).WRITE(),
		solana.Meta(curveTokens).WRITE(),
		solana.Meta(userTokens).WRITE(),
		solana.Meta(user).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}
	// the two instructions differ in the accounts at positions 8 and 9
	if args.Discriminator == pumpFunBuyDiscriminator {
		accounts = append(accounts,
			solana.Meta(solana.TokenProgramID),
			solana.Meta(solana.SysVarRentPubkey),
		)
	} else {
		accounts = append(accounts,
			solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
			solana.Meta(solana.TokenProgramID),
		)
	}
	accounts = append(accounts,
		solana.Meta(solanaswapgo.PUMP_FUN_EVENT_AUTHORITY),
		solana.Meta(solanaswapgo.PUMP_FUN_PROGRAM_ID),
	)
	return solana.NewInstruction(solanaswapgo.PUMP_FUN_PROGRAM_ID, accounts, data), nil
}

// RaydiumSwapInstruction swaps amountIn on the AMM v4 pool in pool. Buys spend
// wrapped SOL for the mint, sells the other way round. Serum market accounts the
// program does not read are filled with a placeholder.
func RaydiumSwapInstruction(user solana.PublicKey, pool solanaswapgo.RaydiumAddresses, buy bool, amountIn, minimumAmountOut uint64) (solana.Instruction, error) {
	wsol, err := AssociatedTokenAddress(user, solanaswapgo.NATIVE_SOL_MINT_PROGRAM_ID)
	if err != nil {
		return nil, fmt.Errorf("wsol account: %w", err)
	}
	tokens, err := AssociatedTokenAddress(user, pool.Mint)
	if err != nil {
		return nil, fmt.Errorf("token account: %w", err)
	}
	data, err := encodeArgs(raydiumSwapArgs{
		Discriminator:    raydiumSwapBaseIn,
		AmountIn:         amountIn,
		MinimumAmountOut: minimumAmountOut,
	})
	if err != nil {
		return nil, err
	}

	source, destination := tokens, wsol
	if buy {
		source, destination = wsol, tokens
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(solana.TokenProgramID),
		solana.Meta(pool.Amm).WRITE(),
		solana.Meta(solanaswapgo.RAYDIUM_AUTHORITY_ID),
		filler(),
		filler(),
		solana.Meta(pool.Pool1).WRITE(),
		solana.Meta(pool.Pool2).WRITE(),
	}
	for i := 0; i < 8; i++ {
		accounts = append(accounts, filler())
	}
	accounts = append(accounts,
		solana.Meta(source).WRITE(),
		solana.Meta(destination).WRITE(),
		solana.Meta(user).WRITE().SIGNER(),
	)
	return solana.NewInstruction(solanaswapgo.RAYDIUM_V4_PROGRAM_ID, accounts, data), nil
}

func filler() *solana.AccountMeta {
	return solana.Meta(solanaswapgo.RAYDIUM_FILLER_ID).WRITE()
}

// CreateIdempotentATAInstruction creates owner's token account for mint unless it
// already exists. payer funds the rent.
func CreateIdempotentATAInstruction(payer, owner, mint solana.PublicKey) (solana.Instruction, error) {
	ata, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("token account: %w", err)
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(ata).WRITE(),
		solana.Meta(owner),
		solana.Meta(mint),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.TokenProgramID),
	}, []byte{createIdempotent}), nil
}
