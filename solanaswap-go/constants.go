package solanaswapgo

import "github.com/gagliardetto/solana-go"

var (
	RAYDIUM_V4_PROGRAM_ID      = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	RAYDIUM_AUTHORITY_ID       = solana.MustPublicKeyFromBase58("5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1")
	PUMP_FUN_PROGRAM_ID        = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	PUMP_FUN_GLOBAL_ID         = solana.MustPublicKeyFromBase58("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	PUMP_FUN_FEE_RECIPIENT_ID  = solana.MustPublicKeyFromBase58("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM")
	PUMP_FUN_EVENT_AUTHORITY   = solana.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
	PUMP_FUN_MIGRATION_ID      = solana.MustPublicKeyFromBase58("39azUYFWPz3VHgKCf3VChUwbpURdCHRxjWVowf5jUJjg")
	OPENBOOK_PROGRAM_ID        = solana.MustPublicKeyFromBase58("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	NATIVE_SOL_MINT_PROGRAM_ID = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	// filler for AMM swap accounts the program never reads
	RAYDIUM_FILLER_ID = solana.MustPublicKeyFromBase58("2ZyqjqRMc7swFdXa2tC3tbzkJQVs6pEmUQ1f1zRQ5AA3")
)

var JITO_TIP_ADDRESSES = mustKeys(
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
)

var NOZOMI_TIP_ADDRESSES = mustKeys(
	"TEMPaMeCRFAS9EKF53Jd6KpHxgL47uWLcpFArU1Fanq",
	"noz3jAjPiHuBPqiSPkkugaJDkJscPuRhYnSpbi8UvC4",
	"noz3str9KXfpKknefHji8L1mPgimezaiUyCHYMDv1GE",
	"noz6uoYCDijhu1V7cutCpwxNiSovEwLdRHPwmgCGDNo",
	"noz9EPNcT7WH6Sou3sr3GGjHQYVkN3DNirpbvDkv9YJ",
	"nozc5yT15LazbLTFVZzoNZCwjh3yUtW86LoUyqsBu4L",
	"nozFrhfnNGoyqwVuwPAW4aaGqempx4PU6g6D9CJMv7Z",
	"nozievPk7HyK1Rqy1MPJwVQ7qQg2QoJGyP71oeDwbsu",
	"noznbgwYnBLDHu8wcQVCEw6kDrXkPdKkydGJGNXGvL7",
	"nozNVWs5N8mgzuD3qigrCG2UoKxZttxzZ85pvAQVrbP",
	"nozpEGbwx4BcGp6pvEdAh1JoC2CQGZdU6HbNP1v2p6P",
	"nozrhjhkCr3zXT3BiT4WCodYCUFeQvcdUkM7MqhKqge",
	"nozrwQtWhEdrA6W8dkbt9gnUaMs52PdAv5byipnadq3",
	"nozUacTVWub3cL4mJmGCYjKZTnE9RbdY5AP46iQgbPJ",
	"nozWCyTPppJjRuw2fpzDhhWbW355fzosWSzrrMYB1Qk",
	"nozWNju6dY353eMkMqURqwQEoM3SFgEKC6psLCSfUne",
	"nozxNBgWohjR75vdspfxR5H9ceC7XXH99xpxhVGt3Bb",
)

// feePayingAddresses are accounts whose balance gain is charged to the trader:
// relay tips and the bonding-curve fee recipient.
var feePayingAddresses = func() map[solana.PublicKey]struct{} {
	out := make(map[solana.PublicKey]struct{}, len(JITO_TIP_ADDRESSES)+len(NOZOMI_TIP_ADDRESSES)+1)
	for _, k := range JITO_TIP_ADDRESSES {
		out[k] = struct{}{}
	}
	out[PUMP_FUN_FEE_RECIPIENT_ID] = struct{}{}
	for _, k := range NOZOMI_TIP_ADDRESSES {
		out[k] = struct{}{}
	}
	return out
}()

// IsFeePayingAddress reports whether balance deltas on key count toward the trade fee.
func IsFeePayingAddress(key solana.PublicKey) bool {
	_, ok := feePayingAddresses[key]
	return ok
}

func mustKeys(keys ...string) []solana.PublicKey {
	out := make([]solana.PublicKey, len(keys))
	for i, k := range keys {
		out[i] = solana.MustPublicKeyFromBase58(k)
	}
	return out
}
