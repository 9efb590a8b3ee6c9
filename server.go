package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/franco-bianco/solanatrade-go/metrics"
	"github.com/franco-bianco/solanatrade-go/rpcpool"
	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
	"github.com/franco-bianco/solanatrade-go/spltoken/price"
	"github.com/franco-bianco/solanatrade-go/stream"
	"github.com/franco-bianco/solanatrade-go/txbuilder"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const rpcTimeout = 10 * time.Second

type server struct {
	log         *logrus.Logger
	fetcher     solanaswapgo.TransactionFetcher
	transport   *rpcpool.Transport
	mux         *stream.Multiplexer
	pools       *price.PoolCache
	blockhashes *txbuilder.BlockhashCache
	// nil when no wallet is configured
	executor *txbuilder.Executor
	gatherer prometheus.Gatherer
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/parse", s.handleParse)
	mux.HandleFunc("/quote", s.handleQuote)
	mux.HandleFunc("/orders", s.handleOrder)
	mux.Handle("/metrics", metrics.Handler(s.gatherer))
	return mux
}

type parseReq struct {
	Signature string `json:"signature"`
}

type parseResp struct {
	Signature    string                             `json:"signature"`
	Slot         uint64                             `json:"slot"`
	Failed       bool                               `json:"failed"`
	Trades       []solanaswapgo.Trade               `json:"trades"`
	Liquidity    string                             `json:"liquidity"`
	Migration    *solanaswapgo.RaydiumAddresses     `json:"migration,omitempty"`
	PoolBalances []solanaswapgo.PoolBalance         `json:"poolBalances,omitempty"`
	Reserves     []solanaswapgo.BondingCurveReserve `json:"bondingCurveReserves,omitempty"`
}

type healthResp struct {
	Status       string               `json:"status"`
	Stream       *stream.Stats        `json:"stream,omitempty"`
	Basic        []rpcpool.NodeHealth `json:"basic"`
	Performance  []rpcpool.NodeHealth `json:"performance"`
	BlockhashAge string               `json:"blockhashAge,omitempty"`
	Trading      bool                 `json:"trading"`
}

type quoteResp struct {
	Amm       solana.PublicKey         `json:"amm"`
	Direction solanaswapgo.Direction   `json:"direction"`
	AmountIn  uint64                   `json:"amountIn"`
	AmountOut uint64                   `json:"amountOut"`
	Pool      solanaswapgo.PoolBalance `json:"pool"`
	Price     string                   `json:"tokensPerLamport"`
}

type orderReq struct {
	Venue               solanaswapgo.SwapType          `json:"venue"`
	Direction           solanaswapgo.Direction         `json:"direction"`
	Mint                solana.PublicKey               `json:"mint"`
	Amount              uint64                         `json:"amount"`
	Limit               uint64                         `json:"limit"`
	Pool                *solanaswapgo.RaydiumAddresses `json:"pool,omitempty"`
	PriorityFeeLamports uint64                         `json:"priorityFeeLamports"`
	JitoTipLamports     uint64                         `json:"jitoTipLamports"`
	NozomiTipLamports   uint64                         `json:"nozomiTipLamports"`
}

type orderResp struct {
	// nil when the venue rejected the order with a known program error
	Trade *solanaswapgo.Trade `json:"trade"`
}

type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSONMaybePretty(w http.ResponseWriter, status int, v interface{}, pretty bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func isPretty(r *http.Request) bool {
	v := r.URL.Query().Get("pretty")
	return v == "1" || v == "true"
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(`
<!doctype html>
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Solana Trade Decoder</title>
<div style="font: 16px system-ui; max-width: 900px; margin: 40px auto; line-height:1.5;">
  <h1 style="margin:0 0 16px;">Trade decoder</h1>
  <form action="/parse" method="get">
    <label>Signature<br>
      <input name="signature" style="width: 100%; padding: 8px;" placeholder="Paste a transaction signature" autofocus>
    </label>
    <div style="margin: 12px 0;">
      <label><input type="checkbox" name="pretty" value="1" checked> pretty</label>
    </div>
    <button type="submit" style="padding: 8px 14px;">Parse</button>
  </form>
  <p style="margin-top: 24px; color:#666;">
    <a href="/healthz?pretty=1">health</a> &middot; <a href="/metrics">metrics</a>
  </p>
</div>
`))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResp{
		Status:  "ok",
		Trading: s.executor != nil,
	}
	if s.mux != nil {
		st := s.mux.Stats()
		resp.Stream = &st
	}
	if s.transport != nil {
		resp.Basic = s.transport.Basic().Health()
		resp.Performance = s.transport.Performance().Health()
	}
	if s.blockhashes != nil {
		if _, err := s.blockhashes.Latest(); err != nil {
			resp.Status = "degraded"
		} else {
			resp.BlockhashAge = s.blockhashes.Age().Round(time.Millisecond).String()
		}
	}
	writeJSONMaybePretty(w, http.StatusOK, resp, isPretty(r))
}

// handleParse supports POST (JSON) and GET (?signature=...&pretty=1).
func (s *server) handleParse(w http.ResponseWriter, r *http.Request) {
	pretty := isPretty(r)

	var sigStr string
	switch r.Method {
	case http.MethodPost:
		var req parseReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONMaybePretty(w, http.StatusBadRequest, apiError{Error: "bad_request", Details: "invalid JSON body"}, pretty)
			return
		}
		sigStr = req.Signature
	case http.MethodGet:
		sigStr = r.URL.Query().Get("signature")
	default:
		writeJSONMaybePretty(w, http.StatusMethodNotAllowed, apiError{Error: "method_not_allowed"}, pretty)
		return
	}

	if sigStr == "" {
		writeJSONMaybePretty(w, http.StatusBadRequest, apiError{Error: "bad_request", Details: "signature is required"}, pretty)
		return
	}
	sig, err := solana.SignatureFromBase58(sigStr)
	if err != nil {
		writeJSONMaybePretty(w, http.StatusBadRequest, apiError{Error: "bad_request", Details: "invalid signature (base58)"}, pretty)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), rpcTimeout)
	defer cancel()

	res, err := s.fetcher.GetTransaction(ctx, sig)
	switch {
	case errors.Is(err, rpc.ErrNotFound) || (err == nil && res == nil):
		writeJSONMaybePretty(w, http.StatusNotFound, apiError{Error: "not_found", Details: "transaction not found"}, pretty)
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONMaybePretty(w, http.StatusGatewayTimeout, apiError{Error: "timeout", Details: err.Error()}, pretty)
		return
	case err != nil:
		writeJSONMaybePretty(w, http.StatusBadGateway, apiError{Error: "rpc_error", Details: err.Error()}, pretty)
		return
	}

	raw, err := solanaswapgo.RawTransactionFromRPC(res)
	if err != nil {
		writeJSONMaybePretty(w, http.StatusUnprocessableEntity, apiError{Error: "parse_init_error", Details: err.Error()}, pretty)
		return
	}
	parser := solanaswapgo.NewTransactionParserFromRaw(raw)
	parser.Log = s.log

	resp := parseResp{
		Signature:    raw.Signature.String(),
		Slot:         raw.Slot,
		Failed:       raw.Err != nil,
		Trades:       parser.ParseTransaction(),
		Liquidity:    parser.DetectLiquidityOp().String(),
		PoolBalances: parser.PoolBalances(),
		Reserves:     solanaswapgo.BondingCurveReserves(raw),
	}
	if resp.Trades == nil {
		resp.Trades = []solanaswapgo.Trade{}
	}
	if migration, ok := parser.DetectMigration(); ok {
		resp.Migration = migration
	}
	if s.pools != nil {
		for _, b := range resp.PoolBalances {
			s.pools.Put(b)
		}
	}
	writeJSONMaybePretty(w, http.StatusOK, resp, pretty)
}

// handleQuote prices a swap against the last pool balance seen for ?amm=.
func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	pretty := isPretty(r)
	q := r.URL.Query()

	amm, err := solana.PublicKeyFromBase58(q.Get("amm"))
	if err != nil {
		writeJSONMaybePretty(w, http.StatusBadRequest, apiError{Error: "bad_request", Details: "invalid amm address"}, pretty)
		return
	}
	amountIn, err := strconv.ParseUint(q.Get("amount"), 10, 64)
	if err != nil {
		writeJSONMaybePretty(w, http.StatusBadRequest, apiError{Error: "bad_request", Details: "amount must be an unsigned integer"}, pretty)
		return
	}
	dir := solanaswapgo.Direction(q.Get("direction"))
	if dir == "" {
		dir = solanaswapgo.BUY
	}
	if dir != solanaswapgo.BUY && dir != solanaswapgo.SELL {
		writeJSONMaybePretty(w, http.StatusBadRequest, apiError{Error: "bad_request", Details: "direction must be buy or sell"}, pretty)
		return
	}

	pool, ok := s.pools.Get(amm)
	if !ok {
		writeJSONMaybePretty(w, http.StatusNotFound, apiError{Error: "not_found", Details: "no pool balance seen for " + amm.String()}, pretty)
		return
	}
	out, err := s.pools.Quote(amm, amountIn, dir == solanaswapgo.BUY)
	if err != nil {
		writeJSONMaybePretty(w, http.StatusNotFound, apiError{Error: "not_found", Details: err.Error()}, pretty)
		return
	}
	writeJSONMaybePretty(w, http.StatusOK, quoteResp{
		Amm:       amm,
		Direction: dir,
		AmountIn:  amountIn,
		AmountOut: out,
		Pool:      pool,
		Price:     price.PoolPrice(pool).String(),
	}, pretty)
}

func (s *server) handleOrder(w http.ResponseWriter, r *http.Request) {
	pretty := isPretty(r)
	if r.Method != http.MethodPost {
		writeJSONMaybePretty(w, http.StatusMethodNotAllowed, apiError{Error: "method_not_allowed"}, pretty)
		return
	}
	if s.executor == nil {
		writeJSONMaybePretty(w, http.StatusServiceUnavailable, apiError{Error: "trading_disabled", Details: "WALLET_PRIVATE_KEY is not set"}, pretty)
		return
	}

	var req orderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONMaybePretty(w, http.StatusBadRequest, apiError{Error: "bad_request", Details: "invalid JSON body"}, pretty)
		return
	}

	trade, err := s.executor.Execute(r.Context(), txbuilder.Order{
		Venue:               req.Venue,
		Direction:           req.Direction,
		Mint:                req.Mint,
		Amount:              req.Amount,
		Limit:               req.Limit,
		Pool:                req.Pool,
		PriorityFeeLamports: req.PriorityFeeLamports,
		JitoTipLamports:     req.JitoTipLamports,
		NozomiTipLamports:   req.NozomiTipLamports,
	})
	var rejected *stream.SlotRejectedError
	switch {
	case err == nil:
		writeJSONMaybePretty(w, http.StatusOK, orderResp{Trade: trade}, pretty)
	case errors.Is(err, stream.ErrConfirmationTimeout):
		writeJSONMaybePretty(w, http.StatusGatewayTimeout, apiError{Error: "confirmation_timeout", Details: err.Error()}, pretty)
	case errors.As(err, &rejected):
		writeJSONMaybePretty(w, http.StatusConflict, apiError{Error: "slot_rejected", Details: err.Error()}, pretty)
	case errors.Is(err, txbuilder.ErrNoBlockhash), errors.Is(err, txbuilder.ErrChannelUnavailable):
		writeJSONMaybePretty(w, http.StatusServiceUnavailable, apiError{Error: "unavailable", Details: err.Error()}, pretty)
	default:
		s.log.WithError(err).Warn("order failed")
		writeJSONMaybePretty(w, http.StatusBadGateway, apiError{Error: "order_failed", Details: err.Error()}, pretty)
	}
}
