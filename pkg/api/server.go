package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/dexhub/tokenex/pkg/chain"
	"github.com/dexhub/tokenex/pkg/exchange"
	"github.com/dexhub/tokenex/pkg/projector"
	"github.com/dexhub/tokenex/pkg/token"
)

// Server exposes the exchange over REST and streams chain events over
// WebSocket. Reads come from the projector; writes go through the
// exchange facade, which serializes them on the chain host.
type Server struct {
	exch   *exchange.Exchange
	host   *chain.Chain
	proj   *projector.Projector
	market projector.Market
	tokens map[string]*token.Token // keyed by symbol
	router *mux.Router
	hub    *Hub
	logger *zap.Logger

	httpSrv *http.Server
	sub     *chain.Subscription
}

func NewServer(exch *exchange.Exchange, host *chain.Chain, proj *projector.Projector, market projector.Market, tokens map[string]*token.Token, logger *zap.Logger) *Server {
	s := &Server{
		exch:   exch,
		host:   host,
		proj:   proj,
		market: market,
		tokens: tokens,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market reads
	api.HandleFunc("/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/ohlc", s.handleGetOHLC).Methods("GET")

	// Orders
	api.HandleFunc("/orders", s.handleMakeOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/fill", s.handleFillOrder).Methods("POST")

	// Funds
	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/faucet", s.handleFaucet).Methods("POST")

	// Accounts
	api.HandleFunc("/accounts/{address}/orders", s.handleGetAccountOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/balances", s.handleGetAccountBalances).Methods("GET")

	// Chain
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the route tree without CORS wrapping, for tests and
// embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the hub, the chain event stream, and the HTTP listener.
// It blocks until the listener fails or Stop is called.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.sub = s.host.Subscribe(256)
	go s.streamEvents(s.sub)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.httpSrv = &http.Server{Addr: addr, Handler: c.Handler(s.router)}
	s.logger.Info("api server starting", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains the listener, ends the event stream and disconnects all
// WebSocket clients. Safe to call without a prior Start.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if s.sub != nil {
		s.sub.Close()
	}
	s.hub.Stop()
	return err
}

// streamEvents forwards committed chain logs to WebSocket subscribers,
// one channel per event name. It returns when the subscription closes.
func (s *Server) streamEvents(sub *chain.Subscription) {
	for l := range sub.Logs() {
		s.hub.BroadcastToChannel(l.Event.Name(), WSEventMessage{
			Channel: l.Event.Name(),
			Block:   l.Meta.BlockNumber,
			TxHash:  l.Meta.TxHash.Hex(),
			Data:    l.Event,
		})
	}
}

// ==============================
// Read handlers
// ==============================

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	account := optionalAddress(r.URL.Query().Get("account"))
	buys, sells := s.proj.OpenOrders(s.market, account)

	respondJSON(w, OrderbookSnapshot{
		Buys:      toOrderInfos(buys),
		Sells:     toOrderInfos(sells),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.proj.TradeBook(s.market)
	respondJSON(w, toOrderInfos(trades))
}

func (s *Server) handleGetOHLC(w http.ResponseWriter, r *http.Request) {
	bucket := 30 * time.Minute
	if v := r.URL.Query().Get("bucket"); v != "" {
		mins, err := strconv.Atoi(v)
		if err != nil || mins <= 0 {
			respondError(w, http.StatusBadRequest, "bad_request", "bucket must be a positive number of minutes")
			return
		}
		bucket = time.Duration(mins) * time.Minute
	}

	chart := s.proj.OHLC(s.market, bucket)
	out := ChartInfo{
		Candles:   make([]CandleInfo, len(chart.Candles)),
		LastPrice: chart.LastPrice,
		Up:        chart.Up,
	}
	for i, c := range chart.Candles {
		out.Candles[i] = CandleInfo{Start: c.Start.Unix(), Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "order id must be a positive integer")
		return
	}

	order, ok := s.exch.Order(id)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "no such order")
		return
	}
	status, _ := s.exch.Status(id)

	respondJSON(w, OrderInfo{
		ID:         order.ID,
		Maker:      order.Maker.Hex(),
		TokenGet:   order.TokenGet.Hex(),
		AmountGet:  order.AmountGet.String(),
		TokenGive:  order.TokenGive.Hex(),
		AmountGive: order.AmountGive.String(),
		Status:     status.String(),
		CreatedAt:  order.CreatedAt,
	})
}

func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid address")
		return
	}

	hist := s.proj.MyHistory(s.market, account)
	respondJSON(w, AccountOrders{
		Open:   toOrderInfos(hist.Orders),
		Filled: toOrderInfos(hist.Trades),
	})
}

func (s *Server) handleGetAccountBalances(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid address")
		return
	}

	out := AccountBalances{Address: account.Hex()}
	for sym, t := range s.tokens {
		out.Balances = append(out.Balances, TokenBalance{
			Symbol:   sym,
			Token:    t.Address().Hex(),
			Wallet:   t.BalanceOf(account).String(),
			Exchange: s.exch.BalanceOf(t.Address(), account).String(),
		})
	}
	respondJSON(w, out)
}

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ChainStatus{
		ChainID:       s.host.ID(),
		Height:        s.host.Head(),
		OrderCount:    s.exch.GetOrderCount(),
		FeeAccount:    s.exch.GetFeeAccount().Hex(),
		FeePercentage: s.exch.GetFeePercentage(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Write handlers
// ==============================

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	from, ok := parseAddress(req.From)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid from address")
		return
	}
	tok, ok := parseAddress(req.Token)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid token address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "amount must be a positive integer string")
		return
	}

	logs, err := s.exch.Deposit(from, tok, amount)
	s.respondTx(w, logs, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	from, ok := parseAddress(req.From)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid from address")
		return
	}
	tok, ok := parseAddress(req.Token)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid token address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "amount must be a positive integer string")
		return
	}

	logs, err := s.exch.Withdraw(from, tok, amount)
	s.respondTx(w, logs, err)
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req MakeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	from, ok := parseAddress(req.From)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid from address")
		return
	}
	tokenGet, ok := parseAddress(req.TokenGet)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid tokenGet address")
		return
	}
	tokenGive, ok := parseAddress(req.TokenGive)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid tokenGive address")
		return
	}
	amountGet, ok := parseAmount(req.AmountGet)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "amountGet must be a positive integer string")
		return
	}
	amountGive, ok := parseAmount(req.AmountGive)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "amountGive must be a positive integer string")
		return
	}

	logs, err := s.exch.MakeOrder(from, tokenGet, amountGet, tokenGive, amountGive)
	s.respondTx(w, logs, err)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, s.exch.CancelOrder)
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, s.exch.FillOrder)
}

func (s *Server) handleOrderAction(w http.ResponseWriter, r *http.Request, action func(common.Address, uint64) ([]chain.Log, error)) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "order id must be a positive integer")
		return
	}

	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	from, ok := parseAddress(req.From)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid from address")
		return
	}

	logs, err := action(from, id)
	s.respondTx(w, logs, err)
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	from, ok := parseAddress(req.From)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid from address")
		return
	}
	t, ok := s.tokens[req.Symbol]
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "unknown token symbol")
		return
	}

	logs, err := s.host.Submit(func(tx *chain.Tx) error {
		return t.GetTokens(tx, from)
	})
	s.respondTx(w, logs, err)
}

// respondTx reports the committed block and tx hash on success, or the
// fault message with a 422 on rejection.
func (s *Server) respondTx(w http.ResponseWriter, logs []chain.Log, err error) {
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "rejected", err.Error())
		return
	}
	receipt := TxReceipt{}
	if len(logs) > 0 {
		receipt.Block = logs[0].Meta.BlockNumber
		receipt.TxHash = logs[0].Meta.TxHash.Hex()
	}
	respondJSON(w, receipt)
}

// ==============================
// Helpers
// ==============================

func toOrderInfos(orders []*projector.DisplayOrder) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, d := range orders {
		out[i] = OrderInfo{
			ID:          d.ID,
			Maker:       d.Maker.Hex(),
			TokenGet:    d.TokenGet.Hex(),
			AmountGet:   d.AmountGet.String(),
			TokenGive:   d.TokenGive.Hex(),
			AmountGive:  d.AmountGive.String(),
			Side:        string(d.Side),
			BaseAmount:  d.BaseAmount.String(),
			QuoteAmount: d.QuoteAmount.String(),
			Price:       d.Price,
			Status:      d.Status.String(),
			CreatedAt:   d.CreatedAt,
		}
		if d.Taker != (common.Address{}) {
			out[i].Taker = d.Taker.Hex()
		}
	}
	return out
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// optionalAddress treats a missing or malformed account parameter as
// "no account", which just disables own-order highlighting.
func optionalAddress(s string) common.Address {
	if !common.IsHexAddress(s) {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func parseAmount(s string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
