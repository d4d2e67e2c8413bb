package api

// REST and WebSocket wire types. Amounts cross the wire as base-10
// strings so 18-decimal token quantities survive JSON number precision.

// ==============================
// REST response types
// ==============================

type OrderInfo struct {
	ID          uint64  `json:"id"`
	Maker       string  `json:"maker"`
	Taker       string  `json:"taker,omitempty"`
	TokenGet    string  `json:"tokenGet"`
	AmountGet   string  `json:"amountGet"`
	TokenGive   string  `json:"tokenGive"`
	AmountGive  string  `json:"amountGive"`
	Side        string  `json:"side"`
	BaseAmount  string  `json:"baseAmount"`
	QuoteAmount string  `json:"quoteAmount"`
	Price       float64 `json:"price"`
	Status      string  `json:"status"`
	CreatedAt   int64   `json:"createdAt"`
}

type OrderbookSnapshot struct {
	Buys      []OrderInfo `json:"buys"`  // sorted newest first
	Sells     []OrderInfo `json:"sells"` // sorted newest first
	Timestamp int64       `json:"timestamp"`
}

type AccountOrders struct {
	Open   []OrderInfo `json:"open"`
	Filled []OrderInfo `json:"filled"`
}

type TokenBalance struct {
	Symbol   string `json:"symbol"`
	Token    string `json:"token"`
	Wallet   string `json:"wallet"`   // balance held in the user's wallet
	Exchange string `json:"exchange"` // balance deposited on the exchange
}

type AccountBalances struct {
	Address  string         `json:"address"`
	Balances []TokenBalance `json:"balances"`
}

type CandleInfo struct {
	Start int64   `json:"start"` // bucket start, unix seconds
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type ChartInfo struct {
	Candles   []CandleInfo `json:"candles"`
	LastPrice float64      `json:"lastPrice"`
	Up        bool         `json:"up"`
}

type ChainStatus struct {
	ChainID       uint64 `json:"chainId"`
	Height        uint64 `json:"height"`
	OrderCount    uint64 `json:"orderCount"`
	FeeAccount    string `json:"feeAccount"`
	FeePercentage uint64 `json:"feePercentage"`
}

type TxReceipt struct {
	Block  uint64 `json:"block"`
	TxHash string `json:"txHash"`
}

// ==============================
// REST request types
// ==============================

type DepositRequest struct {
	From   string `json:"from"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type WithdrawRequest struct {
	From   string `json:"from"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type MakeOrderRequest struct {
	From       string `json:"from"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
}

type OrderActionRequest struct {
	From string `json:"from"`
}

type FaucetRequest struct {
	From   string `json:"from"`
	Symbol string `json:"symbol"`
}

// ==============================
// WebSocket message types
// ==============================

type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type WSEventMessage struct {
	Channel string      `json:"channel"` // event name, e.g. "FillOrder"
	Block   uint64      `json:"block"`
	TxHash  string      `json:"txHash"`
	Data    interface{} `json:"data"`
}
