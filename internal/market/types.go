package market

// Metrics is a normalized snapshot of a single listed equity, keyed by the
// 6-digit KRX code. Nil pointer fields mean the upstream response omitted
// the value.
type Metrics struct {
	Symbol     string   `json:"symbol"`
	Name       string   `json:"name,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	MarketCap  *float64 `json:"market_cap,omitempty"`
	PER        *float64 `json:"per,omitempty"`
	PBR        *float64 `json:"pbr,omitempty"`
	EPS        *float64 `json:"eps,omitempty"`
	BPS        *float64 `json:"bps,omitempty"`
	ROE        *float64 `json:"roe,omitempty"`
	DivYield   *float64 `json:"div_yield,omitempty"`
	Volume     *float64 `json:"volume,omitempty"`
	TradeValue *float64 `json:"trade_value,omitempty"`
	High52W    *float64 `json:"high_52w,omitempty"`
	Low52W     *float64 `json:"low_52w,omitempty"`
	ChangeRate *float64 `json:"change_rate,omitempty"`
	PEG        *float64 `json:"peg,omitempty"`
	EPSGrowth  *float64 `json:"eps_growth_percent,omitempty"`
}

// Float returns a pointer to v. Helper for building test fixtures.
func Float(v float64) *float64 { return &v }

// quoteResponse mirrors the raw ka10001 payload. All numeric fields arrive
// as strings, sometimes signed or comma-grouped.
type quoteResponse struct {
	ReturnCode interface{} `json:"return_code"`
	ReturnMsg  string      `json:"return_msg"`
	StockName  string      `json:"stk_nm"`
	CurPrice   string      `json:"cur_prc"`
	Volume     string      `json:"trde_qty"`
	PER        string      `json:"per"`
	PBR        string      `json:"pbr"`
	EPS        string      `json:"eps"`
	BPS        string      `json:"bps"`
	ROE        string      `json:"roe"`
	DivYield   string      `json:"dvd_yld"`
	MarketCap  string      `json:"mac"`
	High52W    string      `json:"oyr_hgst"`
	Low52W     string      `json:"oyr_lwst"`
	FluRate    string      `json:"flu_rt"`
	TradeDate  string      `json:"trd_dd"`
}
