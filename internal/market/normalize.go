package market

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/metrics"
)

// parseNumber converts a raw quote field to a float. Values arrive as
// strings with comma grouping and an optional +/- sign prefix.
func parseNumber(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Normalize converts a raw ka10001 payload into Metrics.
//
// The upstream feed reports the current price with a sign that encodes
// direction against the previous close, and occasionally emits a negative
// 52-week low the same way. Both are folded to absolute values; the
// 52-week low case is logged because it indicates a feed anomaly rather
// than a tick convention.
func (c *Client) normalize(raw *quoteResponse, symbol string) *Metrics {
	m := &Metrics{
		Symbol: symbol,
		Name:   strings.TrimSpace(raw.StockName),
	}

	if p := parseNumber(raw.CurPrice); p != nil {
		abs := math.Abs(*p)
		m.Price = &abs
	}
	m.Volume = parseNumber(raw.Volume)
	m.PER = parseNumber(raw.PER)
	m.PBR = parseNumber(raw.PBR)
	m.EPS = parseNumber(raw.EPS)
	m.BPS = parseNumber(raw.BPS)
	m.ROE = parseNumber(raw.ROE)
	m.DivYield = parseNumber(raw.DivYield)
	m.MarketCap = parseNumber(raw.MarketCap)
	m.High52W = parseNumber(raw.High52W)
	m.ChangeRate = parseNumber(raw.FluRate)

	if low := parseNumber(raw.Low52W); low != nil {
		if *low < 0 {
			fixed := math.Abs(*low)
			c.logger.Warn("52-week low reported negative, using absolute value",
				zap.String("symbol", symbol),
				zap.Float64("raw", *low),
				zap.Float64("fixed", fixed),
			)
			metrics.MarketSignCorrections.Inc()
			m.Low52W = &fixed
		} else {
			m.Low52W = low
		}
	}

	if m.Price != nil && m.Volume != nil {
		tv := *m.Price * *m.Volume
		m.TradeValue = &tv
	}

	return m
}

// quoteFailed reports whether the payload carries an upstream error code.
// return_code 0 (number or string) and a missing field both mean success.
func quoteFailed(raw *quoteResponse) bool {
	switch v := raw.ReturnCode.(type) {
	case nil:
		return false
	case string:
		return v != "0" && v != ""
	case float64:
		return v != 0
	default:
		return true
	}
}
