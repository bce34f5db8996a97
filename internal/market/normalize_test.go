package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	return &Client{logger: zaptest.NewLogger(t)}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *float64
	}{
		{name: "plain", raw: "72500", want: Float(72500)},
		{name: "comma grouped", raw: "1,234,567", want: Float(1234567)},
		{name: "signed positive", raw: "+2.41", want: Float(2.41)},
		{name: "signed negative", raw: "-1.73", want: Float(-1.73)},
		{name: "empty", raw: "", want: nil},
		{name: "dash placeholder", raw: "-", want: nil},
		{name: "garbage", raw: "n/a", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseNumber(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestNormalizeNegative52WeekLow(t *testing.T) {
	c := testClient(t)

	raw := &quoteResponse{
		StockName: "삼성전자",
		CurPrice:  "72500",
		Low52W:    "-12345",
		High52W:   "88000",
	}

	m := c.normalize(raw, "005930")

	require.NotNil(t, m.Low52W)
	assert.Equal(t, float64(12345), *m.Low52W)
	require.NotNil(t, m.High52W)
	assert.Equal(t, float64(88000), *m.High52W)
}

func TestNormalizeSignedPriceFoldedToAbsolute(t *testing.T) {
	c := testClient(t)

	raw := &quoteResponse{CurPrice: "-72500", Volume: "1,000"}
	m := c.normalize(raw, "005930")

	require.NotNil(t, m.Price)
	assert.Equal(t, float64(72500), *m.Price)

	// trade value derives from folded price
	require.NotNil(t, m.TradeValue)
	assert.Equal(t, float64(72500000), *m.TradeValue)
}

func TestNormalizeMissingFields(t *testing.T) {
	c := testClient(t)

	m := c.normalize(&quoteResponse{StockName: " 기아 "}, "000270")

	assert.Equal(t, "기아", m.Name)
	assert.Nil(t, m.Price)
	assert.Nil(t, m.TradeValue)
	assert.Nil(t, m.PER)
}

func TestQuoteFailed(t *testing.T) {
	assert.False(t, quoteFailed(&quoteResponse{ReturnCode: nil}))
	assert.False(t, quoteFailed(&quoteResponse{ReturnCode: "0"}))
	assert.False(t, quoteFailed(&quoteResponse{ReturnCode: float64(0)}))
	assert.True(t, quoteFailed(&quoteResponse{ReturnCode: "4"}))
	assert.True(t, quoteFailed(&quoteResponse{ReturnCode: float64(100)}))
}
