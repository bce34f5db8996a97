package compose

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/heroes-chatbot/orchestrator/internal/historical"
	"github.com/heroes-chatbot/orchestrator/internal/llm"
	"github.com/heroes-chatbot/orchestrator/internal/market"
	"github.com/heroes-chatbot/orchestrator/internal/personas"
	"github.com/heroes-chatbot/orchestrator/internal/router"
)

type stubGenerator struct {
	response   string
	err        error
	lastSystem string
	lastUser   string
	calls      int
}

func (s *stubGenerator) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	s.calls++
	for _, m := range messages {
		switch m.Role {
		case "system":
			s.lastSystem = m.Content
		case "user":
			s.lastUser = m.Content
		}
	}
	return s.response, s.err
}

func samsungMetrics() *market.Metrics {
	return &market.Metrics{
		Symbol:   "005930",
		Name:     "삼성전자",
		Price:    market.Float(71200),
		PER:      market.Float(13.42),
		EPS:      market.Float(5303),
		DivYield: market.Float(2.51),
	}
}

func TestMetricFastPath(t *testing.T) {
	gen := &stubGenerator{}
	c := New(gen, zaptest.NewLogger(t))

	out := c.Compose(context.Background(), Input{
		Message: "삼성전자 PER 알려줘",
		Persona: personas.Get(personas.Buffett),
		Intent:  router.IntentCompanyMetrics,
		Symbols: []string{"005930"},
		Metrics: []*market.Metrics{samsungMetrics()},
	})
	assert.Equal(t, "삼성전자 PER은 13.42배입니다.", out)
	assert.Zero(t, gen.calls)
}

func TestMetricFastPathZeroDecimals(t *testing.T) {
	c := New(&stubGenerator{}, zaptest.NewLogger(t))

	out := c.Compose(context.Background(), Input{
		Message: "삼성전자 EPS 얼마야?",
		Persona: personas.Get(personas.Buffett),
		Intent:  router.IntentCompanyMetrics,
		Metrics: []*market.Metrics{samsungMetrics()},
	})
	assert.Equal(t, "삼성전자 EPS은 5,303원입니다.", out)
}

func TestPriceFastPath(t *testing.T) {
	c := New(&stubGenerator{}, zaptest.NewLogger(t))

	out := c.Compose(context.Background(), Input{
		Message: "삼성전자 현재가 얼마?",
		Persona: personas.Get(personas.Buffett),
		Intent:  router.IntentCompanyMetrics,
		Metrics: []*market.Metrics{samsungMetrics()},
	})
	assert.Equal(t, "삼성전자 현재가는 71,200원입니다.", out)
}

func TestContextWordDisablesFastPath(t *testing.T) {
	gen := &stubGenerator{response: "버핏의 관점에서 보면..."}
	c := New(gen, zaptest.NewLogger(t))

	out := c.Compose(context.Background(), Input{
		Message: "삼성전자 주가 전망 어때?",
		Persona: personas.Get(personas.Buffett),
		Intent:  router.IntentCompanyAnalysis,
		Metrics: []*market.Metrics{samsungMetrics()},
	})
	assert.Equal(t, "버핏의 관점에서 보면...", out)
	assert.Equal(t, 1, gen.calls)
}

func TestMissingMetricValue(t *testing.T) {
	c := New(&stubGenerator{}, zaptest.NewLogger(t))

	out := c.Compose(context.Background(), Input{
		Message: "삼성전자 PBR 알려줘",
		Persona: personas.Get(personas.Buffett),
		Intent:  router.IntentCompanyMetrics,
		Metrics: []*market.Metrics{samsungMetrics()},
	})
	assert.Equal(t, "삼성전자 PBR 정보를 불러오지 못했습니다.", out)
}

func TestPEGWithoutGrowthData(t *testing.T) {
	c := New(&stubGenerator{}, zaptest.NewLogger(t))

	out := c.Compose(context.Background(), Input{
		Message: "삼성전자 PEG 알려줘",
		Persona: personas.Get(personas.Lynch),
		Intent:  router.IntentCompanyMetrics,
		Metrics: []*market.Metrics{samsungMetrics()},
	})
	assert.Contains(t, out, "PEG를 계산하려면 최신 EPS 성장률이 필요한데")
}

func TestPEGWithValue(t *testing.T) {
	m := samsungMetrics()
	m.PEG = market.Float(1.23)
	m.EPSGrowth = market.Float(10.9)
	c := New(&stubGenerator{}, zaptest.NewLogger(t))

	out := c.Compose(context.Background(), Input{
		Message: "삼성전자 PEG 알려줘",
		Persona: personas.Get(personas.Lynch),
		Intent:  router.IntentCompanyMetrics,
		Metrics: []*market.Metrics{m},
	})
	assert.Equal(t, "삼성전자 PEG는 1.23입니다. (EPS 성장률 10.9% 기반)", out)
}

func TestGeneratorFailureReturnsApology(t *testing.T) {
	gen := &stubGenerator{err: errors.New("llm down")}
	c := New(gen, zaptest.NewLogger(t))

	out := c.Compose(context.Background(), Input{
		Message: "안녕",
		Persona: personas.Get(personas.Buffett),
		Intent:  router.IntentSmalltalk,
	})
	assert.Equal(t, ApologyResponse, out)
}

func TestEvidenceFlowsIntoPrompt(t *testing.T) {
	gen := &stubGenerator{response: "응답"}
	c := New(gen, zaptest.NewLogger(t))

	c.Compose(context.Background(), Input{
		Message:         "버핏 포트폴리오 변화 알려줘",
		Persona:         personas.Get(personas.Buffett),
		Intent:          router.IntentHistoricalData,
		ValidatedAnswer: "검증된 답변 본문",
		Portfolio: []historical.PortfolioSnapshot{
			{AsOf: "2024-Q2", Symbols: "AAPL,KO", Summary: "애플 비중 축소"},
		},
	})
	assert.Contains(t, gen.lastSystem, "[RAG 검증된 요약]")
	assert.Contains(t, gen.lastSystem, "검증된 답변 본문")
	assert.Contains(t, gen.lastSystem, "애플 비중 축소")
	assert.Equal(t, "버핏 포트폴리오 변화 알려줘", gen.lastUser)
}

func TestMacroTextsFlowIntoPrompt(t *testing.T) {
	gen := &stubGenerator{response: "응답"}
	c := New(gen, zaptest.NewLogger(t))

	rate := 3.5
	c.Compose(context.Background(), Input{
		Message: "한국 경제 상황 어때?",
		Persona: personas.Get(personas.Buffett),
		Intent:  router.IntentMacroOutlook,
		Macro: []historical.MacroRecord{
			{Region: "KR", Period: "2024-Q2", BaseRate: &rate, Summary: "완만한 둔화"},
		},
	})
	assert.Contains(t, gen.lastSystem, "2024-Q2 경제지표")
	assert.Contains(t, gen.lastSystem, "기준금리(%): 3.50")
}

func TestFormatNumberGrouping(t *testing.T) {
	assert.Equal(t, "1,234,567", formatNumber(1234567, 0))
	assert.Equal(t, "71,200", formatNumber(71200, 0))
	assert.Equal(t, "13.42", formatNumber(13.42, 2))
	assert.Equal(t, "-5,303", formatNumber(-5303, 0))
	assert.Equal(t, "999", formatNumber(999, 0))
}

func TestDetectMetricRequestTable(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"삼성전자 PER 알려줘", "PER"},
		{"주당 순이익 얼마야?", "EPS"},
		{"배당 수익률 궁금해", "DIV_YIELD"},
		{"PER 전망 어때?", ""},
		{"그냥 인사", ""},
	}
	for _, tc := range cases {
		spec := detectMetricRequest(tc.message)
		if tc.want == "" {
			assert.Nil(t, spec, tc.message)
		} else {
			require.NotNil(t, spec, tc.message)
			assert.Equal(t, tc.want, spec.key, tc.message)
		}
	}
}
