package compose

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/heroes-chatbot/orchestrator/internal/market"
)

// Words that signal the user wants interpretation, not a bare number.
// Their presence disables the templated fast paths.
var contextWords = []string{"왜", "어떻게", "어때", "요즘", "분석", "전망", "매수", "매도", "살까", "팔까", "분해", "설명", "해석"}

var questionHints = []string{"얼마", "알려", "가르쳐", "말해", "?", "몇", "구해", "궁금", "주세요"}

var priceKeywords = []string{"현재가", "주가"}

type metricSpec struct {
	key      string
	keywords []string
	value    func(*market.Metrics) *float64
	display  string
	unit     string
	decimals int
}

var metricSpecs = []metricSpec{
	{key: "PER", keywords: []string{"PER", "피이알"}, value: func(m *market.Metrics) *float64 { return m.PER }, display: "PER", unit: "배", decimals: 2},
	{key: "PBR", keywords: []string{"PBR", "피비알"}, value: func(m *market.Metrics) *float64 { return m.PBR }, display: "PBR", unit: "배", decimals: 2},
	{key: "EPS", keywords: []string{"EPS", "주당순이익", "주당 순이익"}, value: func(m *market.Metrics) *float64 { return m.EPS }, display: "EPS", unit: "원", decimals: 0},
	{key: "BPS", keywords: []string{"BPS", "주당순자산", "주당 순자산"}, value: func(m *market.Metrics) *float64 { return m.BPS }, display: "BPS", unit: "원", decimals: 0},
	{key: "ROE", keywords: []string{"ROE", "자기자본이익률"}, value: func(m *market.Metrics) *float64 { return m.ROE }, display: "ROE", unit: "%", decimals: 2},
	{key: "DIV_YIELD", keywords: []string{"배당수익률", "배당 수익률", "배당률"}, value: func(m *market.Metrics) *float64 { return m.DivYield }, display: "배당수익률", unit: "%", decimals: 2},
	{key: "PEG", keywords: []string{"PEG", "피이지"}, value: func(m *market.Metrics) *float64 { return m.PEG }, display: "PEG", unit: "", decimals: 2},
}

var whitespaceRE = regexp.MustCompile(`\s+`)

func hasContextWord(text string) bool {
	for _, w := range contextWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func hasQuestionHint(text string) bool {
	for _, w := range questionHints {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// isPriceOnlyQuestion recognizes bare price lookups like "삼성전자 주가 얼마야?"
func isPriceOnlyQuestion(message string) bool {
	text := strings.TrimSpace(message)
	if text == "" {
		return false
	}
	priceHit := false
	for _, w := range priceKeywords {
		if strings.Contains(text, w) {
			priceHit = true
			break
		}
	}
	if !priceHit || hasContextWord(text) {
		return false
	}
	return hasQuestionHint(text)
}

// detectMetricRequest returns the spec for a single-indicator lookup,
// or nil when the message wants analysis rather than a number
func detectMetricRequest(message string) *metricSpec {
	text := strings.TrimSpace(message)
	if text == "" || hasContextWord(text) || !hasQuestionHint(text) {
		return nil
	}
	upper := strings.ToUpper(text)
	compact := whitespaceRE.ReplaceAllString(upper, "")
	for i := range metricSpecs {
		for _, kw := range metricSpecs[i].keywords {
			kwUpper := strings.ToUpper(kw)
			if strings.Contains(upper, kwUpper) || strings.Contains(compact, strings.ReplaceAll(kwUpper, " ", "")) {
				return &metricSpecs[i]
			}
		}
	}
	return nil
}

func displayName(m *market.Metrics, symbols []string) string {
	if m.Name != "" {
		return m.Name
	}
	if m.Symbol != "" {
		return m.Symbol
	}
	if len(symbols) > 0 {
		return symbols[0]
	}
	return ""
}

func formatPriceResponse(m *market.Metrics, symbols []string) string {
	name := displayName(m, symbols)
	if m.Price == nil {
		if name != "" {
			return fmt.Sprintf("%s 현재가 정보를 불러오지 못했습니다.", name)
		}
		return "현재가 정보를 불러오지 못했습니다."
	}
	prefix := ""
	if name != "" {
		prefix = name + " "
	}
	return fmt.Sprintf("%s현재가는 %s원입니다.", prefix, formatNumber(*m.Price, 0))
}

func formatMetricResponse(m *market.Metrics, spec *metricSpec, symbols []string) string {
	name := displayName(m, symbols)
	prefix := ""
	if name != "" {
		prefix = name + " "
	}

	if spec.key == "PEG" {
		return formatPEGResponse(m, name)
	}

	value := spec.value(m)
	if value == nil {
		return fmt.Sprintf("%s%s 정보를 불러오지 못했습니다.", prefix, spec.display)
	}
	text := formatNumber(*value, spec.decimals) + spec.unit
	return fmt.Sprintf("%s%s은 %s입니다.", prefix, spec.display, text)
}

func formatPEGResponse(m *market.Metrics, name string) string {
	subject := name
	if subject == "" {
		subject = "해당 종목"
	}
	if m.PEG == nil {
		if m.EPSGrowth == nil {
			return fmt.Sprintf("%s PEG를 계산하려면 최신 EPS 성장률이 필요한데 데이터에서 값을 찾지 못했습니다.", subject)
		}
		return fmt.Sprintf("%s PEG는 최근 EPS 성장률이 0 이하라 계산할 수 없습니다.", subject)
	}
	out := fmt.Sprintf("%s PEG는 %.2f입니다.", subject, *m.PEG)
	if m.EPSGrowth != nil {
		out += fmt.Sprintf(" (EPS 성장률 %.1f%% 기반)", *m.EPSGrowth)
	}
	return out
}

// formatNumber renders a value with thousands separators, matching the
// display convention of the Korean market data feed
func formatNumber(v float64, decimals int) string {
	s := fmt.Sprintf("%.*f", decimals, v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}
	var b strings.Builder
	n := len(intPart)
	for i, c := range intPart {
		if i > 0 && (n-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := b.String() + fracPart
	if neg {
		out = "-" + out
	}
	return out
}
