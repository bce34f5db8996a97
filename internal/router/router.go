// Package router classifies user messages into intents and extracts the
// symbols, regions and persona needed by downstream loaders. Classification
// is a deterministic keyword ladder; later rungs override earlier ones, so
// order is load-bearing.
package router

import (
	"strings"

	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/personas"
	"github.com/heroes-chatbot/orchestrator/internal/symbols"
)

// RoutedQuery is the normalized routing decision for one user message
type RoutedQuery struct {
	Intent       Intent
	Persona      personas.ID
	Symbols      []string
	Region       string
	MacroRegions []string
	QueryText    string
}

// Router turns messages into RoutedQuery values
type Router struct {
	resolver *symbols.Resolver
	logger   *zap.Logger
}

// New creates a Router
func New(resolver *symbols.Resolver, logger *zap.Logger) *Router {
	return &Router{resolver: resolver, logger: logger}
}

// Keyword tables for the base classification pass
var (
	smalltalkKeywords  = []string{"안녕", "누구", "소개", "이름", "hello", "hi", "who are you", "who are"}
	newsKeywords       = []string{"뉴스", "정책", "headline", "news", "다음 뉴스", "뉴스 내용", "뉴스 분석"}
	stockKeywords      = []string{"회사", "종목", "티커", "코드", "현재가", "주가", "시세", "가격"}
	macroBaseKeywords  = []string{"시황", "경기", "매크로", "금리", "inflation", "recession", "경제", "경제지표", "기준금리", "물가", "환율"}
	researchKeywords   = []string{"리포트", "리서치", "보고서", "애널리스트"}
	baseMetricKeywords = []string{
		"per", "pbr", "eps", "bps", "roe", "배당", "배당수익률", "시가총액",
		"시총", "52주", "거래량", "거래대금", "실적",
	}
)

// Keyword tables for the override ladder
var (
	historicalKeywords = []string{
		"포트폴리오", "portfolio", "13f", "13-f", "보유", "보유량", "비중",
		"언제 샀", "언제 팔", "매입", "매수", "구매", "들고 있",
	}
	pastKeywords       = []string{"과거", "past", "예전", "history", "이전", "옛날"}
	speechKeywords     = []string{"발언", "말했", "말하다", "생각", "관점"}
	macroHintKeywords  = []string{"경제지표", "기준금리", "물가", "인플레이션", "inflation", "경기", "경기지표", "환율", "gdp", "cpi", "경제 상황"}
	metricKeywords     = []string{"현재가", "주가", "시총", "per", "pbr", "roe", "eps", "배당", "52주", "가격", "시세"}
	analysisKeywords   = []string{"전망", "어때", "어떤가", "분석", "관점"}
	philosophyKeywords = []string{
		"철학", "원칙", "사상", "주주서한", "책", "인터뷰", "발언", "말했",
		"생각", "관점", "의견", "주장", "강연", "요약", "토론", "안전마진",
		"인플레이션", "inflation", "물가",
	}
	ragPhilosophyKeywords  = []string{"rag에서", "rag로", "rag기반", "근거로", "찾아줘", "찾아", "알려줘", "알려"}
	mentorNames            = []string{"버핏", "buffett", "워렌", "린치", "lynch", "피터", "우드", "wood", "캐시", "cathie"}
	mentorEconomicKeywords = []string{
		"경제 관점", "경제 생각", "경제 의견", "경제 주장",
		"시장 관점", "시장 생각", "시장 의견", "시장 주장",
		"경제 전망", "경제 예측", "경제 분석", "경기 전망",
		"인플레이션", "inflation", "물가", "금리",
	}
	comparisonKeywords = []string{"비교", "vs", "대비", "차이", "vs.", "혹은", "중에"}
)

var macroRegionKeywords = []struct {
	region   string
	keywords []string
}{
	{"KR", []string{"한국", "대한민국", "국내", "kr", "korea"}},
	{"US", []string{"미국", "us", "usa", "연준", "fed", "월가", "s&p", "nasdaq"}},
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// detectBase runs the first-pass classification. Later, the override
// ladder in Route may replace the result.
func detectBase(lowered string, syms []string) Intent {
	switch {
	case lowered == "":
		return IntentSmalltalk
	case containsAny(lowered, smalltalkKeywords):
		return IntentSmalltalk
	case containsAny(lowered, macroBaseKeywords):
		return IntentMacroOutlook
	case containsAny(lowered, researchKeywords):
		return IntentResearchAnalysis
	case containsAny(lowered, newsKeywords):
		return IntentNewsAnalysis
	case containsAny(lowered, comparisonKeywords) && len(syms) >= 2:
		return IntentCompareCompanies
	case containsAny(lowered, baseMetricKeywords) && len(syms) > 0:
		return IntentCompanyMetrics
	case containsAny(lowered, stockKeywords):
		return IntentCompanyAnalysis
	default:
		return IntentSmalltalk
	}
}

// Route classifies a message for a persona
func (r *Router) Route(message, personaID string) RoutedQuery {
	persona := personas.Normalize(personaID)
	syms := r.resolver.Resolve(message)
	lowered := strings.ToLower(message)

	intent := detectBase(lowered, syms)

	// Historical data overrides: explicit portfolio/13F talk, or "past"
	// phrasing that is not about past statements.
	if containsAny(lowered, historicalKeywords) {
		intent = IntentHistoricalData
	} else if containsAny(lowered, pastKeywords) && !containsAny(lowered, speechKeywords) {
		intent = IntentHistoricalData
	}

	macroRequested := false
	if intent != IntentHistoricalData && containsAny(lowered, macroHintKeywords) {
		intent = IntentMacroOutlook
		macroRequested = true
	}

	var macroRegions []string
	for _, entry := range macroRegionKeywords {
		if containsAny(lowered, entry.keywords) {
			macroRegions = append(macroRegions, entry.region)
		}
	}

	hasMetricKeywords := containsAny(lowered, metricKeywords)
	hasMentorName := containsAny(lowered, mentorNames)
	hasPhilosophyKw := containsAny(lowered, philosophyKeywords)
	hasRagKw := containsAny(lowered, ragPhilosophyKeywords)

	// Metric questions win over philosophy phrasing like "알려줘"
	if len(syms) > 0 && hasMetricKeywords && !containsAny(lowered, analysisKeywords) {
		intent = IntentCompanyMetrics
	}

	if intent == IntentCompanyMetrics {
		return r.finish(RoutedQuery{
			Intent:    intent,
			Persona:   persona,
			Symbols:   syms,
			QueryText: message,
		})
	}

	if intent != IntentHistoricalData && !macroRequested && !hasMetricKeywords {
		if hasRagKw {
			intent = IntentPhilosophy
		} else if hasMentorName && hasPhilosophyKw {
			intent = IntentPhilosophy
		}
	}

	if intent != IntentPhilosophy && intent != IntentHistoricalData && intent != IntentMacroOutlook &&
		hasMentorName && containsAny(lowered, mentorEconomicKeywords) {
		intent = IntentPhilosophy
	}

	if containsAny(lowered, comparisonKeywords) && len(syms) >= 2 {
		intent = IntentCompareCompanies
	}

	if intent == IntentCompanyAnalysis && len(syms) > 0 &&
		hasMetricKeywords && !containsAny(lowered, analysisKeywords) {
		intent = IntentCompanyMetrics
	}

	var region string
	if intent == IntentMacroOutlook {
		if len(macroRegions) == 0 {
			macroRegions = []string{"KR"}
		}
		region = macroRegions[0]
	} else {
		macroRegions = nil
	}

	return r.finish(RoutedQuery{
		Intent:       intent,
		Persona:      persona,
		Symbols:      syms,
		Region:       region,
		MacroRegions: macroRegions,
		QueryText:    message,
	})
}

func (r *Router) finish(q RoutedQuery) RoutedQuery {
	r.logger.Info("Query routed",
		zap.String("intent", q.Intent.String()),
		zap.String("persona", string(q.Persona)),
		zap.Strings("symbols", q.Symbols),
		zap.String("region", q.Region),
	)
	return q
}
