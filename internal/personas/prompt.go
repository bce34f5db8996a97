package personas

import (
	"fmt"
	"strings"

	"github.com/heroes-chatbot/orchestrator/internal/market"
)

const (
	maxAnalysisSnippets   = 3
	maxComparisonSnippets = 2
	maxHistorySnippets    = 5
	maxMacroRecords       = 6
	maxPhilosophySnippets = 6

	analysisSnippetLimit   = 300
	philosophySnippetLimit = 1000
	historySnippetLimit    = 2000
)

// PromptData carries the evidence gathered for one query. All slices are
// already rendered to display text by the loader nodes.
type PromptData struct {
	PhilosophySnippets []string
	PortfolioHistory   []string
	MacroTexts         []string
	Metrics            []*market.Metrics
}

// SystemPrompt assembles the system prompt for one intent. Evidence blocks
// are clearly labeled so the model can cite sources; when a required block
// is missing the prompt instructs the model to say so instead of guessing.
func (p *Persona) SystemPrompt(intent string, data PromptData) string {
	parts := make([]string, 0, 16)
	parts = append(parts, p.styleRules...)
	parts = append(parts,
		"아래 [RAG:*] 섹션의 근거를 반드시 인용하고, 원본에 없는 내용은 추측하지 말라.",
		"근거를 사용할 때 문장 안에 'RAG-철학', 'RAG-매크로'처럼 출처를 명시하라.",
	)

	switch intent {
	case "company_metrics":
		if len(data.Metrics) > 0 {
			parts = append(parts, "단순 지표 질문이므로, 아래 [종목 지표] 섹션의 숫자만 간단히 알려주고 해석은 최소화하라.")
		} else {
			parts = append(parts, "중요: 실시간 주가 조회에 실패했습니다. 주가나 지표 질문에는 '실시간 주가 조회에 실패했습니다. 잠시 후 다시 시도해주세요'라고 명확히 답하라. RAG 문서에서 주가를 찾으려고 시도하지 말라.")
		}

	case "company_analysis":
		parts = append(parts, p.analysisCue)
		parts = appendBulletSnippets(parts, "RAG: 투자 원칙", data.PhilosophySnippets, analysisSnippetLimit, maxAnalysisSnippets)
		parts = appendBulletSnippets(parts, "RAG: 과거 포트폴리오 변화", data.PortfolioHistory, analysisSnippetLimit, 2)

	case "compare_companies":
		parts = append(parts, p.compareCue)
		parts = appendBulletSnippets(parts, "RAG: 비교 기준", data.PhilosophySnippets, analysisSnippetLimit, maxComparisonSnippets)

	case "macro_outlook":
		parts = append(parts, "매크로 환경이 멘토의 투자 관점에 어떤 의미인지 요약하라.")
		parts = append(parts, macroSection(data.MacroTexts)...)

	case "historical_data":
		parts = append(parts,
			"포트폴리오 히스토리에 관한 질문이므로 과거 데이터를 근거로 답하라.",
			"공개된 포트폴리오 데이터를 기반으로 했음을 명확히 알리고 최신 정보와 다를 수 있음을 강조하라.",
		)
		parts = append(parts, historySection(data.PortfolioHistory)...)

	case "philosophy":
		parts = append(parts, philosophySection(p.Name, data.PhilosophySnippets)...)
	}

	parts = append(parts, metricsSection(data.Metrics)...)
	return strings.Join(parts, "\n")
}

func truncate(text string, limit int) (string, bool) {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return trimmed, false
	}
	return strings.TrimRight(string(runes[:limit]), " "), true
}

func appendBulletSnippets(parts []string, title string, snippets []string, limit, maxItems int) []string {
	if len(snippets) > maxItems {
		snippets = snippets[:maxItems]
	}
	rows := make([]string, 0, len(snippets))
	for _, raw := range snippets {
		text, truncated := truncate(raw, limit)
		if text == "" {
			continue
		}
		rows = append(rows, "- "+text)
		if truncated {
			rows = append(rows, "   ... (하위 생략)")
		}
	}
	if len(rows) == 0 {
		return parts
	}
	parts = append(parts, fmt.Sprintf("\n[%s]", title))
	return append(parts, rows...)
}

func philosophySection(name string, snippets []string) []string {
	lines := []string{
		fmt.Sprintf("너는 %s의 발언과 저술을 기반으로 철학을 설명해야 한다.", name),
		"중요: 아래 RAG 발췌문을 근거로 사용하고, 근거가 없으면 추측하지 말라.",
	}
	if len(snippets) > maxPhilosophySnippets {
		snippets = snippets[:maxPhilosophySnippets]
	}
	if len(snippets) == 0 {
		lines = append(lines,
			"\n[알림] RAG 발췌문이 존재하지 않습니다.",
			"이 경우 '관련 RAG 자료가 없어 답변을 생성할 수 없습니다.'라고 명확히 안내하라.",
		)
		return lines
	}

	lines = append(lines, fmt.Sprintf("\n=== 발언/요약 (최대 %d개) ===", len(snippets)))
	for i, snippet := range snippets {
		text, truncated := truncate(snippet, philosophySnippetLimit)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("\n[발언 %d]", i+1), text)
		if truncated {
			lines = append(lines, "   ... (하위 생략)")
		}
	}

	lines = append(lines,
		"\n=== 답변 가이드 ===",
		"1. 각 발언에서 핵심이 되는 문장을 찾아라.",
		"2. 발언 연도나 맥락을 찾아 짧게 설명하라.",
		"3. 강조한 원칙과 사례를 함께 연결하라.",
		"4. 근거가 부족하면 '관련 RAG 자료에서 해당 내용을 찾을 수 없습니다.'라고 밝혀라.",
	)
	return lines
}

func historySection(history []string) []string {
	if len(history) > maxHistorySnippets {
		history = history[:maxHistorySnippets]
	}
	if len(history) == 0 {
		return []string{
			"\n[알림] 포트폴리오 히스토리 데이터가 존재하지 않습니다.",
			"이 경우 '관련 RAG 자료가 없어 답변을 생성할 수 없습니다.'라고 안내하라.",
		}
	}

	lines := []string{fmt.Sprintf("\n[RAG: 포트폴리오 히스토리 (최대 %d개)]", len(history))}
	for i, record := range history {
		text, truncated := truncate(record, historySnippetLimit)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("\n[포트폴리오 %d]", i+1), text)
		if truncated {
			lines = append(lines, "   ... (하위 생략)")
		}
	}
	lines = append(lines, "\n※ 공개된 13F 기반 데이터이므로 최신 포트폴리오와 시차가 있을 수 있습니다.")
	return lines
}

func macroSection(records []string) []string {
	if len(records) > maxMacroRecords {
		records = records[:maxMacroRecords]
	}
	if len(records) == 0 {
		return nil
	}
	lines := []string{"\n[RAG: 매크로 데이터]"}
	lines = append(lines, records...)
	lines = append(lines, "\n※ 해당 데이터는 RAG 캐시 기준이므로 최신 지표와 차이가 있을 수 있습니다.")
	return lines
}

func metricsSection(list []*market.Metrics) []string {
	if len(list) == 0 {
		return nil
	}
	lines := []string{"\n[종목 지표]"}
	for _, m := range list {
		parts := make([]string, 0, 5)
		if m.Symbol != "" {
			parts = append(parts, m.Symbol+":")
		}
		if m.Price != nil {
			parts = append(parts, fmt.Sprintf("현재가 %.0f", *m.Price))
		}
		if m.PER != nil {
			parts = append(parts, fmt.Sprintf("PER %.2f", *m.PER))
		}
		if m.PBR != nil {
			parts = append(parts, fmt.Sprintf("PBR %.2f", *m.PBR))
		}
		if m.ROE != nil {
			parts = append(parts, fmt.Sprintf("ROE %.2f%%", *m.ROE))
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " "))
		}
	}
	return lines
}
