// Package historical serves pre-loaded portfolio disclosures and macro
// regime snapshots. The store reads everything once at startup and then
// answers queries from memory, so concurrent runs need no locking.
package historical

import (
	"fmt"
	"strings"
)

var regionLabels = map[string]string{
	"KR": "한국",
	"US": "미국",
}

// RegionLabel returns the Korean display name for a region code
func RegionLabel(region string) string {
	if label, ok := regionLabels[region]; ok {
		return label
	}
	if region == "" {
		return "기타 지역"
	}
	return region
}

// PortfolioSnapshot is one disclosed portfolio state for a persona
type PortfolioSnapshot struct {
	GuruID  string `db:"guru_id" json:"guru_id"`
	AsOf    string `db:"as_of" json:"as_of"`
	Symbols string `db:"symbols" json:"symbols"`
	Summary string `db:"summary" json:"summary"`
	Source  string `db:"source" json:"source,omitempty"`
}

// SymbolList splits the comma-separated holdings column
func (s PortfolioSnapshot) SymbolList() []string {
	if s.Symbols == "" {
		return nil
	}
	parts := strings.Split(s.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HoldsSymbol reports whether the snapshot mentions the symbol
func (s PortfolioSnapshot) HoldsSymbol(symbol string) bool {
	if symbol == "" {
		return true
	}
	upper := strings.ToUpper(symbol)
	for _, held := range s.SymbolList() {
		h := strings.ToUpper(held)
		if h == upper || strings.HasSuffix(h, "."+upper) || strings.Contains(h, upper) {
			return true
		}
	}
	return false
}

// Text renders the snapshot for inclusion in a prompt
func (s PortfolioSnapshot) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s 기준 포트폴리오]", s.AsOf)
	if s.Symbols != "" {
		fmt.Fprintf(&b, " 보유 종목: %s", s.Symbols)
	}
	if s.Summary != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(s.Summary))
	}
	return b.String()
}

// MacroRecord is one quarterly macro regime snapshot, or a synthesized
// coverage summary when RecordType is "coverage_summary"
type MacroRecord struct {
	Region       string   `db:"region" json:"region"`
	Period       string   `db:"period" json:"period"`
	Summary      string   `db:"summary" json:"summary,omitempty"`
	BaseRate     *float64 `db:"base_rate" json:"base_rate,omitempty"`
	CPIYoY       *float64 `db:"cpi_yoy" json:"cpi_yoy,omitempty"`
	GDPGrowth    *float64 `db:"gdp_growth" json:"gdp_growth,omitempty"`
	FXKrwUsd     *float64 `db:"fx_krw_usd" json:"fx_krw_usd,omitempty"`
	Unemployment *float64 `db:"unemployment" json:"unemployment,omitempty"`
	RecordType   string   `db:"-" json:"record_type,omitempty"`
}

// Text renders the record as readable Korean lines for a prompt
func (r MacroRecord) Text() string {
	if r.RecordType == "coverage_summary" {
		return r.Summary
	}
	label := RegionLabel(r.Region)
	lines := []string{fmt.Sprintf("[Macro-%s] %s 경제지표", label, r.Period)}

	indicator := func(name string, v *float64) {
		if v != nil {
			lines = append(lines, fmt.Sprintf("- %s: %.2f", name, *v))
		}
	}
	indicator("기준금리(%)", r.BaseRate)
	indicator("물가상승률(%)", r.CPIYoY)
	indicator("GDP 성장률(%)", r.GDPGrowth)
	indicator("원/달러 환율", r.FXKrwUsd)
	indicator("실업률(%)", r.Unemployment)

	if r.Summary != "" {
		lines = append(lines, "요약: "+strings.TrimSpace(r.Summary))
	}
	return strings.Join(lines, "\n")
}
