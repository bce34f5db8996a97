package router

// Intent classifies what a user message asks for
type Intent string

const (
	IntentSmalltalk        Intent = "smalltalk"
	IntentCompanyMetrics   Intent = "company_metrics"
	IntentCompanyAnalysis  Intent = "company_analysis"
	IntentCompareCompanies Intent = "compare_companies"
	IntentMacroOutlook     Intent = "macro_outlook"
	IntentPhilosophy       Intent = "philosophy"
	IntentNewsAnalysis     Intent = "news_analysis"
	IntentResearchAnalysis Intent = "research_analysis"
	IntentHistoricalData   Intent = "historical_data"
)

func (i Intent) String() string { return string(i) }

// NeedsRetrieval reports whether the intent routes through the RAG
// pipeline before composition.
func (i Intent) NeedsRetrieval() bool {
	switch i {
	case IntentPhilosophy, IntentCompanyAnalysis, IntentCompareCompanies,
		IntentNewsAnalysis, IntentResearchAnalysis:
		return true
	}
	return false
}

// NeedsHistorical reports whether the intent loads filings or macro
// snapshots from the historical store.
func (i Intent) NeedsHistorical() bool {
	switch i {
	case IntentHistoricalData, IntentMacroOutlook:
		return true
	}
	return false
}

// NeedsLiveQuotes reports whether the intent fetches live market data
func (i Intent) NeedsLiveQuotes() bool {
	switch i {
	case IntentCompanyMetrics, IntentCompanyAnalysis, IntentCompareCompanies:
		return true
	}
	return false
}
