// Package symbols maps free-text mentions of Korean equities onto 6-digit
// KRX ticker codes.
package symbols

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var codeRE = regexp.MustCompile(`\b\d{6}\b`)

// Resolver resolves company names and aliases to ticker codes. The
// built-in table covers the most commonly asked KOSPI names; extra
// entries load from a YAML file so the table can grow without a rebuild.
type Resolver struct {
	mu     sync.RWMutex
	index  map[string]string // normalized name -> code
	logger *zap.Logger
}

// builtin name -> code table. Aliases point at the same code.
var builtin = map[string]string{
	"삼성전자":     "005930",
	"삼전":       "005930",
	"sk하이닉스":   "000660",
	"에스케이하이닉스": "000660",
	"하이닉스":     "000660",
	"하닉":       "000660",
	"현대자동차":    "005380",
	"현대차":      "005380",
	"기아":       "000270",
	"기아차":      "000270",
	"lg전자":     "066570",
	"엘지전자":     "066570",
	"lg화학":     "051910",
	"엘지화학":     "051910",
	"카카오":      "035720",
	"키움증권":     "039490",
}

// NewResolver creates a resolver seeded with the built-in table
func NewResolver(logger *zap.Logger) *Resolver {
	index := make(map[string]string, len(builtin))
	for name, code := range builtin {
		index[normalize(name)] = code
	}
	return &Resolver{index: index, logger: logger}
}

// LoadAliases merges extra name -> code entries from a YAML file
func (r *Resolver) LoadAliases(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read aliases file: %w", err)
	}

	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse aliases file: %w", err)
	}

	r.MergeAliases(entries)
	r.logger.Info("Symbol aliases loaded",
		zap.String("path", path),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// MergeAliases merges name -> code entries into the index. Entries with a
// malformed code are skipped.
func (r *Resolver) MergeAliases(entries map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, code := range entries {
		code = strings.TrimSpace(code)
		if !codeRE.MatchString(code) || len(code) != 6 {
			r.logger.Warn("Skipping symbol alias with malformed code",
				zap.String("name", name),
				zap.String("code", code),
			)
			continue
		}
		r.index[normalize(name)] = code
	}
}

// Resolve extracts ticker codes from free text.
//
// Codes written directly in the text win. Otherwise the name index is
// scanned: an exact match on the whole text short-circuits, then any
// indexed name contained in the text counts as a hit. At most three
// codes are returned, longest matched name first.
func (r *Resolver) Resolve(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if codes := codeRE.FindAllString(text, -1); len(codes) > 0 {
		return dedupe(codes, 3)
	}

	key := normalize(text)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if code, ok := r.index[key]; ok {
		return []string{code}
	}

	type hit struct {
		name string
		code string
	}
	var hits []hit
	for name, code := range r.index {
		if name != "" && strings.Contains(key, name) {
			hits = append(hits, hit{name: name, code: code})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if len(hits[i].name) != len(hits[j].name) {
			return len(hits[i].name) > len(hits[j].name)
		}
		return hits[i].name < hits[j].name
	})

	codes := make([]string, 0, len(hits))
	for _, h := range hits {
		codes = append(codes, h.code)
	}
	return dedupe(codes, 3)
}

// normalize strips whitespace and punctuation and lowercases, so
// "SK 하이닉스"와 "sk하이닉스" index identically.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == '&' {
			b.WriteRune(r)
			continue
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 0xAC00 && r <= 0xD7A3: // Hangul syllables
			b.WriteRune(r)
		}
	}
	return b.String()
}

func dedupe(codes []string, limit int) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out
}
