package symbols

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(zaptest.NewLogger(t))
}

func TestResolveDirectCodes(t *testing.T) {
	r := newResolver(t)

	codes := r.Resolve("005930 이랑 000660 비교해줘")
	assert.Equal(t, []string{"005930", "000660"}, codes)
}

func TestResolveDirectCodesDeduplicated(t *testing.T) {
	r := newResolver(t)

	codes := r.Resolve("005930 005930 005930 035720")
	assert.Equal(t, []string{"005930", "035720"}, codes)
}

func TestResolveByName(t *testing.T) {
	r := newResolver(t)

	tests := []struct {
		text string
		want string
	}{
		{"삼성전자 주가 알려줘", "005930"},
		{"삼전 어때?", "005930"},
		{"SK하이닉스 PER 얼마야", "000660"},
		{"SK 하이닉스 PER 얼마야", "000660"},
		{"현대차 전망", "005380"},
		{"기아차 현재가", "000270"},
		{"카카오 분석해줘", "035720"},
		{"키움증권은 어떤가", "039490"},
	}

	for _, tt := range tests {
		codes := r.Resolve(tt.text)
		require.NotEmpty(t, codes, "text=%q", tt.text)
		assert.Equal(t, tt.want, codes[0], "text=%q", tt.text)
	}
}

func TestResolveNoMatch(t *testing.T) {
	r := newResolver(t)

	assert.Empty(t, r.Resolve("오늘 날씨 어때?"))
	assert.Empty(t, r.Resolve(""))
	assert.Empty(t, r.Resolve("   "))
}

func TestResolveMultipleNames(t *testing.T) {
	r := newResolver(t)

	codes := r.Resolve("삼성전자와 카카오 중에 뭐가 나아?")
	assert.Len(t, codes, 2)
	assert.Contains(t, codes, "005930")
	assert.Contains(t, codes, "035720")
}

func TestLoadAliases(t *testing.T) {
	r := newResolver(t)

	path := filepath.Join(t.TempDir(), "symbols.yaml")
	content := "네이버: \"035420\"\n포스코홀딩스: \"005490\"\n잘못된코드: \"12ab\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	require.NoError(t, r.LoadAliases(path))

	codes := r.Resolve("네이버 주가")
	require.NotEmpty(t, codes)
	assert.Equal(t, "035420", codes[0])

	assert.Empty(t, r.Resolve("잘못된코드에 대해"))
}

func TestLoadAliasesMissingFile(t *testing.T) {
	r := newResolver(t)
	assert.Error(t, r.LoadAliases("/nonexistent/symbols.yaml"))
}
