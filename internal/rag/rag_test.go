package rag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, s.err
}

func TestQdrantSearchFiltersByPersona(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/mentor_knowledge/points/query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		resp := map[string]interface{}{
			"result": map[string]interface{}{
				"points": []map[string]interface{}{
					{"id": 1, "score": 0.91, "payload": map[string]interface{}{
						"text":    "훌륭한 기업을 적정한 가격에 사라",
						"guru_id": "buffett",
						"source":  "letters-1989",
					}},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	retriever := NewQdrantRetriever(QdrantConfig{BaseURL: server.URL}, &stubEmbedder{vector: []float32{0.1, 0.2}}, zaptest.NewLogger(t))
	docs, err := retriever.Search(context.Background(), "buffett", "가치투자란", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "훌륭한 기업을 적정한 가격에 사라", docs[0].Content)
	assert.Equal(t, 0.91, docs[0].Score)
	assert.Equal(t, "letters-1989", docs[0].Metadata["source"])
	assert.NotContains(t, docs[0].Metadata, "text")

	filter, ok := gotBody["filter"].(map[string]interface{})
	require.True(t, ok)
	must := filter["must"].([]interface{})
	clause := must[0].(map[string]interface{})
	assert.Equal(t, "guru_id", clause["key"])
	assert.Equal(t, float64(5), gotBody["limit"])
	assert.Equal(t, true, gotBody["with_payload"])
}

func TestQdrantFallsBackToLegacySearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/mentor_knowledge/points/query":
			w.WriteHeader(http.StatusNotFound)
		case "/collections/mentor_knowledge/points/search":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Contains(t, body, "vector")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": []map[string]interface{}{
					{"id": 7, "score": 0.8, "payload": map[string]interface{}{"page_content": "legacy snippet"}},
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	retriever := NewQdrantRetriever(QdrantConfig{BaseURL: server.URL}, &stubEmbedder{vector: []float32{0.3}}, zaptest.NewLogger(t))
	docs, err := retriever.Search(context.Background(), "", "query", 3)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "legacy snippet", docs[0].Content)
}

func TestQdrantEmbedFailure(t *testing.T) {
	retriever := NewQdrantRetriever(QdrantConfig{BaseURL: "http://localhost:1"}, &stubEmbedder{err: errors.New("embed down")}, zaptest.NewLogger(t))
	_, err := retriever.Search(context.Background(), "buffett", "query", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
}

func TestHTTPEmbedderDecodesVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings/", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"배당주 투자"}, req.Texts)
		json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float64{{0.25, -0.5}},
			Dimensions: 2,
		})
	}))
	defer server.Close()

	emb := NewHTTPEmbedder(server.URL, "", 5*time.Second, zaptest.NewLogger(t))
	vec, err := emb.Embed(context.Background(), "배당주 투자")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5}, vec)
}

func TestKeywordRetrieverRanksByOverlap(t *testing.T) {
	k := NewKeywordRetriever(zaptest.NewLogger(t))
	k.AddDocuments("lynch", []Document{
		{Content: "생활 속에서 발견한 기업에 투자하라"},
		{Content: "성장주는 PEG 비율로 평가한다"},
		{Content: "시장 타이밍을 맞추려 하지 마라"},
	})

	docs, err := k.Search(context.Background(), "lynch", "PEG 비율 평가", 2)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "성장주는 PEG 비율로 평가한다", docs[0].Content)
	assert.LessOrEqual(t, len(docs), 2)
}

func TestKeywordRetrieverUnknownPersona(t *testing.T) {
	k := NewKeywordRetriever(zaptest.NewLogger(t))
	docs, err := k.Search(context.Background(), "wood", "혁신 기업", 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadSeedFilePopulatesCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	seed := []byte("buffett:\n  - \"경제적 해자가 깊은 기업을 적정가에 사라\"\n  - \"가격은 지불하는 것, 가치는 얻는 것\"\nlynch:\n  - \"아는 것에 투자하라\"\n")
	require.NoError(t, os.WriteFile(path, seed, 0o644))

	k := NewKeywordRetriever(zaptest.NewLogger(t))
	require.NoError(t, k.LoadSeedFile(path))
	assert.Equal(t, 2, k.Size("buffett"))
	assert.Equal(t, 1, k.Size("lynch"))

	// a seeded corpus keeps the degraded path answering with evidence
	svc := NewService(failingRetriever{}, k, zaptest.NewLogger(t))
	docs, err := svc.Search(context.Background(), "buffett", "해자 기업", 5)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "seed", docs[0].Metadata["source"])
}

func TestLoadSeedFileMissing(t *testing.T) {
	k := NewKeywordRetriever(zaptest.NewLogger(t))
	assert.Error(t, k.LoadSeedFile(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Zero(t, k.Size("buffett"))
}

type failingRetriever struct{}

func (failingRetriever) Search(ctx context.Context, persona, query string, topK int) ([]Document, error) {
	return nil, errors.New("backend down")
}

func TestServiceFallsBackWhenPrimaryFails(t *testing.T) {
	fallback := NewKeywordRetriever(zaptest.NewLogger(t))
	fallback.AddDocuments("buffett", []Document{{Content: "경제적 해자가 있는 기업"}})

	svc := NewService(failingRetriever{}, fallback, zaptest.NewLogger(t))
	docs, err := svc.Search(context.Background(), "buffett", "해자 기업", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "경제적 해자가 있는 기업", docs[0].Content)
}

func TestServiceWithoutPrimaryUsesFallback(t *testing.T) {
	fallback := NewKeywordRetriever(zaptest.NewLogger(t))
	fallback.AddDocuments("wood", []Document{{Content: "파괴적 혁신 기술에 주목한다"}})

	svc := NewService(nil, fallback, zaptest.NewLogger(t))
	docs, err := svc.Search(context.Background(), "wood", "혁신 기술", 3)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}
