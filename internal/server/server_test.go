package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/continue-ai-company/aa-rag/internal/config"
	"github.com/continue-ai-company/aa-rag/internal/embed"
	"github.com/continue-ai-company/aa-rag/internal/engine"
	"github.com/continue-ai-company/aa-rag/internal/errors"
	"github.com/continue-ai-company/aa-rag/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.NewConfig()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	eng := engine.New(st, embed.NewStaticEmbedder(), engine.Options{})
	return New(cfg, eng, st, nil)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func indexRecipes(t *testing.T, s *Server) {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/index", map[string]any{
		"knowledge": "recipes",
		"mode":      "insert",
		"documents": []map[string]any{
			{"text": "apple pie recipe", "metadata": map[string]any{"id": "1"}},
			{"text": "banana bread recipe", "metadata": map[string]any{"id": "2"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestIndexEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/index", map[string]any{
		"knowledge": "recipes",
		"documents": []map[string]any{{"text": "apple pie recipe"}},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var resp struct {
		WrittenIDs []string `json:"written_ids"`
		Count      int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.WrittenIDs, 1)
	assert.Len(t, resp.WrittenIDs[0], 32) // md5 hex content id
}

func TestIndexEndpoint_InvalidMode(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/index", map[string]any{
		"knowledge": "recipes",
		"mode":      "merge",
		"documents": []map[string]any{{"text": "x"}},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrCodeInvalidMode, resp.Error.Code)
}

func TestIndexEndpoint_MalformedJSON(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/index", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetrieveEndpoint_BM25Type(t *testing.T) {
	s := newTestServer(t)
	indexRecipes(t, s)

	rec := do(t, s, http.MethodPost, "/retrieve", map[string]any{
		"knowledge":     "recipes",
		"query":         "apple",
		"top_k":         1,
		"retrieve_type": "bm25",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Results []struct {
			Text     string         `json:"text"`
			Metadata map[string]any `json:"metadata"`
		} `json:"results"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "apple pie recipe", resp.Results[0].Text)
	assert.Equal(t, "1", resp.Results[0].Metadata["id"])
}

func TestRetrieveEndpoint_DefaultsToHybrid(t *testing.T) {
	s := newTestServer(t)
	indexRecipes(t, s)

	rec := do(t, s, http.MethodPost, "/retrieve", map[string]any{
		"knowledge": "recipes",
		"query":     "apple pie",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp retrieveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Results)
}

func TestRetrieveEndpoint_UnknownTypeRejected(t *testing.T) {
	s := newTestServer(t)
	indexRecipes(t, s)

	rec := do(t, s, http.MethodPost, "/retrieve", map[string]any{
		"knowledge":     "recipes",
		"query":         "apple",
		"retrieve_type": "quantum",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetrieveEndpoint_MissingTableIs404(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/retrieve", map[string]any{
		"knowledge": "ghost",
		"query":     "anything",
	})

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrCodeTableNotFound, resp.Error.Code)
}

func TestHealthzEndpoint(t *testing.T) {
	s := newTestServer(t)
	indexRecipes(t, s)

	rec := do(t, s, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Tables)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errors.ValidationError("bad", nil), http.StatusBadRequest},
		{"config", errors.ConfigError("bad", nil), http.StatusBadRequest},
		{"table not found", errors.TableNotFound("t"), http.StatusNotFound},
		{"store write", errors.StoreError("w", nil), http.StatusInternalServerError},
		{"embedder", errors.EmbedderError("e", nil), http.StatusBadGateway},
		{"timeout", errors.Timeout("t", nil), http.StatusGatewayTimeout},
		{"internal", errors.InternalError("i", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}
