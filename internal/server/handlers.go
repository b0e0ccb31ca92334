package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/continue-ai-company/aa-rag/internal/document"
	"github.com/continue-ai-company/aa-rag/internal/engine"
	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 20 // 64 MiB

// Retrieve type shorthands accepted in requests.
const (
	RetrieveTypeDense  = "dense"
	RetrieveTypeBM25   = "bm25"
	RetrieveTypeHybrid = "hybrid"
)

type indexRequest struct {
	Knowledge    string               `json:"knowledge"`
	Identifier   string               `json:"identifier,omitempty"`
	Mode         string               `json:"mode,omitempty"`
	Documents    []*document.Document `json:"documents"`
	ChunkSize    int                  `json:"chunk_size,omitempty"`
	ChunkOverlap int                  `json:"chunk_overlap,omitempty"`
}

type indexResponse struct {
	WrittenIDs []string `json:"written_ids"`
	Count      int      `json:"count"`
}

type retrieveRequest struct {
	Knowledge    string   `json:"knowledge"`
	Identifier   string   `json:"identifier,omitempty"`
	Query        string   `json:"query"`
	TopK         int      `json:"top_k,omitempty"`
	RetrieveType string   `json:"retrieve_type,omitempty"`
	DenseWeight  *float64 `json:"dense_weight,omitempty"`
	SparseWeight *float64 `json:"sparse_weight,omitempty"`
}

type retrieveResponse struct {
	Results []engine.Result `json:"results"`
	Count   int             `json:"count"`
}

type healthzResponse struct {
	Status string `json:"status"`
	Tables int    `json:"tables"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Details  map[string]string `json:"details,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	mode := engine.ModeInsert
	if req.Mode != "" {
		var err error
		mode, err = engine.ParseMode(req.Mode)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.cfg.Engine.ChunkSize
	}
	chunkOverlap := req.ChunkOverlap
	if chunkOverlap == 0 {
		chunkOverlap = s.cfg.Engine.ChunkOverlap
	}

	written, err := s.engine.Index(r.Context(), engine.IndexRequest{
		Knowledge:    req.Knowledge,
		Identifier:   req.Identifier,
		Documents:    req.Documents,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Mode:         mode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, indexResponse{WrittenIDs: written, Count: len(written)})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	dense, sparse, err := s.resolveWeights(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.cfg.Engine.TopK
	}

	results, err := s.engine.Retrieve(r.Context(), engine.RetrieveRequest{
		Knowledge:    req.Knowledge,
		Identifier:   req.Identifier,
		Query:        req.Query,
		TopK:         topK,
		DenseWeight:  dense,
		SparseWeight: sparse,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, retrieveResponse{Results: results, Count: len(results)})
}

// resolveWeights turns the retrieve_type shorthand and/or explicit weights
// into the engine's weight pair. dense and bm25 are pure weight-zeroing;
// hybrid (or no shorthand) uses explicit weights, falling back to config
// defaults when omitted.
func (s *Server) resolveWeights(req retrieveRequest) (dense, sparse float64, err error) {
	switch req.RetrieveType {
	case RetrieveTypeDense:
		return 1, 0, nil
	case RetrieveTypeBM25:
		return 0, 1, nil
	case RetrieveTypeHybrid, "":
		dense = s.cfg.Engine.DenseWeight
		sparse = s.cfg.Engine.SparseWeight
		if req.DenseWeight != nil {
			dense = *req.DenseWeight
		}
		if req.SparseWeight != nil {
			sparse = *req.SparseWeight
		}
		return dense, sparse, nil
	default:
		return 0, 0, errors.ValidationError(
			fmt.Sprintf("unknown retrieve_type %q (want dense, bm25, or hybrid)", req.RetrieveType), nil)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	tables, err := s.store.ListTables(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, healthzResponse{Status: "ok", Tables: len(tables)})
}

// decodeJSON parses a JSON request body, rejecting unknown garbage early.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errors.ValidationError("invalid JSON request body", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)

	body := errorBody{
		Code:     errors.GetCode(err),
		Message:  err.Error(),
		Category: string(errors.GetCategory(err)),
	}
	if body.Code == "" {
		body.Code = errors.ErrCodeInternal
		body.Category = string(errors.CategoryInternal)
	}
	var re *errors.RagError
	if stderrors.As(err, &re) {
		body.Details = re.Details
		body.Message = re.Message
	}

	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	s.logger.Warn("request failed",
		slog.String("request_id", requestID),
		slog.String("path", r.URL.Path),
		slog.String("code", body.Code),
		slog.String("error", err.Error()))

	s.writeJSON(w, status, errorResponse{Error: body})
}
