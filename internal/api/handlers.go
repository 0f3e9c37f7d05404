package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/export"
	"github.com/pbaille/codecontext/internal/ingest"
	"github.com/pbaille/codecontext/internal/search"
	"github.com/pbaille/codecontext/internal/store"
)

const maxBodySize = 8 << 20

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SearchResponse is the body of GET /memories
type SearchResponse struct {
	Query   string          `json:"query"`
	Count   int             `json:"count"`
	Results []search.Result `json:"results"`
}

func (s *Server) searchMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := search.Query{
		Text:  q.Get("q"),
		Type:  domain.MemoryType(strings.ToLower(q.Get("type"))),
		Limit: s.opts.DefaultLimit,
	}

	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = n
	}

	since, err := search.ParseSince(q.Get("since"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query.Since = since

	results, err := search.Search(r.Context(), s.store, query)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Query:   query.Text,
		Count:   len(results),
		Results: results,
	})
}

// AddMemoryRequest is the request body for adding a memory
type AddMemoryRequest struct {
	ingest.MemoryInput
	// NoClassify skips type and tag suggestion when Type is empty
	NoClassify bool `json:"no_classify,omitempty"`
}

func (s *Server) addMemory(w http.ResponseWriter, r *http.Request) {
	var req AddMemoryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := req.MemoryInput
	in.Type = domain.MemoryType(strings.ToLower(string(in.Type)))
	if _, err := s.classifier.Annotate(r.Context(), s.store, &in, !req.NoClassify); err != nil {
		writeStoreError(w, err)
		return
	}

	m, err := ingest.Remember(r.Context(), s.store, in)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	rebuilt, err := s.store.EnsureIndex(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if rebuilt {
		s.logger.Info().Str("memory", m.ID).Msg("search index out of sync, rebuilt")
	}

	writeJSON(w, http.StatusCreated, m)
}

// ScanResponse is the body of POST /scan
type ScanResponse struct {
	Progress ingest.Progress `json:"progress"`
	Error    string          `json:"error,omitempty"`
}

func (s *Server) ingestScan(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	res, err := ingest.DecodeScanResult(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	progress, err := ingest.Scan(r.Context(), s.store, *res)
	if err != nil {
		var batchErr *ingest.BatchError
		if errors.As(err, &batchErr) {
			writeJSON(w, statusFor(err), ScanResponse{Progress: batchErr.Progress, Error: err.Error()})
			return
		}
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{Progress: progress})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Status(r.Context(), s.opts.RecentActivity)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := export.Collect(r.Context(), s.store, s.opts.RecentActivity)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	data, err := export.Render(snap, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := "application/json"
	if format == export.FormatMarkdown {
		contentType = "text/markdown; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.DefaultFileName(format, time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// statusFor maps the store error kinds to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidMemory), errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyInitialized):
		return http.StatusConflict
	case errors.Is(err, store.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
