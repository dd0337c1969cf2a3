package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxRequestBody = 1 << 20

const report_http_encode = "http.encode"

// NoCacheMessage answers a cached read for an account without an entry.
const NoCacheMessage = "No cache found"

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.tel.ReportWarning(report_http_encode, err)
	}
}

func (s Service) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}

func decodeRequest(r *http.Request) (Request, error) {
	var req Request
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		return Request{}, errors.Join(ErrInvalidRequest, err)
	}
	if err := req.validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (s Service) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.Refresh(r.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s Service) handleCache(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, ok := s.Cached(req.AccountID, req.filter())
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Success: false, Error: NoCacheMessage})
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allowCORS lets browser frontends on other origins call the API.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler serves the HTTP API:
//
//	POST /api/homework-query  full refresh
//	POST /api/homework-cache  cached read, 404 without an entry
//	GET  /health
func (s Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/homework-query", s.handleQuery)
	mux.HandleFunc("POST /api/homework-cache", s.handleCache)
	mux.HandleFunc("GET /health", s.handleHealth)
	return otelhttp.NewHandler(allowCORS(mux), "hwtrack")
}
