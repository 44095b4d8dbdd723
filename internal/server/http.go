package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/alfredjeanlab/docq/internal/auth"
	"github.com/alfredjeanlab/docq/internal/model"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// NewHTTPHandler returns an http.Handler with all routes registered and the
// middleware chain applied. Every route except GET /v1/health and
// GET /metrics requires a principal.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /v1/collections/{collection}", s.handleListDocuments)
	mux.HandleFunc("POST /v1/collections/{collection}", s.handleCreateDocument)
	mux.HandleFunc("GET /v1/collections/{collection}/{id}", s.handleGetDocument)
	mux.HandleFunc("PUT /v1/collections/{collection}/{id}", s.handleUpdateDocument)
	mux.HandleFunc("DELETE /v1/collections/{collection}/{id}", s.handleDeleteDocument)

	mux.HandleFunc("GET /v1/queries", s.handleListQueries)
	mux.HandleFunc("PUT /v1/queries/{name}", s.handleRegisterQuery)
	mux.HandleFunc("GET /v1/queries/{name}", s.handleGetQuery)
	mux.HandleFunc("DELETE /v1/queries/{name}", s.handleDeleteQuery)
	mux.HandleFunc("POST /v1/queries/{name}/execute", s.handleExecuteQuery)

	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)

	// The metrics middleware sits directly on the mux so it sees the
	// matched route pattern.
	var h http.Handler = s.MetricsMiddleware(mux)
	h = s.AuthMiddleware(h)
	h = RequestLogMiddleware(s.logger, h)
	h = RecoveryMiddleware(s.logger, h)
	return h
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListDocuments handles GET /v1/collections/{collection}?query=...
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	res, err := s.listDocuments(r.Context(), principal(r), r.PathValue("collection"), r.URL.Query().Get("query"))
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCreateDocument handles POST /v1/collections/{collection}.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if !decodeBody(w, r, &body) {
		return
	}
	doc, err := s.createDocument(r.Context(), principal(r), r.PathValue("collection"), body)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// handleGetDocument handles GET /v1/collections/{collection}/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.getDocument(r.Context(), principal(r), r.PathValue("collection"), r.PathValue("id"))
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleUpdateDocument handles PUT /v1/collections/{collection}/{id}.
func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if !decodeBody(w, r, &body) {
		return
	}
	doc, err := s.updateDocument(r.Context(), principal(r), r.PathValue("collection"), r.PathValue("id"), body)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument handles DELETE /v1/collections/{collection}/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.deleteDocument(r.Context(), principal(r), r.PathValue("collection"), r.PathValue("id")); err != nil {
		s.writeOpError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListQueries handles GET /v1/queries.
func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	qs, err := s.listQueries(r.Context())
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": qs})
}

// handleRegisterQuery handles PUT /v1/queries/{name}. The path name wins
// over any name in the body.
func (s *Server) handleRegisterQuery(w http.ResponseWriter, r *http.Request) {
	var q model.NamedQuery
	if !decodeBody(w, r, &q) {
		return
	}
	q.Name = r.PathValue("name")
	stored, err := s.registerQuery(r.Context(), &q)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// handleGetQuery handles GET /v1/queries/{name}.
func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	q, err := s.getQuery(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleDeleteQuery handles DELETE /v1/queries/{name}.
func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	if err := s.deleteQuery(r.Context(), r.PathValue("name")); err != nil {
		s.writeOpError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExecuteQuery handles POST /v1/queries/{name}/execute. An empty body
// executes with no parameters.
func (s *Server) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req model.ExecutionRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	res, err := s.executeQuery(r.Context(), principal(r), r.PathValue("name"), req)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// principal returns the principal attached by AuthMiddleware.
func principal(r *http.Request) model.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeOpError maps err to a status and writes it. Server errors are logged
// with their cause; clients only see a generic message.
func (s *Server) writeOpError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
			"error", err,
		)
	}
	writeError(w, code, errorMessage(err))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
