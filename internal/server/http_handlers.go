package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sanonone/kektorplan/pkg/graph"
	"github.com/sanonone/kektorplan/pkg/metrics"
	"github.com/sanonone/kektorplan/pkg/optimizer"
	"github.com/sanonone/kektorplan/pkg/query"
)

// errEmbedding marks failures of the remote embedding model.
var errEmbedding = errors.New("query embedding failed")

// registerHTTPHandlers sets up the API routes.
func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	// --- Queries ---
	mux.HandleFunc("POST /query/optimize", s.handleOptimize)
	mux.HandleFunc("POST /query/execute", s.handleExecute)

	// --- Statistics ---
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /entities/top", s.handleTopEntities)

	// --- Graph ---
	mux.HandleFunc("POST /graph/nodes", s.handleAddNode)
	mux.HandleFunc("POST /graph/links", s.handleLink)
	mux.HandleFunc("DELETE /graph/links", s.handleUnlink)
	mux.HandleFunc("GET /graph/entities/{id}", s.handleGetEntity)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, HealthResponse{Status: "ok", Nodes: s.Store.Len()})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	q, ok := s.readQuery(w, r)
	if !ok {
		return
	}
	plan, err := s.Optimizer.OptimizeQuery(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, plan)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	q, ok := s.readQuery(w, r)
	if !ok {
		return
	}
	results, info, err := s.Optimizer.ExecuteQuery(r.Context(), s.Store, q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []graph.Result{}
	}
	s.writeHTTPResponse(w, http.StatusOK, ExecuteResponse{Results: results, Execution: info})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, StatsResponse{
		Queries:          s.Optimizer.QueryStats().Snapshot(),
		EdgeObservations: s.Optimizer.TraversalStats().EdgeObservations(),
		GraphNodes:       s.Store.Len(),
	})
}

func (s *Server) handleTopEntities(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.writeHTTPError(w, http.StatusBadRequest, "parameter 'n' must be a positive integer")
			return
		}
		n = v
	}
	top, err := s.Optimizer.TopEntities(r.Context(), n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, TopEntitiesResponse{Entities: top})
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req NodeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		s.writeHTTPError(w, http.StatusBadRequest, "'id' is required")
		return
	}

	resp := NodeResponse{ID: req.ID}
	var err error
	if req.ContentAddressed {
		resp.CID, err = s.Store.AddBlock(req.ID, req.Vector, req.Type, req.Properties)
	} else {
		err = s.Store.AddNode(req.ID, req.Vector, req.Type, req.Properties)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.GraphNodes.Set(float64(s.Store.Len()))
	s.writeHTTPResponse(w, http.StatusCreated, resp)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Source == "" || req.Target == "" || req.Relation == "" {
		s.writeHTTPError(w, http.StatusBadRequest, "'source', 'target' and 'relation' are required")
		return
	}
	if err := s.Store.Link(req.Source, req.Target, req.Relation, req.Weight); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	removed, err := s.Store.Unlink(req.Source, req.Target, req.Relation)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, UnlinkResponse{Removed: removed})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	info, err := s.Store.EntityInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, info)
}

// readQuery decodes a Query body and embeds its text when it carries no
// vector and an embedder is configured.
func (s *Server) readQuery(w http.ResponseWriter, r *http.Request) (query.Query, bool) {
	var q query.Query
	if !s.decodeBody(w, r, &q) {
		return q, false
	}
	if err := s.embedQuery(r.Context(), &q); err != nil {
		s.writeError(w, err)
		return q, false
	}
	return q, true
}

func (s *Server) embedQuery(ctx context.Context, q *query.Query) error {
	if s.embedder == nil || q.HasVector() || q.QueryText == "" {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, q.QueryText)
	if err != nil {
		return fmt.Errorf("%w: %w", errEmbedding, err)
	}
	q.QueryVector = vec
	return nil
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			s.writeHTTPError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, query.ErrInvalidParameter):
			s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		}
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, optimizer.ErrInvalidParameter), errors.Is(err, graph.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, optimizer.ErrUnsupportedStrategy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "status", status, "error", err)
	}
	s.writeHTTPError(w, status, err.Error())
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}
