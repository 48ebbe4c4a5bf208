package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/colindex/internal/models"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 20

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "name")
	var req models.CreateCollectionRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	cfg, err := req.Config(name)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Debug("create collection request", zap.String("collection", name), zap.Bool("recreate", req.Recreate))
	info, err := s.manager.Ensure(r.Context(), cfg, req.Recreate)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.refreshCollectionGauge(r)
	s.respondResult(w, http.StatusOK, info, start)
}

func (s *Server) handleDescribeCollection(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	info, err := s.manager.Describe(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondResult(w, http.StatusOK, info, start)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "name")
	s.logger.Debug("delete collection request", zap.String("collection", name))
	if err := s.manager.Destroy(r.Context(), name); err != nil {
		s.respondError(w, err)
		return
	}
	s.refreshCollectionGauge(r)
	s.respondResult(w, http.StatusOK, true, start)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	infos, err := s.manager.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if infos == nil {
		infos = []*models.CollectionInfo{}
	}
	s.respondResult(w, http.StatusOK, infos, start)
}

func (s *Server) handleUpsertPoints(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "name")
	records, err := decodePoints(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Debug("upsert points request", zap.String("collection", name), zap.Int("points", len(records)))
	if err := s.points.Upsert(r.Context(), name, records); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondResult(w, http.StatusOK, models.CountResult{Count: len(records)}, start)
}

func (s *Server) handleDeletePoints(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "name")
	var req models.DeletePointsRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	hasIDs := len(req.IDs) > 0
	hasFilter := !req.Filter.IsEmpty()
	if hasIDs == hasFilter {
		s.respondError(w, fmt.Errorf("%w: exactly one of ids and filter is required", models.ErrConfiguration))
		return
	}
	var (
		n   int
		err error
	)
	if hasIDs {
		n, err = s.points.Delete(r.Context(), name, req.StringIDs())
	} else {
		n, err = s.points.DeleteWhere(r.Context(), name, req.Filter)
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Debug("deleted points", zap.String("collection", name), zap.Int("count", n))
	s.respondResult(w, http.StatusOK, models.CountResult{Count: n}, start)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var body models.SearchBody
	if err := decodeBody(r, &body); err != nil {
		s.respondError(w, err)
		return
	}
	query := body.Query(chi.URLParam(r, "name"), s.engine.DefaultTopK())
	s.logger.Debug("search request",
		zap.String("collection", query.Collection),
		zap.String("text", query.Text),
		zap.Int("top_k", query.TopK))
	response, err := s.engine.Search(r.Context(), query)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondResult(w, http.StatusOK, response, start)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	infos, err := s.manager.List(r.Context())
	if err != nil {
		s.logger.Error("status: list collections failed", zap.Error(err))
		s.respondError(w, err)
		return
	}
	status := &models.ServiceStatus{
		Version:      s.version,
		Collections:  infos,
		DatabasePath: s.databasePath,
	}
	if status.Collections == nil {
		status.Collections = []*models.CollectionInfo{}
	}
	for _, info := range infos {
		status.Points += info.PointsCount
	}
	if s.disk != nil {
		if n, err := s.disk.DiskUsageBytes(); err == nil {
			status.DiskUsageBytes = n
		} else {
			s.logger.Warn("status: disk usage unavailable", zap.Error(err))
		}
	}
	if s.watch != nil {
		status.WatchDirectories = s.watch.Directories()
	}
	s.respondResult(w, http.StatusOK, status, start)
}

func (s *Server) refreshCollectionGauge(r *http.Request) {
	if s.metrics == nil {
		return
	}
	if infos, err := s.manager.List(r.Context()); err == nil {
		s.metrics.SetCollections(len(infos))
	}
}

// decodePoints accepts a bare array of records or {"points": [...]}.
func decodePoints(r *http.Request) ([]*models.VectorRecord, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read request body: %v", models.ErrConfiguration, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var records []*models.VectorRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, bodyError(err)
		}
		return records, nil
	}
	var req models.UpsertPointsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, bodyError(err)
	}
	return req.Points, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return bodyError(err)
	}
	return nil
}

// bodyError keeps a classified decode error and marks everything else as a configuration error.
func bodyError(err error) error {
	if models.Kind(err) != models.KindInternal {
		return err
	}
	return fmt.Errorf("%w: invalid request body: %v", models.ErrConfiguration, err)
}

// statusFor maps an error class to its HTTP status.
func statusFor(err error) int {
	switch models.Kind(err) {
	case models.KindConfiguration, models.KindShape, models.KindEmptyQuery:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondResult(w http.ResponseWriter, status int, result any, start time.Time) {
	s.respondJSON(w, status, &models.APIResponse{
		Result: result,
		Status: "ok",
		Time:   time.Since(start).Seconds(),
	})
}

// respondJSON writes data without HTML escaping, so payload strings come back as stored.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Error:  err.Error(),
		Kind:   models.Kind(err),
	})
}
