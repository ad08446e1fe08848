package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"reading-leveler/internal/generation"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/pipeline"
	"reading-leveler/internal/usage"
)

const (
	HeaderUsage = "X-Usage"

	maxBodyBytes = 1 << 20
)

type usageResponse struct {
	Day        string `json:"day"`
	Month      string `json:"month"`
	DayCount   int    `json:"day_count"`
	MonthCount int    `json:"month_count"`
	DayLimit   int    `json:"day_limit"`
	MonthLimit int    `json:"month_limit"`
	Display    string `json:"display"`
}

func toUsageResponse(s usage.Snapshot) usageResponse {
	return usageResponse{
		Day:        s.Day,
		Month:      s.Month,
		DayCount:   s.DayCount,
		MonthCount: s.MonthCount,
		DayLimit:   s.Limits.PerDay,
		MonthLimit: s.Limits.PerMonth,
		Display:    s.String(),
	}
}

type decisionResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type themeRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Grade   string `json:"grade"`
}

type draftRequest struct {
	Content string `json:"content"`
	Grade   string `json:"grade"`
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	ws, _ := WorkspaceFromContext(r.Context())
	snap, err := ws.Usage.Snapshot(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUsageResponse(snap))
}

func (s *Server) checkUsage(w http.ResponseWriter, r *http.Request) {
	ws, _ := WorkspaceFromContext(r.Context())
	d, err := ws.Usage.Check(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Allowed: d.Allowed, Reason: d.Reason})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	ws, _ := WorkspaceFromContext(r.Context())

	var req generation.Request
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.pipeline.Run(r.Context(), ws.Usage, ws.Themes, req)
	if err != nil {
		var qe *pipeline.QuotaError
		var se *pipeline.StageError
		switch {
		case errors.Is(err, pipeline.ErrEmptyText), errors.Is(err, pipeline.ErrInvalidVersions):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &qe):
			writeError(w, http.StatusTooManyRequests, qe.Reason)
		case errors.As(err, &se):
			logger.LogEvent(logrus.WarnLevel, "generation failed", logrus.Fields{
				"request_id": RequestIDFromContext(r.Context()),
				"client_id":  ws.ClientID,
				"stage":      se.Stage,
				"error":      se.Err.Error(),
			})
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			s.internalError(w, r, err)
		}
		return
	}

	w.Header().Set(HeaderUsage, res.Usage.String())
	writeArchive(w, res.ArchiveName, res.Archive)
}

// packageMaterials packages caller-supplied materials without touching the quota.
func (s *Server) packageMaterials(w http.ResponseWriter, r *http.Request) {
	var m generation.Materials
	if !decodeBody(w, r, &m) {
		return
	}
	archive, err := s.packager.Package(r.Context(), m)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeArchive(w, "reading_materials.zip", archive)
}

func (s *Server) listThemes(w http.ResponseWriter, r *http.Request) {
	ws, _ := WorkspaceFromContext(r.Context())
	themes, err := ws.Themes.Load(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, themes)
}

func (s *Server) saveTheme(w http.ResponseWriter, r *http.Request) {
	ws, _ := WorkspaceFromContext(r.Context())
	var req themeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	theme, err := ws.Themes.Save(r.Context(), req.Title, req.Content, req.Grade)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, theme)
}

func (s *Server) deleteTheme(w http.ResponseWriter, r *http.Request) {
	ws, _ := WorkspaceFromContext(r.Context())
	id, ok := themeID(w, r)
	if !ok {
		return
	}
	themes, err := ws.Themes.Delete(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, themes)
}

// useTheme answers 204 for an unknown id; reusing a missing theme is a no-op.
func (s *Server) useTheme(w http.ResponseWriter, r *http.Request) {
	ws, _ := WorkspaceFromContext(r.Context())
	id, ok := themeID(w, r)
	if !ok {
		return
	}
	theme, found, err := ws.Themes.Use(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, theme)
}

func (s *Server) touchDraft(w http.ResponseWriter, r *http.Request) {
	ws, _ := WorkspaceFromContext(r.Context())
	var req draftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !ws.Drafts.Touch(req.Content, req.Grade) {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logger.LogEvent(logrus.ErrorLevel, "request failed", logrus.Fields{
		"request_id": RequestIDFromContext(r.Context()),
		"url":        r.URL.Path,
		"error":      err.Error(),
	})
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func themeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid theme id")
		return 0, false
	}
	return id, true
}

func writeArchive(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
