package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/sitaware/internal/adapter/prefs"
	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/engine"
)

type errorResponse struct {
	Error string `json:"error"`
}

type feedResponse struct {
	engine.FeedSummary
	Set     string `json:"set"`
	Records any    `json:"records"`
}

type scopeRequest struct {
	Scope []string `json:"scope"`
}

type scopeResponse struct {
	Scope domain.Scope `json:"scope"`
}

type themeBody struct {
	Theme domain.Theme `json:"theme"`
}

type region struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleFeeds(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.engine.Feeds())
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseFeedKind(chi.URLParam(r, "feed"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown feed")
		return
	}

	set := r.URL.Query().Get("set")
	if set == "" {
		set = "filtered"
	}
	if set != "filtered" && set != "raw" {
		writeError(w, http.StatusBadRequest, "set must be raw or filtered")
		return
	}

	summary, records, err := s.engine.Records(kind, set == "raw")
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, feedResponse{FeedSummary: summary, Set: set, Records: records})
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	if !s.allowRefresh(w) {
		return
	}
	snap, err := s.engine.RefreshAll(context.WithoutCancel(r.Context()))
	if err != nil {
		// Healthy feeds still updated; the snapshot carries per-feed errors.
		s.metrics.ManualRefreshes.WithLabelValues("partial").Inc()
		s.logger.Warn("manual refresh completed with errors", "error", err)
	} else {
		s.metrics.ManualRefreshes.WithLabelValues("ok").Inc()
	}
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseFeedKind(chi.URLParam(r, "feed"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown feed")
		return
	}
	if !s.allowRefresh(w) {
		return
	}
	snap, err := s.engine.RefreshFeed(context.WithoutCancel(r.Context()), kind)
	if err != nil {
		s.metrics.ManualRefreshes.WithLabelValues("partial").Inc()
		s.logger.Warn("manual feed refresh failed", "feed", kind, "error", err)
	} else {
		s.metrics.ManualRefreshes.WithLabelValues("ok").Inc()
	}
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

// allowRefresh writes a 429 and returns false when manual refreshes are
// arriving faster than the configured minimum interval.
func (s *Server) allowRefresh(w http.ResponseWriter) bool {
	res := s.limiter.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		s.metrics.ManualRefreshes.WithLabelValues("throttled").Inc()
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
		writeError(w, http.StatusTooManyRequests, "refresh already requested recently")
		return false
	}
	return true
}

func (s *Server) handleGetScope(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, scopeResponse{Scope: s.engine.Scope()})
}

func (s *Server) handlePutScope(w http.ResponseWriter, r *http.Request) {
	var req scopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scope, err := domain.ParseScope(req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.engine.SetScope(r.Context(), scope)
	if err != nil {
		s.logger.Warn("scope applied but not persisted", "scope", scope.String(), "error", err)
	}
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := s.themes.LoadTheme(r.Context())
	if err != nil {
		if !errors.Is(err, prefs.ErrNotFound) {
			s.logger.Warn("load theme failed", "error", err)
		}
		theme = domain.ThemeLight
	}
	sharedobs.WriteJSON(w, http.StatusOK, themeBody{Theme: theme})
}

func (s *Server) handlePutTheme(w http.ResponseWriter, r *http.Request) {
	var req themeBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	theme, err := domain.ParseTheme(string(req.Theme))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.themes.SaveTheme(r.Context(), theme); err != nil {
		s.logger.Error("save theme failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save theme")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, themeBody{Theme: theme})
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	out := make([]region, 0, len(domain.Regions))
	for code, name := range domain.Regions {
		out = append(out, region{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	sharedobs.WriteJSON(w, http.StatusOK, out)
}
