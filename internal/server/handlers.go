package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/productpulse/pulse-api/internal/domain"
	"github.com/productpulse/pulse-api/internal/insights"
	"github.com/productpulse/pulse-api/internal/jira"
	"github.com/productpulse/pulse-api/pkg/retry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Dictionary --------------------------------------------------------------

func (s *Server) handleListDictionary(w http.ResponseWriter, r *http.Request) {
	defs := retry.Fetch(r.Context(), s.deps.RetryCfg, "get dictionary", func(ctx context.Context) ([]domain.KPIDefinition, error) {
		return s.deps.DictRepo.List(ctx, nil)
	}, []domain.KPIDefinition{})
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleUpsertDefinition(w http.ResponseWriter, r *http.Request) {
	var def domain.KPIDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid definition payload")
		return
	}
	if def.KPIKey == "" {
		writeError(w, http.StatusUnprocessableEntity, "kpi_key is required")
		return
	}

	if err := s.deps.DictRepo.Upsert(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// Tenants and facts -------------------------------------------------------

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants := retry.Fetch(r.Context(), s.deps.RetryCfg, "list tenants", func(ctx context.Context) ([]string, error) {
		return s.deps.FactRepo.ListTenants(ctx)
	}, []string{})
	writeJSON(w, http.StatusOK, tenants)
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	from := r.URL.Query().Get("from")

	facts := retry.Fetch(r.Context(), s.deps.RetryCfg, "list facts", func(ctx context.Context) ([]domain.KPIFact, error) {
		if from != "" {
			return s.deps.FactRepo.ListByTenantSince(ctx, tenantID, from)
		}
		return s.deps.FactRepo.ListByTenant(ctx, tenantID)
	}, []domain.KPIFact{})
	writeJSON(w, http.StatusOK, facts)
}

// Thresholds --------------------------------------------------------------

func (s *Server) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	thresholds := retry.Fetch(r.Context(), s.deps.RetryCfg, "list thresholds", func(ctx context.Context) ([]domain.KPIThreshold, error) {
		return s.deps.Thresholds.ListByTenant(ctx, tenantID)
	}, []domain.KPIThreshold{})
	writeJSON(w, http.StatusOK, thresholds)
}

func (s *Server) handleSaveThresholds(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var thresholds []domain.KPIThreshold
	if err := json.NewDecoder(r.Body).Decode(&thresholds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid thresholds payload")
		return
	}
	for i := range thresholds {
		thresholds[i].TenantID = tenantID
		if thresholds[i].KPIKey == "" {
			writeError(w, http.StatusUnprocessableEntity, "every threshold needs a kpi_key")
			return
		}
	}

	if err := s.deps.Thresholds.UpsertBatch(r.Context(), thresholds); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, thresholds)
}

// Export ------------------------------------------------------------------

func (s *Server) handleExportFacts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Export == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}

	res, err := s.deps.Export.Export(r.Context(),
		chi.URLParam(r, "tenantID"),
		r.URL.Query().Get("from"),
		r.URL.Query().Get("format"),
	)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.FileName+`"`)
	_, _ = w.Write(res.Data)
}

// Analytics sync ----------------------------------------------------------

type syncRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func (s *Server) handleAnalyticsSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics sync is not configured")
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sync payload")
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		writeError(w, http.StatusUnprocessableEntity, "startDate and endDate are required")
		return
	}

	days, err := s.deps.Analytics.SyncTenant(r.Context(), chi.URLParam(r, "tenantID"), req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"daysSynced": days})
}

// Workspaces --------------------------------------------------------------

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces := retry.Fetch(r.Context(), s.deps.RetryCfg, "list workspaces", func(ctx context.Context) ([]domain.Workspace, error) {
		return s.deps.Workspaces.List(ctx)
	}, []domain.Workspace{})
	writeJSON(w, http.StatusOK, workspaces)
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var ws domain.Workspace
	if err := json.NewDecoder(r.Body).Decode(&ws); err != nil {
		writeError(w, http.StatusBadRequest, "invalid workspace payload")
		return
	}

	created, err := s.deps.Workspaces.Create(r.Context(), ws)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	ws, err := s.deps.Workspaces.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var ws domain.Workspace
	if err := json.NewDecoder(r.Body).Decode(&ws); err != nil {
		writeError(w, http.StatusBadRequest, "invalid workspace payload")
		return
	}
	ws.ID = id

	updated, err := s.deps.Workspaces.Update(r.Context(), ws)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.deps.Workspaces.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Insights ----------------------------------------------------------------

func (s *Server) handleSentimentAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Insights == nil {
		writeError(w, http.StatusServiceUnavailable, "insights are not configured")
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sentiment payload")
		return
	}

	audit, err := s.deps.Insights.AuditSentiment(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (s *Server) handleSEOAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Insights == nil {
		writeError(w, http.StatusServiceUnavailable, "insights are not configured")
		return
	}

	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid audit payload")
		return
	}

	reports, err := s.deps.Insights.AuditSEO(r.Context(), req.URLs)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleChartConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Insights == nil {
		writeError(w, http.StatusServiceUnavailable, "insights are not configured")
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid chart payload")
		return
	}

	defs := retry.Fetch(r.Context(), s.deps.RetryCfg, "get dictionary", func(ctx context.Context) ([]domain.KPIDefinition, error) {
		return s.deps.DictRepo.List(ctx, nil)
	}, []domain.KPIDefinition{})
	keys := make([]string, 0, len(defs))
	for _, def := range defs {
		keys = append(keys, def.KPIKey)
	}

	cfg, err := s.deps.Insights.ChartFromPrompt(r.Context(), req.Prompt, keys)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePrioritize(w http.ResponseWriter, r *http.Request) {
	if s.deps.Insights == nil {
		writeError(w, http.StatusServiceUnavailable, "insights are not configured")
		return
	}

	var req struct {
		Epics []insights.EpicInput `json:"epics"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid prioritization payload")
		return
	}

	scores, err := s.deps.Insights.PrioritizeEpics(r.Context(), req.Epics)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// Release reports ---------------------------------------------------------

func (s *Server) handleListReleaseReports(w http.ResponseWriter, r *http.Request) {
	if s.deps.Release == nil {
		writeError(w, http.StatusServiceUnavailable, "release reporting is not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	reports, err := s.deps.Release.Reports(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleBuildReleaseReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Release == nil {
		writeError(w, http.StatusServiceUnavailable, "release reporting is not configured")
		return
	}

	var req jira.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid report payload")
		return
	}
	if req.FixVersion == "" {
		writeError(w, http.StatusUnprocessableEntity, "fixVersion is required")
		return
	}

	report, err := s.deps.Release.BuildReport(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// Helpers -----------------------------------------------------------------

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already out; an encode failure has no client-visible fix.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
