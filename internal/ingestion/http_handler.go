package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/productpulse/pulse-api/internal/domain"
)

// Handler exposes the ingestion pipeline over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service for route registration.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Preview handles POST with a multipart file: parse + validate + dictionary
// reconciliation, no writes.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	fileName, payload, ok := readUpload(w, r)
	if !ok {
		return
	}

	preview, err := h.service.Inspect(r.Context(), fileName, payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// Upload handles POST with a multipart file: the full pipeline. Validation
// problems and pending discovery come back as 422 with the preview attached.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	fileName, payload, ok := readUpload(w, r)
	if !ok {
		return
	}

	summary, preview, err := h.service.Run(r.Context(), fileName, payload, nil)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrNoDataRows) {
			writeJSON(w, http.StatusBadRequest, errorBody(err))
			return
		}
		// Mid-run batch failure: the summary carries the partial accounting.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   err.Error(),
			"summary": summary,
		})
		return
	}

	if len(preview.Errors) > 0 || len(preview.MissingKPIs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, preview)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Definitions handles POST of the definitions collected during discovery.
func (h *Handler) Definitions(w http.ResponseWriter, r *http.Request) {
	var defs []domain.KPIDefinition
	if err := json.NewDecoder(r.Body).Decode(&defs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Errorf("invalid payload: %w", err)))
		return
	}
	if len(defs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody(errors.New("no definitions supplied")))
		return
	}

	if err := h.service.SaveDefinitions(r.Context(), defs); err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"saved": len(defs)})
}

// Template handles GET ?format=csv|xlsx and streams the download.
func (h *Handler) Template(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	stamp := time.Now().Format("2006-01-02")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="productpulse_telemetry_template_%s.csv"`, stamp))
		_, _ = w.Write(h.service.TemplateCSV(r.Context()))
	case "xlsx":
		payload, err := h.service.TemplateXLSX(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody(err))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="productpulse_telemetry_template_%s.xlsx"`, stamp))
		_, _ = w.Write(payload)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Errorf("unsupported template format: %s", format)))
	}
}

// Logs handles GET of recent upload log entries.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, h.service.UploadLogs(r.Context(), limit))
}

func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Errorf("invalid form data: %w", err)))
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Errorf("file required: %w", err)))
		return "", nil, false
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Errorf("failed to read file: %w", err)))
		return "", nil, false
	}

	return header.Filename, payload, true
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
