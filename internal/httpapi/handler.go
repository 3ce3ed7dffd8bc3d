// Package httpapi exposes the report service over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"fleet-reports/internal/introspection"
	"fleet-reports/internal/logging"
	"fleet-reports/internal/planner"
	"fleet-reports/internal/report"
	"fleet-reports/internal/schema"
)

// DefaultMaxBodyBytes caps report request bodies.
const DefaultMaxBodyBytes = 1 << 20

// ReportRunner runs reports and client listings.
type ReportRunner interface {
	Run(ctx context.Context, base string, paths []string) (*report.Result, error)
	ListClients(ctx context.Context) (*report.ClientList, error)
}

// ColumnCatalog reads live column metadata.
type ColumnCatalog interface {
	Columns(ctx context.Context, entity schema.Entity) ([]introspection.ColumnInfo, error)
}

// Config wires the handler to its collaborators.
type Config struct {
	Reports      ReportRunner
	Catalog      ColumnCatalog
	MaxBodyBytes int64
}

// Handler serves the report endpoints.
type Handler struct {
	reports      ReportRunner
	catalog      ColumnCatalog
	maxBodyBytes int64
}

// NewHandler creates the report API handler.
func NewHandler(cfg Config) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{
		reports:      cfg.Reports,
		catalog:      cfg.Catalog,
		maxBodyBytes: maxBody,
	}
}

// Register mounts the report routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /relatorio/{tabela}", h.handleReport)
	mux.HandleFunc("GET /relatorio/{tabela}", h.handleReportExport)
	mux.HandleFunc("GET /nomes_colunas/{tabela}", h.handleColumns)
	mux.HandleFunc("GET /clientes", h.handleClients)
}

// Routes lists the route patterns served by Register.
func Routes() []string {
	return []string{"/relatorio/{tabela}", "/nomes_colunas/{tabela}", "/clientes"}
}

type reportRequest struct {
	Colunas []string `json:"colunas"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer r.Body.Close()

	var req reportRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: expected {\"colunas\": [...]}")
		return
	}

	result, err := h.reports.Run(r.Context(), r.PathValue("tabela"), req.Colunas)
	if err != nil {
		h.writeReportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleReportExport(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("tabela")
	base, ok := trimSuffixFold(table, ".xlsx")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	result, err := h.reports.Run(r.Context(), base, queryColumns(r))
	if err != nil {
		h.writeReportError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, result); err != nil {
		logging.FromContext(r.Context()).Error("failed to render report workbook",
			slog.String("base_entity", result.BaseEntity),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "report export failed")
		return
	}

	w.Header().Set("Content-Type", report.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"relatorio_%s.xlsx\"", result.BaseEntity))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleColumns(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("tabela")
	entity, ok := schema.ParseEntity(name)
	if !ok {
		writeError(w, http.StatusBadRequest, (&planner.PathError{Kind: planner.ErrUnknownEntity, Entity: strings.ToUpper(strings.TrimSpace(name))}).Error())
		return
	}
	if h.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}

	columns, err := h.catalog.Columns(r.Context(), entity)
	if err != nil {
		if errors.Is(err, introspection.ErrTableNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logging.FromContext(r.Context()).Error("catalog lookup failed",
			slog.String("table", entity.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "catalog lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, columns)
}

func (h *Handler) handleClients(w http.ResponseWriter, r *http.Request) {
	list, err := h.reports.ListClients(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("client listing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "client listing failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) writeReportError(w http.ResponseWriter, r *http.Request, err error) {
	if planner.IsPlanningError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logging.FromContext(r.Context()).Error("report request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, report.ErrExecution.Error())
}

// queryColumns reads column paths from ?colunas=, accepting both repeated
// parameters and comma separated lists.
func queryColumns(r *http.Request) []string {
	var paths []string
	for _, value := range r.URL.Query()["colunas"] {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				paths = append(paths, part)
			}
		}
	}
	return paths
}

func trimSuffixFold(s, suffix string) (string, bool) {
	if len(s) <= len(suffix) || !strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s, false
	}
	return s[:len(s)-len(suffix)], true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
