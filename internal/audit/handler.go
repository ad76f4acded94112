package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-hr/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Handler serves audit trail queries and CSV exports.
type Handler struct {
	logger *slog.Logger
	log    *Log
	guard  func(http.Handler) http.Handler
}

// NewHandler builds Handler. guard gates every route, typically an audit.view
// capability check.
func NewHandler(logger *slog.Logger, log *Log, guard func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, log: log, guard: guard}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Get("/audit", h.list)
	})
}

type entryResponse struct {
	ID      string            `json:"id"`
	Actor   string            `json:"actor"`
	Action  string            `json:"action"`
	Target  string            `json:"target,omitempty"`
	Outcome string            `json:"outcome"`
	Reason  string            `json:"reason,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
	At      time.Time         `json:"at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.log.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		data, err := WriteCSV(entries)
		if err != nil {
			h.logger.Error("export audit csv", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		Actor:  q.Get("actor"),
		Action: q.Get("action"),
		Target: q.Get("target"),
	}
	var err error
	if filter.From, err = parseTime(q.Get("from"), "from"); err != nil {
		return Filter{}, err
	}
	if filter.To, err = parseTime(q.Get("to"), "to"); err != nil {
		return Filter{}, err
	}
	if filter.Limit, err = parseInt(q.Get("limit"), "limit"); err != nil {
		return Filter{}, err
	}
	if filter.Offset, err = parseInt(q.Get("offset"), "offset"); err != nil {
		return Filter{}, err
	}
	return filter, nil
}

func parseTime(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, shared.NewFormatError(field, "expected RFC3339 timestamp")
	}
	return t, nil
}

func parseInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, shared.NewFormatError(field, "expected non-negative integer")
	}
	return n, nil
}
