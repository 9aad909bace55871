package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/toolgate/internal/console/service"
	"github.com/xela07ax/toolgate/internal/repository/postgres"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// Query возвращает записи аудита с поддержкой фильтрации
// GET /v1/audit?agent_id=...&capability=...&outcome=...&since=RFC3339&limit=N
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := postgres.AuditFilter{
		AgentID:    q.Get("agent_id"),
		Capability: q.Get("capability"),
		Outcome:    q.Get("outcome"),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		f.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	records, err := h.service.FetchRecords(r.Context(), f)
	if err != nil {
		http.Error(w, "Failed to fetch audit records", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
