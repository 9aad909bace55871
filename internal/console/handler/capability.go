package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/toolgate/internal/console/service"
	"github.com/xela07ax/toolgate/internal/domain"
)

type CapabilityHandler struct {
	service *service.CapabilityService
}

func NewCapabilityHandler(s *service.CapabilityService) *CapabilityHandler {
	return &CapabilityHandler{service: s}
}

// List возвращает весь каталог инструментов (без фильтрации по ролям —
// консоль видит все)
func (h *CapabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	caps, err := h.service.GetAll(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch capabilities", http.StatusInternalServerError)
		return
	}
	if caps == nil {
		caps = []domain.Capability{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(caps)
}

func (h *CapabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	c, err := h.service.GetByName(r.Context(), name)
	if err != nil {
		http.Error(w, "Failed to retrieve capability", http.StatusInternalServerError)
		return
	}
	if c == nil {
		http.Error(w, "Capability not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

// Create регистрирует новый инструмент в каталоге.
// Определение проходит те же проверки, что и при загрузке реестром.
func (h *CapabilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var c domain.Capability
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Create(r.Context(), &c); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(c)
}

func (h *CapabilityHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var c domain.Capability
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	c.Name = name

	if err := h.service.Update(r.Context(), &c); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CapabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.service.Delete(r.Context(), name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
