package http

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/mdm/internal/mdm/domain"
	"github.com/aussiebroadwan/mdm/internal/mdm/service"
	"github.com/aussiebroadwan/mdm/internal/mdm/store"
	"github.com/aussiebroadwan/mdm/pkg/httpx"
	"github.com/aussiebroadwan/mdm/pkg/slogx"
)

// DevicesHandler serves the device inventory endpoints.
type DevicesHandler struct {
	DeviceService *service.DeviceService
}

// HandleList serves one page of the device collection. Paging parameters
// follow the collection conventions: page (zero based), page-size, sort,
// filter.
func (h *DevicesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	q := domain.ListQuery{
		Sort:   r.URL.Query().Get("sort"),
		Filter: r.URL.Query().Get("filter"),
	}

	var err error
	if raw := r.URL.Query().Get("page"); raw != "" {
		if q.Page, err = strconv.Atoi(raw); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_query", "page must be an integer")
			return
		}
	}
	if raw := r.URL.Query().Get("page-size"); raw != "" {
		if q.PageSize, err = strconv.Atoi(raw); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_query", "page-size must be an integer")
			return
		}
	}

	page, err := h.DeviceService.ListDevices(ctx, q)
	if err != nil {
		if errors.Is(err, service.ErrInvalidQuery) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_query", "invalid page, sort or filter parameters")
			return
		}
		log.Error("device list failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *DevicesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	device, err := h.DeviceService.GetDevice(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "device not found")
			return
		}
		log.Error("device fetch failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, device)
}

func (h *DevicesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var d domain.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	created, err := h.DeviceService.CreateDevice(ctx, d)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidQuery):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "name and serialNumber are required")
		case errors.Is(err, store.ErrAlreadyExists):
			httpx.WriteError(w, http.StatusConflict, "already_exists", "serial number already registered")
		default:
			log.Error("device create failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *DevicesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var d domain.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	d.ID = r.PathValue("id")

	updated, err := h.DeviceService.UpdateDevice(ctx, d)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidQuery):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "name and serialNumber are required")
		case errors.Is(err, store.ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "device not found")
		default:
			log.Error("device update failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *DevicesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := h.DeviceService.DeleteDevice(ctx, r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "device not found")
			return
		}
		log.Error("device delete failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleExport streams the whole inventory as CSV.
func (h *DevicesHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	devices, err := h.DeviceService.AllDevices(ctx)
	if err != nil {
		log.Error("device export failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="devices.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "name", "serialNumber", "model", "osVersion", "assignedUser"})
	for _, d := range devices {
		_ = cw.Write([]string{d.ID, d.Name, d.SerialNumber, d.Model, d.OSVersion, d.AssignedUser})
	}
	cw.Flush()
}
