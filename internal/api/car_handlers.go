package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carrental/internal/models"
	"carrental/internal/service"
)

type createCarRequest struct {
	OwnerID         string  `json:"ownerId"`
	Brand           string  `json:"brand" validate:"required,max=60"`
	Model           string  `json:"model" validate:"max=60"`
	Category        string  `json:"category" validate:"max=40"`
	Year            int     `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	SeatingCapacity int     `json:"seatingCapacity" validate:"omitempty,gte=1,lte=60"`
	FuelType        string  `json:"fuelType" validate:"max=30"`
	Transmission    string  `json:"transmission" validate:"max=30"`
	Location        string  `json:"location" validate:"required,max=120"`
	PricePerDay     float64 `json:"pricePerDay" validate:"required,gt=0"`
	Description     string  `json:"description" validate:"max=2000"`
}

func (h *Handler) listCars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cars, err := h.svc.Cars.ListAvailable(r.Context(), models.CarFilter{
		Location: strings.TrimSpace(q.Get("location")),
		Category: strings.TrimSpace(q.Get("category")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ok", "cars": cars})
}

func (h *Handler) getCar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	car, err := h.svc.Cars.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ok", "car": car})
}

func (h *Handler) ownerCars(w http.ResponseWriter, r *http.Request) {
	cars, err := h.svc.Cars.ListOwnerCars(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ok", "cars": cars})
}

func (h *Handler) createCar(w http.ResponseWriter, r *http.Request) {
	var req createCarRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	car := &models.Car{
		OwnerID:         req.OwnerID,
		Brand:           req.Brand,
		Model:           req.Model,
		Category:        req.Category,
		Year:            req.Year,
		SeatingCapacity: req.SeatingCapacity,
		FuelType:        req.FuelType,
		Transmission:    req.Transmission,
		Location:        req.Location,
		PricePerDay:     req.PricePerDay,
		Description:     req.Description,
		IsAvailable:     true,
	}
	if err := h.svc.Cars.CreateCar(r.Context(), actorFrom(r.Context()), car); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"success": true, "message": "Car Added", "car": car})
}

func (h *Handler) toggleCar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	car, err := h.svc.Cars.ToggleAvailability(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Availability Toggled", "car": car})
}

func (h *Handler) deleteCar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	cancelled, err := h.svc.Cars.DeleteCar(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if cancelled == nil {
		cancelled = []int64{}
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Car Removed", "cancelledBookings": cancelled})
}

func (h *Handler) ownerDashboard(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Dashboard.OwnerDashboard(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ok", "dashboardData": data})
}

func (h *Handler) exportBookings(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.Dashboard.ExportOwnerBookings(r.Context(), actorFrom(r.Context()), &buf); err != nil {
		writeError(w, h.logger, err)
		return
	}

	name := fmt.Sprintf("bookings_%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount := 1.0
	if raw := strings.TrimSpace(q.Get("amount")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: amount must be a number", service.ErrInvalidInput))
			return
		}
		amount = v
	}

	conv, err := h.svc.Rates.Convert(r.Context(), amount, q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ok", "conversion": conv})
}
