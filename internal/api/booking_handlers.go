package api

import (
	"fmt"
	"net/http"
	"strconv"

	"carrental/internal/service"

	"github.com/go-chi/chi/v5"
)

type checkAvailabilityRequest struct {
	PickupLocation string `json:"pickupLocation" validate:"max=120"`
	PickupDate     string `json:"pickupDate"`
	ReturnDate     string `json:"returnDate"`
}

type createBookingRequest struct {
	CarID      int64  `json:"carId" validate:"required,gt=0"`
	PickupDate string `json:"pickupDate"`
	ReturnDate string `json:"returnDate"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	var req checkAvailabilityRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	cars, err := h.svc.Bookings.CheckAvailability(r.Context(), req.PickupLocation, req.PickupDate, req.ReturnDate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success":       true,
		"message":       strconv.Itoa(len(cars)) + " cars available",
		"availableCars": cars,
	})
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	booking, err := h.svc.Bookings.CreateBooking(r.Context(), actorFrom(r.Context()), req.CarID, req.PickupDate, req.ReturnDate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"success": true, "message": "Booking Created", "booking": booking})
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.Bookings.ListBookings(r.Context(), actorFrom(r.Context()), r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ok", "bookings": bookings})
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	booking, err := h.svc.Bookings.GetBooking(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ok", "booking": booking})
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req changeStatusRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	booking, err := h.svc.Bookings.ChangeStatus(r.Context(), actorFrom(r.Context()), id, req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Status Updated", "booking": booking})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", service.ErrInvalidInput, chi.URLParam(r, "id"))
	}
	return id, nil
}
