package api

import (
	"net/http"
)

type createPaymentRequest struct {
	BookingID int64    `json:"bookingId" validate:"required,gt=0"`
	Amount    *float64 `json:"amount" validate:"required,gte=0"`
	Method    string   `json:"method" validate:"max=16"`
	Currency  string   `json:"currency" validate:"max=8"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	payment, err := h.svc.Payments.CreatePayment(r.Context(), actorFrom(r.Context()), req.BookingID, *req.Amount, req.Method, req.Currency)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"success": true, "message": "Payment created", "payment": payment})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	payment, err := h.svc.Payments.GetPayment(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ok", "payment": payment})
}
