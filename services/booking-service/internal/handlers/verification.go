package handlers

import (
	"net/http"
	"strings"
	"time"
)

type verificationRequest struct {
	ShopID    string `json:"shop_id"`
	Recipient string `json:"recipient"`
	Code      string `json:"code"`
}

func (h *BookingHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.verifier == nil {
		http.Error(w, "verification disabled", http.StatusNotFound)
		return
	}
	var req verificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ShopID = strings.TrimSpace(req.ShopID)
	req.Recipient = strings.TrimSpace(req.Recipient)
	if req.ShopID == "" || req.Recipient == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if err := h.engine.CheckShop(r.Context(), req.ShopID); err != nil {
		writeError(w, h.logger, "failed to request verification", err)
		return
	}
	expiresAt, err := h.verifier.Request(r.Context(), req.ShopID, req.Recipient)
	if err != nil {
		writeError(w, h.logger, "failed to request verification", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"expires_at": expiresAt.UTC().Format(time.RFC3339)})
}

func (h *BookingHandler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.verifier == nil {
		http.Error(w, "verification disabled", http.StatusNotFound)
		return
	}
	var req verificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ShopID) == "" || strings.TrimSpace(req.Recipient) == "" || strings.TrimSpace(req.Code) == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if err := h.verifier.Confirm(r.Context(), strings.TrimSpace(req.ShopID), req.Recipient, req.Code); err != nil {
		writeError(w, h.logger, "failed to confirm verification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
