package handlers

import (
	"io"
	"net/http"
)

const maxWebhookBody = 65536

// VoiceWebhook receives media server callbacks. The signature gate is the
// only authentication; the media server holds no account credentials.
func (h *Handlers) VoiceWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Voice-Signature")
	if signature == "" || !h.voice.VerifySignature(signature, body) {
		http.Error(w, "", http.StatusUnauthorized)
		return
	}

	if err := h.voice.HandleWebhook(r.Context(), body); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
