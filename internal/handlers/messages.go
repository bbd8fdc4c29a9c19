package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/crypto"
	"guildgate-backend/internal/events"
	"guildgate-backend/internal/permissions"
)

const defaultHistoryLimit = 50
const maxHistoryLimit = 100

// GetMessageList pages backwards through a channel's history. Bodies are
// decrypted for display here; a row that fails authentication comes back as
// the placeholder, never as an error for the whole page.
func (h *Handlers) GetMessageList(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "channelID")
	if err != nil {
		h.httpError(w, err)
		return
	}

	channel, err := h.store.ChannelByID(r.Context(), channelID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.requirePermission(r, channel.GuildID, permissions.ViewChannel); err != nil {
		h.httpError(w, err)
		return
	}

	var beforeID int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		beforeID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.httpError(w, fmt.Errorf("%w: before must be a message id", apperr.ErrValidation))
			return
		}
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxHistoryLimit {
			h.httpError(w, fmt.Errorf("%w: limit must be 1..%d", apperr.ErrValidation, maxHistoryLimit))
			return
		}
	}

	messages, err := h.store.MessagesBefore(r.Context(), channelID, beforeID, limit)
	if err != nil {
		h.httpError(w, err)
		return
	}

	for i := range messages {
		plaintext, err := h.codec.Decode(messages[i].Content)
		if err != nil {
			h.metrics.DecryptFailures.Inc()
			h.sugar.Warnf("Message %d failed decryption: %s", messages[i].ID, err)
			plaintext = crypto.Placeholder
		}
		messages[i].Content = plaintext
	}

	h.writeJSON(w, messages)
}

func (h *Handlers) PinMessage(w http.ResponseWriter, r *http.Request) {
	type PinMessage struct {
		MessageID int64 `json:"messageID,string" validate:"required"`
		Pinned    bool  `json:"pinned"`
	}

	var pin PinMessage
	if !h.decodeBody(w, r, &pin) {
		return
	}

	channelID, _, err := h.store.MessageMeta(r.Context(), pin.MessageID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	channel, err := h.store.ChannelByID(r.Context(), channelID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.requirePermission(r, channel.GuildID, permissions.ManageMessages); err != nil {
		h.httpError(w, err)
		return
	}

	if err := h.store.SetMessagePinned(r.Context(), pin.MessageID, pin.Pinned); err != nil {
		h.httpError(w, err)
		return
	}

	message, err := h.store.MessageByID(r.Context(), pin.MessageID)
	if err == nil {
		message.Content = h.codec.DecodeForDisplay(message.Content)
		update := events.MessageUpdated{Message: message}
		if err := h.broadcaster.Broadcast(r.Context(), events.ChannelRoom(channelID), events.TypeMessageUpdated, update); err != nil {
			h.sugar.Error(err)
		}
	}

	w.WriteHeader(http.StatusOK)
}
