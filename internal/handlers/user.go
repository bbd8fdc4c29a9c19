package handlers

import (
	"fmt"
	"net/http"

	"guildgate-backend/internal/apperr"
)

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.store.AccountByID(r.Context(), accountID(r))
	if err != nil {
		h.httpError(w, err)
		return
	}
	account.Password = nil
	h.writeJSON(w, account)
}

func (h *Handlers) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	type UpdateAccount struct {
		DisplayName   string `json:"displayName" validate:"required,max=64"`
		Picture       string `json:"picture" validate:"omitempty,url,max=256"`
		DefaultStatus string `json:"defaultStatus" validate:"required,oneof=online idle dnd offline"`
	}

	var update UpdateAccount
	if !h.decodeBody(w, r, &update) {
		return
	}
	if err := h.validate.Struct(update); err != nil {
		h.httpError(w, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	err := h.store.UpdateAccount(r.Context(), accountID(r), update.DisplayName, update.Picture, update.DefaultStatus)
	if err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
