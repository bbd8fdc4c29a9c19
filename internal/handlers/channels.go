package handlers

import (
	"fmt"
	"net/http"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/permissions"
)

func (h *Handlers) CreateChannel(w http.ResponseWriter, r *http.Request) {
	type CreateChannel struct {
		GuildID  int64  `json:"guildID,string" validate:"required"`
		Name     string `json:"name" validate:"required,max=64"`
		Kind     string `json:"kind" validate:"required,oneof=text voice"`
		Position int    `json:"position"`
	}

	var create CreateChannel
	if !h.decodeBody(w, r, &create) {
		return
	}
	if err := h.validate.Struct(create); err != nil {
		h.httpError(w, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	if err := h.requirePermission(r, create.GuildID, permissions.ManageChannels); err != nil {
		h.httpError(w, err)
		return
	}

	channelID, err := h.generator.Generate()
	if err != nil {
		h.httpError(w, err)
		return
	}

	channel := models.Channel{
		ID:       channelID,
		GuildID:  create.GuildID,
		Name:     create.Name,
		Kind:     create.Kind,
		Position: create.Position,
	}
	if err := h.store.CreateChannel(r.Context(), channel); err != nil {
		h.httpError(w, err)
		return
	}

	h.writeJSON(w, channel)
}

func (h *Handlers) GetChannelList(w http.ResponseWriter, r *http.Request) {
	guildID, err := parseID(r, "guildID")
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.requireMember(r, guildID); err != nil {
		h.httpError(w, err)
		return
	}

	channels, err := h.store.ChannelsForGuild(r.Context(), guildID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	h.writeJSON(w, channels)
}

func (h *Handlers) RenameChannel(w http.ResponseWriter, r *http.Request) {
	type RenameChannel struct {
		ChannelID int64  `json:"channelID,string" validate:"required"`
		Name      string `json:"name" validate:"required,max=64"`
	}

	var rename RenameChannel
	if !h.decodeBody(w, r, &rename) {
		return
	}
	if err := h.validate.Struct(rename); err != nil {
		h.httpError(w, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	channel, err := h.store.ChannelByID(r.Context(), rename.ChannelID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.requirePermission(r, channel.GuildID, permissions.ManageChannels); err != nil {
		h.httpError(w, err)
		return
	}

	if err := h.store.RenameChannel(r.Context(), rename.ChannelID, rename.Name); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	type DeleteChannel struct {
		ChannelID int64 `json:"channelID,string" validate:"required"`
	}

	var del DeleteChannel
	if !h.decodeBody(w, r, &del) {
		return
	}

	channel, err := h.store.ChannelByID(r.Context(), del.ChannelID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.requirePermission(r, channel.GuildID, permissions.ManageChannels); err != nil {
		h.httpError(w, err)
		return
	}

	if err := h.store.DeleteChannel(r.Context(), del.ChannelID); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
