package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/events"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/permissions"
)

func (h *Handlers) CreateGuild(w http.ResponseWriter, r *http.Request) {
	type CreateGuild struct {
		Name string `json:"name" validate:"required,max=64"`
	}

	var create CreateGuild
	if !h.decodeBody(w, r, &create) {
		return
	}
	if err := h.validate.Struct(create); err != nil {
		h.httpError(w, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	guildID, err := h.generator.Generate()
	if err != nil {
		h.httpError(w, err)
		return
	}
	roleID, err := h.generator.Generate()
	if err != nil {
		h.httpError(w, err)
		return
	}
	channelID, err := h.generator.Generate()
	if err != nil {
		h.httpError(w, err)
		return
	}

	guild := models.Guild{ID: guildID, OwnerID: accountID(r), Name: create.Name}
	err = h.store.CreateGuild(r.Context(), guild,
		models.Role{ID: roleID, GuildID: guildID, Name: "everyone", Permissions: uint64(permissions.Default()), IsDefault: true},
		models.Channel{ID: channelID, GuildID: guildID, Name: "general", Kind: models.ChannelKindText},
	)
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.writeJSON(w, guild)
}

func (h *Handlers) GetGuildList(w http.ResponseWriter, r *http.Request) {
	guilds, err := h.store.GuildsForAccount(r.Context(), accountID(r))
	if err != nil {
		h.httpError(w, err)
		return
	}
	h.writeJSON(w, guilds)
}

func (h *Handlers) RenameGuild(w http.ResponseWriter, r *http.Request) {
	type RenameGuild struct {
		GuildID int64  `json:"guildID,string" validate:"required"`
		Name    string `json:"name" validate:"required,max=64"`
	}

	var rename RenameGuild
	if !h.decodeBody(w, r, &rename) {
		return
	}
	if err := h.validate.Struct(rename); err != nil {
		h.httpError(w, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	if err := h.requirePermission(r, rename.GuildID, permissions.ManageGuild); err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.store.RenameGuild(r.Context(), rename.GuildID, rename.Name); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) DeleteGuild(w http.ResponseWriter, r *http.Request) {
	type DeleteGuild struct {
		GuildID int64 `json:"guildID,string" validate:"required"`
	}

	var del DeleteGuild
	if !h.decodeBody(w, r, &del) {
		return
	}

	if err := h.requireOwner(r, del.GuildID); err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.store.DeleteGuild(r.Context(), del.GuildID); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) LeaveGuild(w http.ResponseWriter, r *http.Request) {
	type LeaveGuild struct {
		GuildID int64 `json:"guildID,string" validate:"required"`
	}

	var leave LeaveGuild
	if !h.decodeBody(w, r, &leave) {
		return
	}

	ownerID, err := h.store.GuildOwnerID(r.Context(), leave.GuildID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if ownerID == accountID(r) {
		h.httpError(w, fmt.Errorf("%w: the owner can't leave, delete the guild instead", apperr.ErrValidation))
		return
	}

	if err := h.store.RemoveMember(r.Context(), leave.GuildID, accountID(r)); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) CreateInvite(w http.ResponseWriter, r *http.Request) {
	type CreateInvite struct {
		GuildID int64 `json:"guildID,string" validate:"required"`
	}

	var create CreateInvite
	if !h.decodeBody(w, r, &create) {
		return
	}

	if err := h.requirePermission(r, create.GuildID, permissions.CreateInvite); err != nil {
		h.httpError(w, err)
		return
	}

	invite := models.Invite{Code: uuid.NewString(), GuildID: create.GuildID, CreatorID: accountID(r)}
	if err := h.store.CreateInvite(r.Context(), invite); err != nil {
		h.httpError(w, err)
		return
	}

	h.writeJSON(w, invite)
}

func (h *Handlers) JoinByInvite(w http.ResponseWriter, r *http.Request) {
	type Join struct {
		Code string `json:"code" validate:"required,uuid4"`
	}

	var join Join
	if !h.decodeBody(w, r, &join) {
		return
	}
	if err := h.validate.Struct(join); err != nil {
		h.httpError(w, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	guildID, err := h.store.GuildIDForInvite(r.Context(), join.Code)
	if err != nil {
		h.httpError(w, err)
		return
	}

	banned, err := h.store.IsBanned(r.Context(), guildID, accountID(r))
	if err != nil {
		h.httpError(w, err)
		return
	}
	if banned {
		h.httpError(w, fmt.Errorf("%w: banned from guild %d", apperr.ErrForbidden, guildID))
		return
	}

	isMember, err := h.store.IsMember(r.Context(), guildID, accountID(r))
	if err != nil {
		h.httpError(w, err)
		return
	}
	if !isMember {
		if err := h.store.AddMember(r.Context(), guildID, accountID(r)); err != nil {
			h.httpError(w, err)
			return
		}

		account, err := h.store.AccountByID(r.Context(), accountID(r))
		if err == nil {
			joined := events.PresenceChanged{UserID: account.ID, Status: "online"}
			if err := h.broadcaster.Broadcast(r.Context(), events.GuildRoom(guildID), events.TypePresenceChanged, joined); err != nil {
				h.sugar.Error(err)
			}
		}
	}

	h.writeJSON(w, map[string]string{"guildID": fmt.Sprintf("%d", guildID)})
}
