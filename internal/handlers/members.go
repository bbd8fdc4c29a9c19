package handlers

import (
	"fmt"
	"net/http"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/ephemeral"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/permissions"
)

type Member struct {
	models.Account
	Status string `json:"status"`
}

// GetMemberList merges the durable roster with live presence. Accounts
// without a presence key are offline regardless of their stored default.
func (h *Handlers) GetMemberList(w http.ResponseWriter, r *http.Request) {
	guildID, err := parseID(r, "guildID")
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.requireMember(r, guildID); err != nil {
		h.httpError(w, err)
		return
	}

	accounts, err := h.store.GuildMembers(r.Context(), guildID)
	if err != nil {
		h.httpError(w, err)
		return
	}

	members := make([]Member, 0, len(accounts))
	for _, account := range accounts {
		status := "offline"
		fields, err := h.eph.Get(r.Context(), ephemeral.PresenceKey(account.ID))
		if err != nil {
			h.sugar.Error(err)
		} else if fields != nil {
			status = fields["status"]
		}

		account.Email = ""
		account.Password = nil
		members = append(members, Member{Account: account, Status: status})
	}

	h.writeJSON(w, members)
}

func (h *Handlers) KickMember(w http.ResponseWriter, r *http.Request) {
	type KickMember struct {
		GuildID   int64 `json:"guildID,string" validate:"required"`
		AccountID int64 `json:"accountID,string" validate:"required"`
	}

	var kick KickMember
	if !h.decodeBody(w, r, &kick) {
		return
	}

	ownerID, err := h.store.GuildOwnerID(r.Context(), kick.GuildID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if kick.AccountID == ownerID {
		h.httpError(w, fmt.Errorf("%w: the owner can't be kicked", apperr.ErrValidation))
		return
	}

	if err := h.requirePermission(r, kick.GuildID, permissions.KickMembers); err != nil {
		h.httpError(w, err)
		return
	}
	canModerate, err := h.perms.CanModerate(r.Context(), accountID(r), kick.AccountID, kick.GuildID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if !canModerate {
		h.httpError(w, fmt.Errorf("%w: target outranks you", apperr.ErrForbidden))
		return
	}

	if err := h.store.RemoveMember(r.Context(), kick.GuildID, kick.AccountID); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// BanMember is a kick that sticks: the ban record blocks every future invite
// join until someone lifts it.
func (h *Handlers) BanMember(w http.ResponseWriter, r *http.Request) {
	type BanMember struct {
		GuildID   int64  `json:"guildID,string" validate:"required"`
		AccountID int64  `json:"accountID,string" validate:"required"`
		Reason    string `json:"reason" validate:"max=256"`
	}

	var ban BanMember
	if !h.decodeBody(w, r, &ban) {
		return
	}

	ownerID, err := h.store.GuildOwnerID(r.Context(), ban.GuildID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if ban.AccountID == ownerID {
		h.httpError(w, fmt.Errorf("%w: the owner can't be banned", apperr.ErrValidation))
		return
	}

	if err := h.requirePermission(r, ban.GuildID, permissions.BanMembers); err != nil {
		h.httpError(w, err)
		return
	}
	canModerate, err := h.perms.CanModerate(r.Context(), accountID(r), ban.AccountID, ban.GuildID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if !canModerate {
		h.httpError(w, fmt.Errorf("%w: target outranks you", apperr.ErrForbidden))
		return
	}

	if err := h.store.BanMember(r.Context(), ban.GuildID, ban.AccountID, accountID(r), ban.Reason); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) UnbanMember(w http.ResponseWriter, r *http.Request) {
	type UnbanMember struct {
		GuildID   int64 `json:"guildID,string" validate:"required"`
		AccountID int64 `json:"accountID,string" validate:"required"`
	}

	var unban UnbanMember
	if !h.decodeBody(w, r, &unban) {
		return
	}

	if err := h.requirePermission(r, unban.GuildID, permissions.BanMembers); err != nil {
		h.httpError(w, err)
		return
	}

	if err := h.store.UnbanMember(r.Context(), unban.GuildID, unban.AccountID); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
