package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/permissions"
)

func parseID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s must be a numeric id", apperr.ErrValidation, name)
	}
	return id, nil
}

// requireOwner gates the destructive guild operations.
func (h *Handlers) requireOwner(r *http.Request, guildID int64) error {
	ownerID, err := h.store.GuildOwnerID(r.Context(), guildID)
	if err != nil {
		return err
	}
	if ownerID == 0 {
		return fmt.Errorf("%w: guild %d", apperr.ErrNotFound, guildID)
	}
	if ownerID != accountID(r) {
		return fmt.Errorf("%w: not the guild owner", apperr.ErrForbidden)
	}
	return nil
}

func (h *Handlers) requirePermission(r *http.Request, guildID int64, required permissions.Permission) error {
	allowed, err := h.perms.Authorize(r.Context(), accountID(r), guildID, required)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: missing %s in guild %d", apperr.ErrForbidden, required, guildID)
	}
	return nil
}

func (h *Handlers) requireMember(r *http.Request, guildID int64) error {
	isMember, err := h.store.IsMember(r.Context(), guildID, accountID(r))
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("%w: not a member of guild %d", apperr.ErrForbidden, guildID)
	}
	return nil
}
