package handlers

import (
	"fmt"
	"net/http"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/permissions"
)

func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	type CreateRole struct {
		GuildID     int64  `json:"guildID,string" validate:"required"`
		Name        string `json:"name" validate:"required,max=64"`
		Permissions uint64 `json:"permissions,string"`
		Position    int    `json:"position"`
	}

	var create CreateRole
	if !h.decodeBody(w, r, &create) {
		return
	}
	if err := h.validate.Struct(create); err != nil {
		h.httpError(w, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	if err := h.requirePermission(r, create.GuildID, permissions.ManageRoles); err != nil {
		h.httpError(w, err)
		return
	}

	roleID, err := h.generator.Generate()
	if err != nil {
		h.httpError(w, err)
		return
	}

	role := models.Role{
		ID:          roleID,
		GuildID:     create.GuildID,
		Name:        create.Name,
		Permissions: create.Permissions,
		Position:    create.Position,
	}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		h.httpError(w, err)
		return
	}

	h.writeJSON(w, role)
}

func (h *Handlers) GetRoleList(w http.ResponseWriter, r *http.Request) {
	guildID, err := parseID(r, "guildID")
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.requireMember(r, guildID); err != nil {
		h.httpError(w, err)
		return
	}

	roles, err := h.store.RolesForGuild(r.Context(), guildID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	h.writeJSON(w, roles)
}

func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	type UpdateRole struct {
		RoleID      int64  `json:"roleID,string" validate:"required"`
		Name        string `json:"name" validate:"required,max=64"`
		Permissions uint64 `json:"permissions,string"`
		Position    int    `json:"position"`
	}

	var update UpdateRole
	if !h.decodeBody(w, r, &update) {
		return
	}
	if err := h.validate.Struct(update); err != nil {
		h.httpError(w, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	role, err := h.store.RoleByID(r.Context(), update.RoleID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.requirePermission(r, role.GuildID, permissions.ManageRoles); err != nil {
		h.httpError(w, err)
		return
	}

	role.Name = update.Name
	role.Permissions = update.Permissions
	role.Position = update.Position
	if err := h.store.UpdateRole(r.Context(), role); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	type DeleteRole struct {
		RoleID int64 `json:"roleID,string" validate:"required"`
	}

	var del DeleteRole
	if !h.decodeBody(w, r, &del) {
		return
	}

	role, err := h.store.RoleByID(r.Context(), del.RoleID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err := h.requirePermission(r, role.GuildID, permissions.ManageRoles); err != nil {
		h.httpError(w, err)
		return
	}

	if err := h.store.DeleteRole(r.Context(), del.RoleID); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	type AssignRole struct {
		GuildID   int64 `json:"guildID,string" validate:"required"`
		AccountID int64 `json:"accountID,string" validate:"required"`
		RoleID    int64 `json:"roleID,string" validate:"required"`
	}

	var assign AssignRole
	if !h.decodeBody(w, r, &assign) {
		return
	}
	if err := h.validate.Struct(assign); err != nil {
		h.httpError(w, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	if err := h.requirePermission(r, assign.GuildID, permissions.ManageRoles); err != nil {
		h.httpError(w, err)
		return
	}

	// role hierarchy: nobody hands out roles above their own reach
	canModerate, err := h.perms.CanModerate(r.Context(), accountID(r), assign.AccountID, assign.GuildID)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if !canModerate {
		h.httpError(w, fmt.Errorf("%w: target outranks you", apperr.ErrForbidden))
		return
	}

	if err := h.store.AssignRole(r.Context(), assign.GuildID, assign.AccountID, assign.RoleID); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) UnassignRole(w http.ResponseWriter, r *http.Request) {
	type UnassignRole struct {
		GuildID   int64 `json:"guildID,string" validate:"required"`
		AccountID int64 `json:"accountID,string" validate:"required"`
		RoleID    int64 `json:"roleID,string" validate:"required"`
	}

	var unassign UnassignRole
	if !h.decodeBody(w, r, &unassign) {
		return
	}

	if err := h.requirePermission(r, unassign.GuildID, permissions.ManageRoles); err != nil {
		h.httpError(w, err)
		return
	}

	if err := h.store.UnassignRole(r.Context(), unassign.GuildID, unassign.AccountID, unassign.RoleID); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
