package store

import (
	"context"
	"fmt"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/models"
)

func (s *Store) CreateRole(ctx context.Context, role models.Role) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO roles (id, guild_id, name, permissions, position, is_default) VALUES(?, ?, ?, ?, ?, ?)",
		role.ID, role.GuildID, role.Name, role.Permissions, role.Position, false)
	return err
}

func (s *Store) RoleByID(ctx context.Context, roleID int64) (models.Role, error) {
	var role models.Role
	err := s.db.QueryRowContext(ctx,
		"SELECT id, guild_id, name, permissions, position, is_default FROM roles WHERE id = ?", roleID).
		Scan(&role.ID, &role.GuildID, &role.Name, &role.Permissions, &role.Position, &role.IsDefault)
	if err != nil {
		return models.Role{}, notFound(err, "role")
	}
	return role, nil
}

// UpdateRole changes a role's name, mask and position. The default role keeps
// its name forever; only its mask may move.
func (s *Store) UpdateRole(ctx context.Context, role models.Role) error {
	current, err := s.RoleByID(ctx, role.ID)
	if err != nil {
		return err
	}
	if current.IsDefault && current.Name != role.Name {
		return fmt.Errorf("%w: the default role cannot be renamed", apperr.ErrValidation)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE roles SET name = ?, permissions = ?, position = ? WHERE id = ?",
		role.Name, role.Permissions, role.Position, role.ID)
	return err
}

// DeleteRole removes the role and strips it from every membership in the
// same transaction, so no membership ever references a dead role.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := s.RoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsDefault {
		return fmt.Errorf("%w: the default role cannot be deleted", apperr.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM membership_roles WHERE role_id = ?", roleID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", roleID); err != nil {
		return err
	}

	return tx.Commit()
}

// AssignRole validates that the role belongs to the same guild as the
// membership before linking them.
func (s *Store) AssignRole(ctx context.Context, guildID int64, accountID int64, roleID int64) error {
	role, err := s.RoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.GuildID != guildID {
		return fmt.Errorf("%w: role belongs to a different guild", apperr.ErrValidation)
	}

	isMember, err := s.IsMember(ctx, guildID, accountID)
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("%w: membership", apperr.ErrNotFound)
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM membership_roles WHERE guild_id = ? AND account_id = ? AND role_id = ?)",
		guildID, accountID, roleID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO membership_roles (guild_id, account_id, role_id) VALUES(?, ?, ?)",
		guildID, accountID, roleID)
	return err
}

func (s *Store) UnassignRole(ctx context.Context, guildID int64, accountID int64, roleID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM membership_roles WHERE guild_id = ? AND account_id = ? AND role_id = ?",
		guildID, accountID, roleID)
	return err
}

// MemberRoles returns the member's explicitly assigned roles. isMember is
// false when there is no membership record at all.
func (s *Store) MemberRoles(ctx context.Context, guildID int64, accountID int64) ([]models.Role, bool, error) {
	isMember, err := s.IsMember(ctx, guildID, accountID)
	if err != nil {
		return nil, false, err
	}
	if !isMember {
		return nil, false, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			roles.id, roles.guild_id, roles.name, roles.permissions, roles.position, roles.is_default
		FROM
			roles
		JOIN
			membership_roles ON membership_roles.role_id = roles.id
		WHERE
			membership_roles.guild_id = ? AND membership_roles.account_id = ?
	`, guildID, accountID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.GuildID, &role.Name, &role.Permissions, &role.Position, &role.IsDefault); err != nil {
			return nil, false, err
		}
		roles = append(roles, role)
	}
	return roles, true, rows.Err()
}

func (s *Store) DefaultRole(ctx context.Context, guildID int64) (models.Role, error) {
	var role models.Role
	err := s.db.QueryRowContext(ctx,
		"SELECT id, guild_id, name, permissions, position, is_default FROM roles WHERE guild_id = ? AND is_default = ?",
		guildID, true).
		Scan(&role.ID, &role.GuildID, &role.Name, &role.Permissions, &role.Position, &role.IsDefault)
	if err != nil {
		return models.Role{}, notFound(err, "default role")
	}
	return role, nil
}

func (s *Store) RolesForGuild(ctx context.Context, guildID int64) ([]models.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, guild_id, name, permissions, position, is_default FROM roles WHERE guild_id = ? ORDER BY position DESC", guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []models.Role = []models.Role{}
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.GuildID, &role.Name, &role.Permissions, &role.Position, &role.IsDefault); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
