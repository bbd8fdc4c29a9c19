package store

import (
	"context"
	"database/sql"
	"errors"

	"guildgate-backend/internal/models"
)

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (id, email, username, display_name, picture, default_status, password) VALUES(?, ?, ?, ?, ?, ?, ?)",
		account.ID, account.Email, account.UserName, account.DisplayName, account.Picture, account.DefaultStatus, account.Password)
	return err
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	var account models.Account
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, username, display_name, picture, default_status, password FROM accounts WHERE email = ?", email).
		Scan(&account.ID, &account.Email, &account.UserName, &account.DisplayName, &account.Picture, &account.DefaultStatus, &account.Password)
	if err != nil {
		return models.Account{}, notFound(err, "account")
	}
	return account, nil
}

func (s *Store) AccountByID(ctx context.Context, accountID int64) (models.Account, error) {
	var account models.Account
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, display_name, picture, default_status FROM accounts WHERE id = ?", accountID).
		Scan(&account.ID, &account.UserName, &account.DisplayName, &account.Picture, &account.DefaultStatus)
	if err != nil {
		return models.Account{}, notFound(err, "account")
	}
	return account, nil
}

func (s *Store) AccountExists(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = ?)", accountID).Scan(&exists)
	return exists, err
}

func (s *Store) UpdateAccount(ctx context.Context, accountID int64, displayName string, picture string, defaultStatus string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET display_name = ?, picture = ?, default_status = ? WHERE id = ?",
		displayName, picture, defaultStatus, accountID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound(sql.ErrNoRows, "account")
	}
	return nil
}

// DefaultStatus returns the persisted presence default for an account,
// falling back to online for unknown accounts.
func (s *Store) DefaultStatus(ctx context.Context, accountID int64) string {
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT default_status FROM accounts WHERE id = ?", accountID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) || status == "" {
		return "online"
	}
	if err != nil {
		s.sugar.Error(err)
		return "online"
	}
	return status
}
