// Package store is the typed client for the durable record store. It is the
// single source of truth for message ordering; everything else (bus,
// ephemeral keys) is rebuildable.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"guildgate-backend/internal/apperr"
)

type Store struct {
	db    *sql.DB
	sugar *zap.SugaredLogger
}

func New(sugar *zap.SugaredLogger, db *sql.DB) *Store {
	return &Store{db: db, sugar: sugar}
}

// notFound maps sql.ErrNoRows onto the shared taxonomy.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
	}
	return fmt.Errorf("%w: %v", apperr.ErrDependency, err)
}
