package database

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"guildgate-backend/internal/models"
)

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func Setup(cfg *models.ConfigFile) (*sql.DB, error) {
	var db *sql.DB
	var err error

	if cfg.SelfContained {
		db, err = sql.Open("sqlite", "./database.db")
		if err != nil {
			return db, err
		}

		// there can be sqlite busy errors if this is not set to 1
		db.SetMaxOpenConns(1)

		err = setPragmaValues(db)
		if err != nil {
			return db, err
		}
	} else {
		db, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
		if err != nil {
			return db, err
		}

		db.SetMaxOpenConns(10)
	}

	err = SetupTables(db)
	if err != nil {
		return db, err
	}

	return db, nil
}

// SetupTables is exported so store tests can run against an in-memory sqlite.
func SetupTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGINT PRIMARY KEY,
			email VARCHAR(64) NOT NULL UNIQUE,
			username VARCHAR(32) NOT NULL UNIQUE,
			display_name VARCHAR(64) NOT NULL,
			picture TEXT NOT NULL,
			default_status VARCHAR(16) NOT NULL DEFAULT 'online',
			password BINARY(60) NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS guilds (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			name VARCHAR(64) NOT NULL,
			picture TEXT NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES accounts(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS roles (
			id BIGINT PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			name VARCHAR(64) NOT NULL,
			permissions BIGINT NOT NULL,
			position INT NOT NULL,
			is_default BOOLEAN NOT NULL,
			FOREIGN KEY (guild_id) REFERENCES guilds(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS memberships (
			guild_id BIGINT NOT NULL,
			account_id BIGINT NOT NULL,
			nickname VARCHAR(64) NOT NULL DEFAULT '',
			since TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (guild_id, account_id),
			FOREIGN KEY (guild_id) REFERENCES guilds(id) ON DELETE CASCADE,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS membership_roles (
			guild_id BIGINT NOT NULL,
			account_id BIGINT NOT NULL,
			role_id BIGINT NOT NULL,
			PRIMARY KEY (guild_id, account_id, role_id),
			FOREIGN KEY (guild_id, account_id) REFERENCES memberships(guild_id, account_id) ON DELETE CASCADE,
			FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS channels (
			id BIGINT PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			name VARCHAR(32) NOT NULL,
			kind VARCHAR(8) NOT NULL,
			position INT NOT NULL DEFAULT 0,
			FOREIGN KEY (guild_id) REFERENCES guilds(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGINT PRIMARY KEY,
			channel_id BIGINT NOT NULL,
			author_id BIGINT NOT NULL,
			body TEXT NOT NULL,
			attachments TEXT NOT NULL,
			reply_to_id BIGINT,
			pinned BOOLEAN NOT NULL DEFAULT FALSE,
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			edited_at TIMESTAMP NULL,
			preview TEXT,
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
			FOREIGN KEY (author_id) REFERENCES accounts(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS reactions (
			message_id BIGINT NOT NULL,
			account_id BIGINT NOT NULL,
			emoji VARCHAR(32) NOT NULL,
			PRIMARY KEY (message_id, account_id, emoji),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS read_states (
			account_id BIGINT NOT NULL,
			channel_id BIGINT NOT NULL,
			last_read_id BIGINT NOT NULL,
			mention_count INT NOT NULL DEFAULT 0,
			PRIMARY KEY (account_id, channel_id),
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE,
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS bans (
			guild_id BIGINT NOT NULL,
			account_id BIGINT NOT NULL,
			banned_by BIGINT NOT NULL,
			reason VARCHAR(256) NOT NULL DEFAULT '',
			banned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (guild_id, account_id),
			FOREIGN KEY (guild_id) REFERENCES guilds(id) ON DELETE CASCADE,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS invites (
			code VARCHAR(36) PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			creator_id BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (guild_id) REFERENCES guilds(id) ON DELETE CASCADE,
			FOREIGN KEY (creator_id) REFERENCES accounts(id) ON DELETE CASCADE
		);`,
	}

	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}
