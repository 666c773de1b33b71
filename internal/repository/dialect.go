package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect holds the statements that differ between SQL backends.
type Dialect struct {
	Name            string
	Schema          []string
	UpsertSelection string
	IsUniqueErr     func(error) bool
}

var MySQLDialect = Dialect{
	Name: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS votes (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			item VARCHAR(255) NOT NULL,
			candidate VARCHAR(255) NOT NULL,
			voter VARCHAR(255) NOT NULL,
			UNIQUE KEY uk_votes_item_voter (item, voter)
		)`,
		`CREATE TABLE IF NOT EXISTS voters_log (
			voter VARCHAR(255) NOT NULL,
			item VARCHAR(255) NOT NULL,
			PRIMARY KEY (voter, item)
		)`,
		`CREATE TABLE IF NOT EXISTS current_poll (
			id TINYINT PRIMARY KEY,
			author VARCHAR(255) NOT NULL,
			opened_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vote_context (
			post_id VARCHAR(255) NOT NULL,
			voter VARCHAR(255) NOT NULL,
			candidate VARCHAR(255) NOT NULL,
			PRIMARY KEY (post_id, voter)
		)`,
	},
	UpsertSelection: `INSERT INTO vote_context (post_id, voter, candidate) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE candidate = VALUES(candidate)`,
	IsUniqueErr: func(err error) bool {
		var me *mysql.MySQLError
		return errors.As(err, &me) && me.Number == 1062
	},
}

var SQLiteDialect = Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS votes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item TEXT NOT NULL,
			candidate TEXT NOT NULL,
			voter TEXT NOT NULL,
			UNIQUE (item, voter)
		)`,
		`CREATE TABLE IF NOT EXISTS voters_log (
			voter TEXT NOT NULL,
			item TEXT NOT NULL,
			PRIMARY KEY (voter, item)
		)`,
		`CREATE TABLE IF NOT EXISTS current_poll (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			author TEXT NOT NULL,
			opened_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vote_context (
			post_id TEXT NOT NULL,
			voter TEXT NOT NULL,
			candidate TEXT NOT NULL,
			PRIMARY KEY (post_id, voter)
		)`,
	},
	UpsertSelection: `INSERT INTO vote_context (post_id, voter, candidate) VALUES (?, ?, ?)
		ON CONFLICT (post_id, voter) DO UPDATE SET candidate = excluded.candidate`,
	IsUniqueErr: func(err error) bool {
		var se *sqlite.Error
		if !errors.As(err, &se) {
			return false
		}
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	},
}
