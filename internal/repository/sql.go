package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

const (
	pollRowID = 1

	tallyQuery = `SELECT item, candidate, COUNT(*) AS votes FROM votes
		GROUP BY item, candidate ORDER BY MIN(id)`
)

var clearStatements = []string{
	"DELETE FROM votes",
	"DELETE FROM voters_log",
	"DELETE FROM vote_context",
	"DELETE FROM current_poll",
}

// SQLRepository stores ballot state in MySQL or SQLite. Writes and reads
// that feed a decision go to the master; best-effort reads use the slave.
type SQLRepository struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
	dialect  Dialect
}

func NewMySQLRepository(cfg config.MySQLConfig) (*SQLRepository, error) {
	masterDB, err := sql.Open("mysql", cfg.Master)
	if err != nil {
		return nil, fmt.Errorf("open master database: %w", err)
	}

	masterDB.SetMaxOpenConns(cfg.MaxOpenConns)
	masterDB.SetMaxIdleConns(cfg.MaxIdleConns)
	masterDB.SetConnMaxLifetime(time.Hour)

	if err = masterDB.Ping(); err != nil {
		masterDB.Close()
		return nil, fmt.Errorf("ping master database: %w", err)
	}

	slaveDB := masterDB
	if cfg.Slave != "" && cfg.Slave != cfg.Master {
		slaveDB, err = sql.Open("mysql", cfg.Slave)
		if err != nil {
			masterDB.Close()
			return nil, fmt.Errorf("open slave database: %w", err)
		}

		slaveDB.SetMaxOpenConns(cfg.MaxOpenConns)
		slaveDB.SetMaxIdleConns(cfg.MaxIdleConns)
		slaveDB.SetConnMaxLifetime(time.Hour)

		if err = slaveDB.Ping(); err != nil {
			logging.Logger.Warnw("slave database unreachable, using master for reads", "error", err)
			slaveDB.Close()
			slaveDB = masterDB
		}
	}

	return NewSQLRepository(masterDB, slaveDB, MySQLDialect), nil
}

// NewSQLiteRepository opens a single-connection SQLite database at path.
func NewSQLiteRepository(path string) (*SQLRepository, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return NewSQLRepository(db, db, SQLiteDialect), nil
}

func NewSQLRepository(masterDB, slaveDB *sql.DB, dialect Dialect) *SQLRepository {
	if slaveDB == nil {
		slaveDB = masterDB
	}
	return &SQLRepository{
		masterDB: masterDB,
		slaveDB:  slaveDB,
		dialect:  dialect,
	}
}

// CreateSchema creates the ballot tables. Safe to call repeatedly.
func (r *SQLRepository) CreateSchema(ctx context.Context) error {
	for _, stmt := range r.dialect.Schema {
		if _, err := r.masterDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s schema: %w", r.dialect.Name, err)
		}
	}
	return nil
}

func clearAll(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range clearStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func (r *SQLRepository) ResetPoll(ctx context.Context, poll model.Poll) error {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := clearAll(ctx, tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear poll state: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO current_poll (id, author, opened_at) VALUES (?, ?, ?)",
		pollRowID, poll.Author, poll.OpenedAt.UnixNano())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert poll: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLRepository) ClosePoll(ctx context.Context) (model.Tally, error) {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	rows, err := tx.QueryContext(ctx, tallyQuery)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("query tally: %w", err)
	}
	tallyRows, err := scanTally(rows)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := clearAll(ctx, tx); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("clear poll state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return model.BuildTally(tallyRows), nil
}

func (r *SQLRepository) CurrentPoll(ctx context.Context) (*model.Poll, error) {
	var author string
	var openedAt int64
	err := r.masterDB.QueryRowContext(ctx,
		"SELECT author, opened_at FROM current_poll WHERE id = ?", pollRowID).
		Scan(&author, &openedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query current poll: %w", err)
	}
	return &model.Poll{Author: author, OpenedAt: time.Unix(0, openedAt)}, nil
}

func (r *SQLRepository) HasVoted(ctx context.Context, voter, item string) (bool, error) {
	var one int
	err := r.masterDB.QueryRowContext(ctx,
		"SELECT 1 FROM voters_log WHERE voter = ? AND item = ?", voter, item).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("query voter log: %w", err)
	}
	return true, nil
}

func (r *SQLRepository) RecordVote(ctx context.Context, vote model.VoteRecord) (bool, error) {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO votes (item, candidate, voter) VALUES (?, ?, ?)",
		vote.Item, vote.Candidate, vote.Voter)
	if err != nil {
		tx.Rollback()
		if r.dialect.IsUniqueErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert vote: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO voters_log (voter, item) VALUES (?, ?)", vote.Voter, vote.Item)
	if err != nil {
		tx.Rollback()
		if r.dialect.IsUniqueErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert voter log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// Tally reads from the slave; it may lag the master.
func (r *SQLRepository) Tally(ctx context.Context) (model.Tally, error) {
	rows, err := r.slaveDB.QueryContext(ctx, tallyQuery)
	if err != nil {
		return nil, fmt.Errorf("query tally: %w", err)
	}
	tallyRows, err := scanTally(rows)
	if err != nil {
		return nil, err
	}
	return model.BuildTally(tallyRows), nil
}

func scanTally(rows *sql.Rows) ([]model.TallyRow, error) {
	defer rows.Close()

	var out []model.TallyRow
	for rows.Next() {
		var row model.TallyRow
		if err := rows.Scan(&row.Item, &row.Candidate, &row.Votes); err != nil {
			return nil, fmt.Errorf("scan tally row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tally rows: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) SaveSelection(ctx context.Context, key model.SelectionKey, candidate string) error {
	if _, err := r.masterDB.ExecContext(ctx, r.dialect.UpsertSelection, key.MessageID, key.Voter, candidate); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

func (r *SQLRepository) GetSelection(ctx context.Context, key model.SelectionKey) (string, bool, error) {
	var candidate string
	err := r.masterDB.QueryRowContext(ctx,
		"SELECT candidate FROM vote_context WHERE post_id = ? AND voter = ?",
		key.MessageID, key.Voter).Scan(&candidate)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query selection: %w", err)
	}
	return candidate, true, nil
}

func (r *SQLRepository) ClearSelections(ctx context.Context) error {
	if _, err := r.masterDB.ExecContext(ctx, "DELETE FROM vote_context"); err != nil {
		return fmt.Errorf("clear selections: %w", err)
	}
	return nil
}

func (r *SQLRepository) Close() error {
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		r.slaveDB.Close()
	}
	if r.masterDB != nil {
		return r.masterDB.Close()
	}
	return nil
}
