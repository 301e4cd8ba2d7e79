package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const createMatchHistory = `
CREATE TABLE IF NOT EXISTS match_history (
	match_id     TEXT PRIMARY KEY,
	player1_id   TEXT NOT NULL,
	player2_id   TEXT NOT NULL,
	winner_id    TEXT,
	tower_health TEXT NOT NULL,
	reason       TEXT NOT NULL,
	match_date   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS match_history_player1 ON match_history (player1_id);
CREATE INDEX IF NOT EXISTS match_history_player2 ON match_history (player2_id);
`

// SQLiteSink stores one row per finished match in a local SQLite file.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open sqlite database %s", path)
	}
	// The driver serializes writers; a single connection avoids SQLITE_BUSY under concurrent match endings.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createMatchHistory); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "failed to create match_history table")
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) PersistMatchResult(ctx context.Context, record Record) error {
	towers, err := json.Marshal(record.TowerHealth)
	if err != nil {
		return eris.Wrap(err, "failed to encode tower health")
	}
	var winner sql.NullString
	if record.WinnerID != "" {
		winner = sql.NullString{String: record.WinnerID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO match_history (match_id, player1_id, player2_id, winner_id, tower_health, reason, match_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.MatchID, record.Player1ID, record.Player2ID, winner, string(towers), record.Reason,
		record.EndedAt.UnixMilli(),
	)
	if err != nil {
		return eris.Wrapf(err, "failed to insert match %s", record.MatchID)
	}
	return nil
}

// PlayerHistory returns a player's finished matches, newest first.
func (s *SQLiteSink) PlayerHistory(ctx context.Context, playerID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT match_id, player1_id, player2_id, winner_id, tower_health, reason, match_date
		 FROM match_history WHERE player1_id = ? OR player2_id = ? ORDER BY match_date DESC`,
		playerID, playerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query match history")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec    Record
			winner sql.NullString
			towers string
			date   int64
		)
		if err := rows.Scan(&rec.MatchID, &rec.Player1ID, &rec.Player2ID, &winner, &towers, &rec.Reason, &date); err != nil {
			return nil, eris.Wrap(err, "failed to scan match history row")
		}
		rec.WinnerID = winner.String
		rec.EndedAt = time.UnixMilli(date).UTC()
		if err := json.Unmarshal([]byte(towers), &rec.TowerHealth); err != nil {
			return nil, eris.Wrap(err, "failed to decode tower health")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "failed to iterate match history")
	}
	return records, nil
}

func (s *SQLiteSink) Close() error {
	return eris.Wrap(s.db.Close(), "failed to close sqlite database")
}
