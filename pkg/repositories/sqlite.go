package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database at path and applies the embedded
// migrations.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	scripts, err := migrationScripts("sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	for i, script := range scripts {
		if _, err := db.ExecContext(ctx, script); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveGameResult(ctx context.Context, result *models.GameResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	q := `
	INSERT OR IGNORE INTO games (id, seq, variant, winner, winner_name, finished_at)
	VALUES (?, ?, ?, ?, ?, ?);
	`
	res, err := tx.ExecContext(ctx, q, result.ID, result.Seq, result.Variant, result.Winner, result.WinnerName, result.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert game: %v", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	for _, p := range result.Players {
		q := `
		INSERT INTO game_players (game_id, slot, name, score, correct, incorrect, rolls, won)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);
		`
		if _, err := tx.ExecContext(ctx, q, result.ID, p.Slot, p.Name, p.Score, p.Correct, p.Incorrect, p.Rolls, p.Won); err != nil {
			return fmt.Errorf("failed to insert player: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) ListGameResults(ctx context.Context, limit int) ([]*models.GameResult, error) {
	q := `
	SELECT id, seq, variant, winner, winner_name, finished_at FROM games
	ORDER BY finished_at DESC, seq DESC LIMIT ?;
	`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %v", err)
	}
	defer rows.Close()

	var results []*models.GameResult
	for rows.Next() {
		result, err := scanSQLiteGame(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read games: %v", err)
	}
	rows.Close()

	for _, result := range results {
		if result.Players, err = r.loadPlayers(ctx, result.ID); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (r *SQLiteRepository) GetGameResult(ctx context.Context, id string) (*models.GameResult, error) {
	q := `
	SELECT id, seq, variant, winner, winner_name, finished_at FROM games WHERE id = ?;
	`
	result, err := scanSQLiteGame(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{ID: id}
		}
		return nil, err
	}
	if result.Players, err = r.loadPlayers(ctx, id); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteGame(row scanner) (*models.GameResult, error) {
	result := &models.GameResult{}
	var finishedAt int64
	if err := row.Scan(&result.ID, &result.Seq, &result.Variant, &result.Winner, &result.WinnerName, &finishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan game: %v", err)
	}
	result.FinishedAt = time.UnixMilli(finishedAt).UTC()
	return result, nil
}

func (r *SQLiteRepository) loadPlayers(ctx context.Context, gameID string) ([]models.PlayerResult, error) {
	q := `
	SELECT slot, name, score, correct, incorrect, rolls, won FROM game_players
	WHERE game_id = ? ORDER BY slot;
	`
	rows, err := r.db.QueryContext(ctx, q, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %v", err)
	}
	defer rows.Close()

	players := []models.PlayerResult{}
	for rows.Next() {
		var p models.PlayerResult
		if err := rows.Scan(&p.Slot, &p.Name, &p.Score, &p.Correct, &p.Incorrect, &p.Rolls, &p.Won); err != nil {
			return nil, fmt.Errorf("failed to scan player: %v", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read players: %v", err)
	}
	return players, nil
}
