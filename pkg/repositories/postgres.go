package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to connStr and applies the embedded
// migrations. The caller is responsible for calling Close() on the
// repository.
func NewPostgresRepository(ctx context.Context, connStr string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = pool.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to query database: %v", err)
	}
	log.Info("Connected to %s as %s", database, username)

	scripts, err := migrationScripts("postgres")
	if err != nil {
		pool.Close()
		return nil, err
	}
	for i, script := range scripts {
		if _, err := pool.Exec(ctx, script); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) SaveGameResult(ctx context.Context, result *models.GameResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	q := `
	INSERT INTO games (id, seq, variant, winner, winner_name, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING;
	`
	tag, err := tx.Exec(ctx, q, result.ID, int64(result.Seq), result.Variant, result.Winner, result.WinnerName, result.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert game: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range result.Players {
		batch.Queue(`
		INSERT INTO game_players (game_id, slot, name, score, correct, incorrect, rolls, won)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
		`, result.ID, p.Slot, p.Name, p.Score, p.Correct, p.Incorrect, p.Rolls, p.Won)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert players: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (r *PostgresRepository) ListGameResults(ctx context.Context, limit int) ([]*models.GameResult, error) {
	rows, err := r.pool.Query(ctx, `
	SELECT id, seq, variant, winner, winner_name, finished_at FROM games
	ORDER BY finished_at DESC, seq DESC LIMIT $1;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %v", err)
	}
	results, err := pgx.CollectRows(rows, scanPostgresGame)
	if err != nil {
		return nil, fmt.Errorf("failed to scan games: %v", err)
	}

	for _, result := range results {
		if result.Players, err = r.loadPlayers(ctx, result.ID); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (r *PostgresRepository) GetGameResult(ctx context.Context, id string) (*models.GameResult, error) {
	rows, err := r.pool.Query(ctx, `
	SELECT id, seq, variant, winner, winner_name, finished_at FROM games WHERE id = $1;
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query game: %v", err)
	}
	result, err := pgx.CollectExactlyOneRow(rows, scanPostgresGame)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{ID: id}
		}
		return nil, fmt.Errorf("failed to scan game: %v", err)
	}
	if result.Players, err = r.loadPlayers(ctx, id); err != nil {
		return nil, err
	}
	return result, nil
}

func scanPostgresGame(row pgx.CollectableRow) (*models.GameResult, error) {
	result := &models.GameResult{}
	var seq int64
	if err := row.Scan(&result.ID, &seq, &result.Variant, &result.Winner, &result.WinnerName, &result.FinishedAt); err != nil {
		return nil, err
	}
	result.Seq = uint64(seq)
	return result, nil
}

func (r *PostgresRepository) loadPlayers(ctx context.Context, gameID string) ([]models.PlayerResult, error) {
	rows, err := r.pool.Query(ctx, `
	SELECT slot, name, score, correct, incorrect, rolls, won FROM game_players
	WHERE game_id = $1 ORDER BY slot;
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %v", err)
	}
	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PlayerResult, error) {
		var p models.PlayerResult
		err := row.Scan(&p.Slot, &p.Name, &p.Score, &p.Correct, &p.Incorrect, &p.Rolls, &p.Won)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan players: %v", err)
	}
	return players, nil
}
