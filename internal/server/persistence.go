package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sstt-server/internal/sstt"
)

// GameStore writes completed games to Postgres. In-progress games are never
// persisted; one row per finished match, written once.
type GameStore struct {
	pool *pgxpool.Pool
}

const createFinishedGamesTable = `
	CREATE TABLE IF NOT EXISTS finished_games (
		game_id     uuid PRIMARY KEY,
		lobby_name  text NOT NULL,
		mode        text NOT NULL,
		player_x    text NOT NULL,
		player_o    text NOT NULL,
		winner      text,
		reason      text NOT NULL,
		moves       jsonb NOT NULL,
		started_at  timestamptz NOT NULL,
		finished_at timestamptz NOT NULL
	)
`

// NewGameStore connects to the database and ensures the schema exists.
func NewGameStore(ctx context.Context, databaseURL string) (*GameStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createFinishedGamesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &GameStore{pool: pool}, nil
}

// SaveFinishedGame persists a terminal game. Saving the same game twice is a
// no-op, so retries and races at the terminal transition stay harmless.
func (gs *GameStore) SaveFinishedGame(ctx context.Context, game *sstt.Game, lobbyName string) error {
	if !game.Finished {
		return errors.New("GAME_NOT_FINISHED: Refusing to persist an in-progress game")
	}

	moves, err := json.Marshal(game.Moves)
	if err != nil {
		return fmt.Errorf("failed to serialize moves for game %s: %w", game.ID, err)
	}

	var winner *string
	if wp := game.WinnerPlayer(); wp != nil {
		winner = &wp.UserID
	}

	query := `
		INSERT INTO finished_games
			(game_id, lobby_name, mode, player_x, player_o, winner, reason, moves, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (game_id) DO NOTHING
	`

	_, err = gs.pool.Exec(ctx, query,
		game.ID,
		lobbyName,
		string(game.Mode),
		game.PlayerX.UserID,
		game.PlayerO.UserID,
		winner,
		game.Reason,
		moves,
		game.StartedAt,
		game.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", game.ID, err)
	}

	return nil
}

// FinishedGameRecord is one persisted row, read back for tooling and tests.
type FinishedGameRecord struct {
	GameID     string
	LobbyName  string
	Mode       string
	PlayerX    string
	PlayerO    string
	Winner     *string
	Reason     string
	Moves      []sstt.Move
	StartedAt  time.Time
	FinishedAt time.Time
}

// GetFinishedGame loads a persisted game by id.
func (gs *GameStore) GetFinishedGame(ctx context.Context, gameID string) (*FinishedGameRecord, error) {
	query := `
		SELECT game_id, lobby_name, mode, player_x, player_o, winner, reason, moves, started_at, finished_at
		FROM finished_games WHERE game_id = $1
	`

	var rec FinishedGameRecord
	var moves []byte
	err := gs.pool.QueryRow(ctx, query, gameID).Scan(
		&rec.GameID,
		&rec.LobbyName,
		&rec.Mode,
		&rec.PlayerX,
		&rec.PlayerO,
		&rec.Winner,
		&rec.Reason,
		&moves,
		&rec.StartedAt,
		&rec.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game not found: %s", gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %s: %w", gameID, err)
	}

	if err := json.Unmarshal(moves, &rec.Moves); err != nil {
		return nil, fmt.Errorf("failed to deserialize moves for game %s: %w", gameID, err)
	}

	return &rec, nil
}

// CountFinishedGames returns the number of persisted games.
func (gs *GameStore) CountFinishedGames(ctx context.Context) (int, error) {
	var count int
	if err := gs.pool.QueryRow(ctx, `SELECT count(*) FROM finished_games`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count games: %w", err)
	}
	return count, nil
}

func (gs *GameStore) Close() {
	gs.pool.Close()
}

var _ FinishedGameStore = (*GameStore)(nil)
