package server

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"sstt-server/internal/sstt"
)

// setupTestStore spins up a throwaway Postgres container and connects a
// GameStore to it.
func setupTestStore(t *testing.T) *GameStore {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed persistence test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("sstt_test"),
		postgres.WithUsername("sstt"),
		postgres.WithPassword("sstt"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	store, err := NewGameStore(ctx, connStr)
	if err != nil {
		t.Fatalf("NewGameStore failed: %v", err)
	}
	t.Cleanup(store.Close)

	return store
}

// finishedTestGame plays a quick normal-mode match to completion: X takes the
// top row.
func finishedTestGame(t *testing.T) *sstt.Game {
	t.Helper()

	game, err := sstt.NewGame(uuid.New().String(), sstt.ModeNormal,
		sstt.Player{UserID: "u1", Username: "alice"},
		sstt.Player{UserID: "u2", Username: "bob"},
	)
	if err != nil {
		t.Fatalf("NewGame failed: %v", err)
	}

	moves := []struct {
		player sstt.Mark
		cell   int
	}{
		{sstt.MarkX, 0}, {sstt.MarkO, 3},
		{sstt.MarkX, 1}, {sstt.MarkO, 4},
		{sstt.MarkX, 2},
	}
	for _, mv := range moves {
		if res := game.ApplyMove(mv.player, sstt.FreeField, mv.cell); !res.Success {
			t.Fatalf("Setup move rejected: %s", res.Message)
		}
	}
	if !game.Finished {
		t.Fatal("Setup game should be finished")
	}
	return game
}

func TestGameStore_SaveAndLoad(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	game := finishedTestGame(t)
	if err := store.SaveFinishedGame(ctx, game, "duel"); err != nil {
		t.Fatalf("SaveFinishedGame failed: %v", err)
	}

	rec, err := store.GetFinishedGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("GetFinishedGame failed: %v", err)
	}

	if rec.GameID != game.ID {
		t.Errorf("GameID mismatch: got %s, want %s", rec.GameID, game.ID)
	}
	if rec.LobbyName != "duel" {
		t.Errorf("LobbyName mismatch: got %s, want duel", rec.LobbyName)
	}
	if rec.Mode != "normal" {
		t.Errorf("Mode mismatch: got %s, want normal", rec.Mode)
	}
	if rec.PlayerX != "u1" || rec.PlayerO != "u2" {
		t.Errorf("Players mismatch: got %s/%s, want u1/u2", rec.PlayerX, rec.PlayerO)
	}
	if rec.Winner == nil || *rec.Winner != "u1" {
		t.Errorf("Winner mismatch: got %v, want u1", rec.Winner)
	}
	if rec.Reason != sstt.ReasonWin {
		t.Errorf("Reason mismatch: got %s, want %s", rec.Reason, sstt.ReasonWin)
	}
	if len(rec.Moves) != 5 {
		t.Errorf("Expected 5 moves, got %d", len(rec.Moves))
	}
	if rec.Moves[4].Cell != 2 {
		t.Errorf("Last move cell mismatch: got %d, want 2", rec.Moves[4].Cell)
	}
}

func TestGameStore_RejectsUnfinished(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	game, _ := sstt.NewGame(uuid.New().String(), sstt.ModeSuper,
		sstt.Player{UserID: "u1", Username: "alice"},
		sstt.Player{UserID: "u2", Username: "bob"},
	)

	err := store.SaveFinishedGame(ctx, game, "duel")
	if err == nil {
		t.Fatal("Expected error persisting an unfinished game, got nil")
	}

	count, err := store.CountFinishedGames(ctx)
	if err != nil {
		t.Fatalf("CountFinishedGames failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 rows, got %d", count)
	}
}

func TestGameStore_DoubleSaveIsNoOp(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	game := finishedTestGame(t)
	if err := store.SaveFinishedGame(ctx, game, "duel"); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := store.SaveFinishedGame(ctx, game, "duel"); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	count, err := store.CountFinishedGames(ctx)
	if err != nil {
		t.Fatalf("CountFinishedGames failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 row after double save, got %d", count)
	}
}

func TestGameStore_ForfeitHasWinner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	game, _ := sstt.NewGame(uuid.New().String(), sstt.ModeSuper,
		sstt.Player{UserID: "u1", Username: "alice"},
		sstt.Player{UserID: "u2", Username: "bob"},
	)
	game.Forfeit(sstt.MarkX)

	if err := store.SaveFinishedGame(ctx, game, "duel"); err != nil {
		t.Fatalf("SaveFinishedGame failed: %v", err)
	}

	rec, err := store.GetFinishedGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("GetFinishedGame failed: %v", err)
	}
	if rec.Reason != sstt.ReasonForfeit {
		t.Errorf("Reason mismatch: got %s, want %s", rec.Reason, sstt.ReasonForfeit)
	}
	if rec.Winner == nil || *rec.Winner != "u2" {
		t.Errorf("Winner mismatch: got %v, want u2", rec.Winner)
	}
	if len(rec.Moves) != 0 {
		t.Errorf("Expected empty move list, got %d", len(rec.Moves))
	}
}

func TestGameStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetFinishedGame(context.Background(), uuid.New().String())
	if err == nil {
		t.Fatal("Expected error for missing game, got nil")
	}
}
