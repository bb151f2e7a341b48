package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/ledger"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/repositories"
	"github.com/gorilla/mux"
)

const (
	defaultGamesLimit = 20
	maxGamesLimit     = 100
)

type StatusProvider interface {
	Status() *types.GameSnapshot
}

type ScoresProvider interface {
	Entries() []ledger.Entry
}

func HandleStatus(game StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, game.Status())
	}
}

func HandleScores(scores ScoresProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, scores.Entries())
	}
}

// HandleListGames lists the most recent games. The repository may be nil
// when history is disabled.
func HandleListGames(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repository == nil {
			http.Error(w, "Game history is disabled", http.StatusNotFound)
			return
		}

		limit := defaultGamesLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxGamesLimit)
		}

		results, err := repository.ListGameResults(r.Context(), limit)
		if err != nil {
			log.Error("failed to list games: %v", err)
			http.Error(w, "Failed to list games", http.StatusInternalServerError)
			return
		}
		writeJSON(w, results)
	}
}

func HandleGetGame(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repository == nil {
			http.Error(w, "Game history is disabled", http.StatusNotFound)
			return
		}

		id := mux.Vars(r)["id"]
		result, err := repository.GetGameResult(r.Context(), id)
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Game not found", http.StatusNotFound)
				return
			}
			log.Error("failed to get game %s: %v", id, err)
			http.Error(w, "Failed to get game", http.StatusInternalServerError)
			return
		}
		writeJSON(w, result)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
