package memory

import (
	"sync"

	"github.com/jamal-o/guessing-game-server/internal/game"
)

// RoomRegistry is an in-memory implementation of game.RoomRegistry.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*game.Game
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*game.Game),
	}
}

func (r *RoomRegistry) Register(roomID string, g *game.Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[roomID] = g
}

func (r *RoomRegistry) Get(roomID string) (*game.Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.rooms[roomID]
	return g, ok
}

func (r *RoomRegistry) Exists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

func (r *RoomRegistry) List() []*game.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	games := make([]*game.Game, 0, len(r.rooms))
	for _, g := range r.rooms {
		games = append(games, g)
	}
	return games
}
