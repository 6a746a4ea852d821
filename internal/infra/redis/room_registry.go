package redis

import (
	"context"
	"sync"
	"time"

	"github.com/jamal-o/guessing-game-server/internal/game"
	"github.com/redis/go-redis/v9"
)

// RoomRegistry is a Redis-aware implementation of game.RoomRegistry.
// Notes:
//   - It still keeps a local in-memory map of games; each game instance is
//     exclusively owned by this process (no cross-process state sharing).
//   - Redis marks room liveness so operators and sibling tooling can see
//     which codes are taken.
type RoomRegistry struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	rooms map[string]*game.Game
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration) *RoomRegistry {
	return &RoomRegistry{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*game.Game),
	}
}

func (r *RoomRegistry) Register(roomID string, g *game.Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[roomID] = g
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(roomID), "1", r.ttl).Err()
}

func (r *RoomRegistry) Get(roomID string) (*game.Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.rooms[roomID]
	return g, ok
}

func (r *RoomRegistry) Exists(roomID string) bool {
	r.mu.RLock()
	_, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return true
	}
	// A code may be claimed by a sibling process; treat its marker as taken.
	taken, err := r.client.Exists(context.Background(), r.key(roomID)).Result()
	return err == nil && taken > 0
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

func (r *RoomRegistry) key(roomID string) string {
	return "room:" + roomID
}
