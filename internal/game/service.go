package game

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/jamal-o/guessing-game-server/internal/domain"
)

// RoomRegistry abstracts how rooms are stored (in-memory, Redis-marked, etc).
type RoomRegistry interface {
	Register(roomID string, g *Game)
	Get(roomID string) (*Game, bool)
	Exists(roomID string) bool
	List() []*Game
}

// QuestionBank supplies prepared questions the game master can draw from
// instead of typing their own.
type QuestionBank interface {
	Draw(ctx context.Context, topic string) (domain.Question, error)
}

// roomCodeAttempts bounds collision retries; 4-digit codes collide often
// enough that the registry must be consulted on every draw.
const roomCodeAttempts = 1000

// Service wires game operations to the room registry and question bank.
type Service struct {
	rooms RoomRegistry
	bank  QuestionBank

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewService(rooms RoomRegistry, bank QuestionBank) *Service {
	return &Service{
		rooms: rooms,
		bank:  bank,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateGame allocates a room with the creator as initial game master. Room
// codes are short numeric strings chosen for shareability, not security.
func (s *Service) CreateGame(user *domain.User) (*Game, error) {
	for i := 0; i < roomCodeAttempts; i++ {
		roomID := s.roomCode()
		if s.rooms.Exists(roomID) {
			continue
		}
		g := NewGame(roomID, user)
		s.rooms.Register(roomID, g)
		return g, nil
	}
	return nil, fmt.Errorf("could not allocate a free room code after %d attempts", roomCodeAttempts)
}

// roomCode draws a 4-digit code in [1000, 9999].
func (s *Service) roomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.Itoa(1000 + s.rnd.Intn(9000))
}

// Join adds a user to an existing room.
func (s *Service) Join(roomID string, user *domain.User) (*Game, error) {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	g.AddUser(user)
	return g, nil
}

// AddQuestion poses a question written by the game master.
func (s *Service) AddQuestion(roomID, submitterID, text, answer string, duration time.Duration, onTimeout func()) error {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	q, err := domain.NewQuestion(text, answer)
	if err != nil {
		return err
	}
	return g.AddQuestion(q, submitterID, duration, onTimeout)
}

// DrawQuestion pulls a prepared question from the bank and poses it on the
// game master's behalf. Returns the drawn question so the caller can show
// its text to the room.
func (s *Service) DrawQuestion(ctx context.Context, roomID, submitterID, topic string, duration time.Duration, onTimeout func()) (domain.Question, error) {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.Question{}, domain.ErrRoomNotFound
	}
	q, err := s.bank.Draw(ctx, topic)
	if err != nil {
		return domain.Question{}, err
	}
	if err := g.AddQuestion(q, submitterID, duration, onTimeout); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

// Guess grades an answer and reports the guesses the user has left.
func (s *Service) Guess(roomID, userID, answer string) (bool, int, error) {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return false, 0, domain.ErrRoomNotFound
	}
	correct, err := g.AnswerQuestion(userID, answer)
	if err != nil {
		return false, 0, err
	}
	return correct, g.RemainingGuesses(userID), nil
}

// SkipTurn rotates the game master without a question.
func (s *Service) SkipTurn(roomID, submitterID string) error {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return g.SkipTurn(submitterID)
}

// UpdateUserName renames a participant.
func (s *Service) UpdateUserName(roomID, userID, name string) error {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return g.UpdateUserName(userID, name)
}

// Leave marks a user as having left the room.
func (s *Service) Leave(roomID, userID string) error {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return g.UserLeaveRoom(userID)
}

// Disconnect marks a user as disconnected.
func (s *Service) Disconnect(roomID, userID string) error {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return g.UserDisconnected(userID)
}

// Scoreboard returns the room's scoreboard projection.
func (s *Service) Scoreboard(roomID string) (domain.Scoreboard, error) {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.Scoreboard{}, domain.ErrRoomNotFound
	}
	return g.Scoreboard(), nil
}

// Subscribe attaches to a room's event stream.
func (s *Service) Subscribe(roomID string) (<-chan Event, func(), error) {
	g, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch, cancel := g.Subscribe()
	return ch, cancel, nil
}

// Broadcast publishes an event to every subscriber of a room. Unknown
// rooms are ignored; the event would have nowhere to go.
func (s *Service) Broadcast(roomID string, ev Event) {
	if g, ok := s.rooms.Get(roomID); ok {
		g.Publish(ev)
	}
}

// ActiveRooms lists rooms that still have a connected occupant.
func (s *Service) ActiveRooms() []domain.RoomInfo {
	games := s.rooms.List()
	rooms := make([]domain.RoomInfo, 0, len(games))
	for _, g := range games {
		occupants := g.Occupants()
		if occupants == 0 {
			continue
		}
		rooms = append(rooms, domain.RoomInfo{RoomID: g.RoomID(), Occupants: occupants})
	}
	return rooms
}
