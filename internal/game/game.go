package game

import (
	"sync"
	"time"

	"github.com/jamal-o/guessing-game-server/internal/domain"
)

const (
	// MaxGuesses bounds incorrect attempts per user per question cycle.
	MaxGuesses = 3
	// ScoreAward is granted for a correct answer.
	ScoreAward = 10
	// DefaultQuestionDuration is used when the game master gives no duration.
	DefaultQuestionDuration = 60 * time.Second
)

// Event is a room-scoped notice fanned out to subscribers. It carries the
// uniform {message, success, data} envelope plus a type tag.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Success bool   `json:"success"`
	Data    any    `json:"data"`
}

// Game is the per-room aggregate: the user set in join order, the rotating
// game master, the single active question with its timer, and the per-cycle
// guess ledger. The mutex exists for the timer callback, which is the only
// entry point that runs concurrently with event handling.
type Game struct {
	mu         sync.Mutex
	roomID     string
	users      map[string]*domain.User
	order      []string
	gameMaster string
	question   *domain.Question
	guesses    map[string]int
	timer      *time.Timer
	timerSeq   uint64

	subscribers map[chan Event]struct{}
}

// NewGame creates a room with its initial user as game master.
func NewGame(roomID string, initial *domain.User) *Game {
	return &Game{
		roomID:      roomID,
		users:       map[string]*domain.User{initial.ID: initial},
		order:       []string{initial.ID},
		gameMaster:  initial.ID,
		guesses:     make(map[string]int),
		subscribers: make(map[chan Event]struct{}),
	}
}

// RoomID returns the room code this game is registered under.
func (g *Game) RoomID() string {
	return g.roomID
}

// AddUser inserts a user keyed by id. An existing id is replaced in place,
// keeping its join-order slot; reconnecting clients reuse their id.
func (g *Game) AddUser(u *domain.User) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.users[u.ID]; !ok {
		g.order = append(g.order, u.ID)
	}
	g.users[u.ID] = u
}

// UserLeaveRoom marks a user as having left. The record stays in the room.
func (g *Game) UserLeaveRoom(id string) error {
	return g.setStatus(id, domain.StatusLeft)
}

// UserDisconnected marks a user as disconnected. The record stays in the room.
func (g *Game) UserDisconnected(id string) error {
	return g.setStatus(id, domain.StatusDisconnected)
}

func (g *Game) setStatus(id string, status domain.UserStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	user, ok := g.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Status = status
	return nil
}

// UpdateUserName renames a user in place.
func (g *Game) UpdateUserName(id, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	user, ok := g.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Name = name
	return nil
}

// AddQuestion arms a question posed by the game master. A deferred timer
// fires onTimeout after duration unless a correct answer resolves the
// question first. A timeout is a no-winner outcome: the game master does
// not rotate. Validation happens before any mutation, so a failed call
// leaves the game unchanged.
func (g *Game) AddQuestion(q domain.Question, submitterID string, duration time.Duration, onTimeout func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if submitterID != g.gameMaster {
		return domain.ErrNotGameMaster
	}
	if g.question != nil {
		return domain.ErrQuestionAlreadyActive
	}
	if q.Text == "" || q.Answer == "" {
		return domain.ErrInvalidQuestion
	}
	if len(g.users) < 2 {
		return domain.ErrInsufficientPlayers
	}

	if duration <= 0 {
		duration = DefaultQuestionDuration
	}

	stored := q
	g.question = &stored
	g.guesses = make(map[string]int)

	// Never two live timers for one room: cancel before rearming. The
	// sequence number invalidates a callback that already fired but has
	// not taken the lock yet.
	g.cancelTimerLocked()
	seq := g.timerSeq
	g.timer = time.AfterFunc(duration, func() {
		g.questionTimedOut(seq, onTimeout)
	})
	return nil
}

func (g *Game) questionTimedOut(seq uint64, onTimeout func()) {
	g.mu.Lock()
	if seq != g.timerSeq || g.question == nil {
		g.mu.Unlock()
		return
	}
	g.question = nil
	g.timer = nil
	g.guesses = make(map[string]int)
	g.mu.Unlock()

	if onTimeout != nil {
		onTimeout()
	}
}

// cancelTimerLocked stops any pending timer and invalidates in-flight fires.
func (g *Game) cancelTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.timerSeq++
}

// AnswerQuestion grades a guess against the active question. A correct
// answer awards the score, resolves the question, cancels the timer and
// rotates the game master; an incorrect one burns a ledger entry.
func (g *Game) AnswerQuestion(userID, answer string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.question == nil {
		return false, domain.ErrNoActiveQuestion
	}
	if userID == g.gameMaster {
		return false, domain.ErrIsGameMaster
	}
	user, ok := g.users[userID]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	if g.guesses[userID] >= MaxGuesses {
		return false, domain.ErrMaxGuessesReached
	}

	if _, seen := g.guesses[userID]; !seen {
		user.QuestionsAttempted++
		g.guesses[userID] = 0
	}

	if !g.question.IsCorrectAnswer(answer) {
		g.guesses[userID]++
		return false, nil
	}

	user.Score += ScoreAward
	user.QuestionsCorrect++
	g.cancelTimerLocked()
	g.question = nil
	g.guesses = make(map[string]int)
	g.rotateGameMasterLocked()
	return true, nil
}

// SkipTurn lets the game master pass without posing a question.
func (g *Game) SkipTurn(submitterID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if submitterID != g.gameMaster {
		return domain.ErrNotGameMaster
	}
	if g.question != nil {
		return domain.ErrQuestionAlreadyActive
	}
	g.rotateGameMasterLocked()
	return nil
}

// rotateGameMasterLocked advances to the next user in join order, wrapping
// from last to first. Rotation walks all users regardless of status. A
// single-member room keeps its game master.
func (g *Game) rotateGameMasterLocked() {
	current := 0
	for i, id := range g.order {
		if id == g.gameMaster {
			current = i
			break
		}
	}
	g.gameMaster = g.order[(current+1)%len(g.order)]
}

// GameMaster returns a copy of the current game master record.
func (g *Game) GameMaster() domain.User {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.users[g.gameMaster]
}

// ActiveQuestion returns the live question, if any.
func (g *Game) ActiveQuestion() (domain.Question, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.question == nil {
		return domain.Question{}, false
	}
	return *g.question, true
}

// RemainingGuesses reports how many attempts a user has left this cycle.
func (g *Game) RemainingGuesses(userID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	left := MaxGuesses - g.guesses[userID]
	if left < 0 {
		return 0
	}
	return left
}

// Scoreboard snapshots the game master and all users in join order. Copies
// are taken under the lock; the writer goroutines that encode scoreboards
// must never see a user record another handler is mutating.
func (g *Game) Scoreboard() domain.Scoreboard {
	g.mu.Lock()
	defer g.mu.Unlock()

	players := make([]domain.User, 0, len(g.order))
	for _, id := range g.order {
		players = append(players, *g.users[id])
	}
	return domain.Scoreboard{
		GameMaster: *g.users[g.gameMaster],
		Players:    players,
	}
}

// Occupants counts users still connected to the room.
func (g *Game) Occupants() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for _, user := range g.users {
		if user.Status == domain.StatusOnline {
			count++
		}
	}
	return count
}

// Subscribe returns a channel receiving room-wide events. The caller must
// invoke the returned cancel function to avoid leaks.
func (g *Game) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	g.mu.Lock()
	g.subscribers[ch] = struct{}{}
	g.mu.Unlock()

	cancel := func() {
		g.mu.Lock()
		if _, ok := g.subscribers[ch]; ok {
			delete(g.subscribers, ch)
			close(ch)
		}
		g.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans an event out to every subscriber. A full subscriber drops
// its oldest pending event so a slow client cannot block the room.
func (g *Game) Publish(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for ch := range g.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
