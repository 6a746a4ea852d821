package game_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jamal-o/guessing-game-server/internal/domain"
	"github.com/jamal-o/guessing-game-server/internal/game"
)

func TestNewGameInitialState(t *testing.T) {
	gm := domain.NewUser("gm1", "GameMaster")
	g := game.NewGame("room1", gm)

	if g.RoomID() != "room1" {
		t.Fatalf("expected roomID room1, got %s", g.RoomID())
	}
	if g.GameMaster().ID != "gm1" {
		t.Fatalf("expected gm1 as game master, got %s", g.GameMaster().ID)
	}
	if _, active := g.ActiveQuestion(); active {
		t.Fatalf("expected no active question")
	}
	sb := g.Scoreboard()
	if len(sb.Players) != 1 || sb.Players[0].ID != "gm1" {
		t.Fatalf("expected only the creator on the scoreboard, got %+v", sb.Players)
	}
}

func TestAddQuestionValidation(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	q := mustQuestion(t, "What is 2+2?", "4")

	// Room of one: no guessers yet.
	if err := g.AddQuestion(q, "gm1", time.Minute, nil); !errors.Is(err, domain.ErrInsufficientPlayers) {
		t.Fatalf("expected ErrInsufficientPlayers, got %v", err)
	}

	g.AddUser(domain.NewUser("p1", "Player1"))

	if err := g.AddQuestion(q, "p1", time.Minute, nil); !errors.Is(err, domain.ErrNotGameMaster) {
		t.Fatalf("expected ErrNotGameMaster, got %v", err)
	}
	if err := g.AddQuestion(domain.Question{}, "gm1", time.Minute, nil); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected ErrInvalidQuestion, got %v", err)
	}

	if err := g.AddQuestion(q, "gm1", time.Minute, nil); err != nil {
		t.Fatalf("add question: %v", err)
	}
	if err := g.AddQuestion(q, "gm1", time.Minute, nil); !errors.Is(err, domain.ErrQuestionAlreadyActive) {
		t.Fatalf("expected ErrQuestionAlreadyActive, got %v", err)
	}
}

func TestAnswerGradingAndRotation(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	p1 := domain.NewUser("p1", "Player1")
	p2 := domain.NewUser("p2", "Player2")
	g.AddUser(p1)
	g.AddUser(p2)

	if err := g.AddQuestion(mustQuestion(t, "What is 2+2?", "4"), "gm1", time.Minute, nil); err != nil {
		t.Fatalf("add question: %v", err)
	}

	correct, err := g.AnswerQuestion("p1", "5")
	if err != nil || correct {
		t.Fatalf("expected incorrect guess, got correct=%v err=%v", correct, err)
	}
	if p1.QuestionsAttempted != 1 {
		t.Fatalf("expected p1 attempted=1, got %d", p1.QuestionsAttempted)
	}
	if left := g.RemainingGuesses("p1"); left != game.MaxGuesses-1 {
		t.Fatalf("expected %d guesses left, got %d", game.MaxGuesses-1, left)
	}

	correct, err = g.AnswerQuestion("p2", "4")
	if err != nil || !correct {
		t.Fatalf("expected correct guess, got correct=%v err=%v", correct, err)
	}
	if p2.Score != game.ScoreAward || p2.QuestionsCorrect != 1 {
		t.Fatalf("expected p2 score=%d correct=1, got score=%d correct=%d", game.ScoreAward, p2.Score, p2.QuestionsCorrect)
	}
	// Rotation follows join order regardless of who answered: gm1 -> p1.
	if g.GameMaster().ID != "p1" {
		t.Fatalf("expected p1 as new game master, got %s", g.GameMaster().ID)
	}
	if _, active := g.ActiveQuestion(); active {
		t.Fatalf("expected question cleared after correct answer")
	}
	// Ledger cleared with the question.
	if left := g.RemainingGuesses("p1"); left != game.MaxGuesses {
		t.Fatalf("expected fresh ledger, got %d guesses left", left)
	}
}

func TestRotationWrapsToFirstUser(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))
	g.AddUser(domain.NewUser("p2", "Player2"))

	// Rotate gm1 -> p1 -> p2 -> gm1.
	for _, want := range []string{"p1", "p2", "gm1"} {
		if err := g.SkipTurn(g.GameMaster().ID); err != nil {
			t.Fatalf("skip turn: %v", err)
		}
		if g.GameMaster().ID != want {
			t.Fatalf("expected %s as game master, got %s", want, g.GameMaster().ID)
		}
	}
}

func TestSingleUserRotationIsNoop(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))

	if err := g.SkipTurn("gm1"); err != nil {
		t.Fatalf("skip turn: %v", err)
	}
	if g.GameMaster().ID != "gm1" {
		t.Fatalf("expected gm1 to stay game master, got %s", g.GameMaster().ID)
	}
}

func TestRotationWalksAllStatuses(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))
	g.AddUser(domain.NewUser("p2", "Player2"))

	if err := g.UserDisconnected("p1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if err := g.SkipTurn("gm1"); err != nil {
		t.Fatalf("skip turn: %v", err)
	}
	// Disconnected users keep their turn slot.
	if g.GameMaster().ID != "p1" {
		t.Fatalf("expected disconnected p1 as game master, got %s", g.GameMaster().ID)
	}
}

func TestGameMasterCannotGuess(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	if err := g.AddQuestion(mustQuestion(t, "What is 2+2?", "4"), "gm1", time.Minute, nil); err != nil {
		t.Fatalf("add question: %v", err)
	}

	if _, err := g.AnswerQuestion("gm1", "4"); !errors.Is(err, domain.ErrIsGameMaster) {
		t.Fatalf("expected ErrIsGameMaster, got %v", err)
	}
	// State untouched by the rejected call.
	if gm := g.GameMaster(); gm.QuestionsAttempted != 0 || gm.Score != 0 {
		t.Fatalf("expected game master stats unchanged, got %+v", gm)
	}
	if _, active := g.ActiveQuestion(); !active {
		t.Fatalf("expected question still active")
	}
}

func TestMaxGuessesReached(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	p1 := domain.NewUser("p1", "Player1")
	g.AddUser(p1)

	if err := g.AddQuestion(mustQuestion(t, "What is 2+2?", "4"), "gm1", time.Minute, nil); err != nil {
		t.Fatalf("add question: %v", err)
	}

	for i := 0; i < game.MaxGuesses; i++ {
		if correct, err := g.AnswerQuestion("p1", "wrong"); err != nil || correct {
			t.Fatalf("guess %d: correct=%v err=%v", i+1, correct, err)
		}
	}
	if left := g.RemainingGuesses("p1"); left != 0 {
		t.Fatalf("expected 0 guesses left, got %d", left)
	}

	if _, err := g.AnswerQuestion("p1", "4"); !errors.Is(err, domain.ErrMaxGuessesReached) {
		t.Fatalf("expected ErrMaxGuessesReached, got %v", err)
	}
	// Ledger pinned at the cap, attempt counted once per cycle.
	if left := g.RemainingGuesses("p1"); left != 0 {
		t.Fatalf("expected ledger to stay at cap, got %d left", left)
	}
	if p1.QuestionsAttempted != 1 {
		t.Fatalf("expected attempted=1, got %d", p1.QuestionsAttempted)
	}
}

func TestAnswerWithoutActiveQuestion(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	if _, err := g.AnswerQuestion("p1", "4"); !errors.Is(err, domain.ErrNoActiveQuestion) {
		t.Fatalf("expected ErrNoActiveQuestion, got %v", err)
	}
}

func TestUnknownGuesserRejected(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	if err := g.AddQuestion(mustQuestion(t, "What is 2+2?", "4"), "gm1", time.Minute, nil); err != nil {
		t.Fatalf("add question: %v", err)
	}
	if _, err := g.AnswerQuestion("ghost", "4"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestQuestionTimeout(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	fired := make(chan struct{}, 2)
	err := g.AddQuestion(mustQuestion(t, "What is 2+2?", "4"), "gm1", 20*time.Millisecond, func() {
		fired <- struct{}{}
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	if _, _ = g.AnswerQuestion("p1", "nope"); g.RemainingGuesses("p1") != game.MaxGuesses-1 {
		t.Fatalf("expected one guess spent before timeout")
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("timeout callback never fired")
	}

	if _, active := g.ActiveQuestion(); active {
		t.Fatalf("expected question cleared after timeout")
	}
	// Timeout is a no-winner outcome: ledger cleared, game master unchanged.
	if left := g.RemainingGuesses("p1"); left != game.MaxGuesses {
		t.Fatalf("expected ledger cleared, got %d left", left)
	}
	if g.GameMaster().ID != "gm1" {
		t.Fatalf("expected gm1 to stay game master after timeout, got %s", g.GameMaster().ID)
	}

	select {
	case <-fired:
		t.Fatalf("timeout callback fired twice")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestCorrectAnswerCancelsTimer(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	fired := make(chan struct{}, 1)
	err := g.AddQuestion(mustQuestion(t, "What is 2+2?", "4"), "gm1", 30*time.Millisecond, func() {
		fired <- struct{}{}
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}

	if correct, err := g.AnswerQuestion("p1", "4"); err != nil || !correct {
		t.Fatalf("expected correct answer, got correct=%v err=%v", correct, err)
	}

	select {
	case <-fired:
		t.Fatalf("stale timer fired after the question was resolved")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestRearmingCancelsPreviousTimer(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	firstFired := make(chan struct{}, 1)
	if err := g.AddQuestion(mustQuestion(t, "first?", "a"), "gm1", 30*time.Millisecond, func() {
		firstFired <- struct{}{}
	}); err != nil {
		t.Fatalf("add first question: %v", err)
	}
	if correct, err := g.AnswerQuestion("p1", "a"); err != nil || !correct {
		t.Fatalf("resolve first question: correct=%v err=%v", correct, err)
	}

	// New game master poses the next question; the first timer must not fire.
	secondFired := make(chan struct{}, 1)
	if err := g.AddQuestion(mustQuestion(t, "second?", "b"), "p1", 40*time.Millisecond, func() {
		secondFired <- struct{}{}
	}); err != nil {
		t.Fatalf("add second question: %v", err)
	}

	select {
	case <-firstFired:
		t.Fatalf("first timer fired after rearm")
	case <-secondFired:
	case <-time.After(time.Second):
		t.Fatalf("second timer never fired")
	}
}

func TestLeaveIsIdempotentAndKeepsUser(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	p1 := domain.NewUser("p1", "Player1")
	g.AddUser(p1)

	if err := g.UserLeaveRoom("p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := g.UserLeaveRoom("p1"); err != nil {
		t.Fatalf("second leave: %v", err)
	}
	if p1.Status != domain.StatusLeft {
		t.Fatalf("expected status left, got %s", p1.Status)
	}
	// Departed users stay on the scoreboard.
	if sb := g.Scoreboard(); len(sb.Players) != 2 {
		t.Fatalf("expected 2 players on scoreboard, got %d", len(sb.Players))
	}

	if err := g.UserLeaveRoom("ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDepartedGameMasterKeepsRole(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	if err := g.UserLeaveRoom("gm1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	// Departure never auto-advances the game master.
	if g.GameMaster().ID != "gm1" {
		t.Fatalf("expected gm1 to remain game master, got %s", g.GameMaster().ID)
	}
}

func TestAddUserReplacesSameID(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))
	g.AddUser(domain.NewUser("p2", "Player2"))

	// Reconnect with the same id: record replaced, join-order slot kept.
	g.AddUser(domain.NewUser("p1", "Player1Reborn"))

	sb := g.Scoreboard()
	if len(sb.Players) != 3 {
		t.Fatalf("expected 3 players, got %d", len(sb.Players))
	}
	if sb.Players[1].Name != "Player1Reborn" {
		t.Fatalf("expected replacement in the same slot, got %+v", sb.Players[1])
	}
}

func TestSkipTurnRequiresIdleQuestion(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	if err := g.SkipTurn("p1"); !errors.Is(err, domain.ErrNotGameMaster) {
		t.Fatalf("expected ErrNotGameMaster, got %v", err)
	}

	if err := g.AddQuestion(mustQuestion(t, "What is 2+2?", "4"), "gm1", time.Minute, nil); err != nil {
		t.Fatalf("add question: %v", err)
	}
	if err := g.SkipTurn("gm1"); !errors.Is(err, domain.ErrQuestionAlreadyActive) {
		t.Fatalf("expected ErrQuestionAlreadyActive, got %v", err)
	}
}

func TestUpdateUserName(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	if err := g.UpdateUserName("p1", "NewName"); err != nil {
		t.Fatalf("update name: %v", err)
	}
	if g.Scoreboard().Players[1].Name != "NewName" {
		t.Fatalf("expected renamed player")
	}
	if err := g.UpdateUserName("ghost", "NewName"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestStatsAccumulateAcrossQuestions(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	p1 := domain.NewUser("p1", "Player1")
	g.AddUser(p1)

	if err := g.AddQuestion(mustQuestion(t, "Question 1?", "A"), "gm1", time.Minute, nil); err != nil {
		t.Fatalf("add question: %v", err)
	}
	if _, err := g.AnswerQuestion("p1", "A"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// p1 rotated into the game master seat; rotate back so gm1 can't guess
	// their own question again.
	if err := g.SkipTurn("p1"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if err := g.AddQuestion(mustQuestion(t, "Question 2?", "B"), "gm1", time.Minute, nil); err != nil {
		t.Fatalf("add question: %v", err)
	}
	if _, err := g.AnswerQuestion("p1", "wrong"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := g.AnswerQuestion("p1", "B"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	if p1.QuestionsAttempted != 2 || p1.QuestionsCorrect != 2 || p1.Score != 2*game.ScoreAward {
		t.Fatalf("expected attempted=2 correct=2 score=%d, got %+v", 2*game.ScoreAward, p1)
	}
}

func TestScoreboardSnapshotIsDecoupled(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	sb := g.Scoreboard()
	if err := g.UpdateUserName("p1", "Renamed"); err != nil {
		t.Fatalf("update name: %v", err)
	}
	// The snapshot is a copy, not a view of live records.
	if sb.Players[1].Name != "Player1" {
		t.Fatalf("expected snapshot to keep the old name, got %q", sb.Players[1].Name)
	}
	if g.Scoreboard().Players[1].Name != "Renamed" {
		t.Fatalf("expected a fresh snapshot to see the rename")
	}
}

func TestScoreboardSafeToEncodeConcurrently(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))
	g.AddUser(domain.NewUser("p1", "Player1"))

	// Writer goroutines encode scoreboards while handlers mutate user
	// records; the race detector flags any shared record.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if err := g.UpdateUserName("p1", fmt.Sprintf("Name%d", i)); err != nil {
				t.Errorf("update name: %v", err)
				return
			}
		}
	}()
	for i := 0; i < 200; i++ {
		if _, err := json.Marshal(g.Scoreboard()); err != nil {
			t.Fatalf("marshal scoreboard: %v", err)
		}
	}
	<-done
}

func TestPublishReachesSubscribers(t *testing.T) {
	g := game.NewGame("room1", domain.NewUser("gm1", "GameMaster"))

	ch, cancel := g.Subscribe()
	defer cancel()

	g.Publish(game.Event{Type: "chat", Message: "hello", Success: true})

	select {
	case ev := <-ch:
		if ev.Type != "chat" || ev.Message != "hello" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber never received the event")
	}
}

func mustQuestion(t *testing.T, text, answer string) domain.Question {
	t.Helper()
	q, err := domain.NewQuestion(text, answer)
	if err != nil {
		t.Fatalf("new question: %v", err)
	}
	return q
}
