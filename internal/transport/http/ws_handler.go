package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jamal-o/guessing-game-server/internal/domain"
	"github.com/jamal-o/guessing-game-server/internal/game"
	"golang.org/x/time/rate"
)

// Inbound event names. One Game operation per event.
const (
	EventCreateGame   = "create_game"
	EventJoinRoom     = "join_room"
	EventAddQuestion  = "add_question"
	EventDrawQuestion = "draw_question"
	EventPlayerGuess  = "player_guess"
	EventSkipTurn     = "skip_turn"
	EventUpdateName   = "update_name"
	EventExitRoom     = "exit_room"
	EventChat         = "chat"
)

// Outbound event names.
const (
	EventGameCreated     = "game_created"
	EventJoined          = "joined"
	EventActiveRooms     = "active_rooms"
	EventScoreboard      = "scoreboard"
	EventNewQuestion     = "new_question"
	EventActiveQuestion  = "active_question"
	EventQuestionTimeout = "question_timeout"
	EventWinner          = "winner"
	EventGuessResult     = "guess_result"
	EventUserLeft        = "user_left"
	EventError           = "error"
)

// WSHandler upgrades HTTP requests to websockets and routes inbound events
// into Game operations, and Game outcomes into room broadcasts.
type WSHandler struct {
	service         *game.Service
	upgrader        websocket.Upgrader
	defaultDuration time.Duration
}

func NewWSHandler(service *game.Service, defaultDuration time.Duration) *WSHandler {
	if defaultDuration <= 0 {
		defaultDuration = game.DefaultQuestionDuration
	}
	return &WSHandler{
		service:         service,
		defaultDuration: defaultDuration,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createGamePayload struct {
	Username string `json:"username"`
}

type joinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type questionPayload struct {
	Text   string `json:"text"`
	Answer string `json:"answer"`
}

type addQuestionPayload struct {
	RoomID   string          `json:"roomId"`
	Question questionPayload `json:"question"`
	Duration int             `json:"duration"`
}

type drawQuestionPayload struct {
	RoomID   string `json:"roomId"`
	Topic    string `json:"topic"`
	Duration int    `json:"duration"`
}

type guessPayload struct {
	RoomID string `json:"roomId"`
	Answer string `json:"answer"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type updateNamePayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type chatPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type joinedData struct {
	RoomID     string            `json:"roomId"`
	UserID     string            `json:"userId"`
	Scoreboard domain.Scoreboard `json:"scoreboard"`
	Question   *string           `json:"question"`
}

type questionNotice struct {
	Text     string `json:"text"`
	Duration int    `json:"duration"`
}

type guessResultData struct {
	Correct   bool `json:"correct"`
	Remaining int  `json:"remaining"`
}

type winnerData struct {
	Winner     domain.User       `json:"winner"`
	Answer     string            `json:"answer"`
	Scoreboard domain.Scoreboard `json:"scoreboard"`
}

// session holds per-connection routing state. A connection participates in
// at most one room at a time.
type session struct {
	userID      string
	roomID      string
	unsubscribe func()
	pumps       sync.WaitGroup
}

// ServeWS runs the read loop for one client connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess := &session{userID: uuid.NewString()}
	limiter := rate.NewLimiter(rate.Limit(20), 40)

	send := make(chan game.Event, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for ev := range send {
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Surface joinable rooms to the fresh client.
	send <- game.Event{
		Type:    EventActiveRooms,
		Message: "active rooms",
		Success: true,
		Data:    h.service.ActiveRooms(),
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !limiter.Allow() {
			send <- errorEvent("too many messages, slow down")
			continue
		}
		h.dispatch(sess, send, closeSignals, inbound)
	}

	if sess.roomID != "" {
		_ = h.service.Disconnect(sess.roomID, sess.userID)
		h.broadcastDeparture(sess.roomID, sess.userID, "disconnected")
	}
	if sess.unsubscribe != nil {
		sess.unsubscribe()
	}
	// Pumps must drain before send closes or they could write to a closed
	// channel.
	close(closeSignals)
	sess.pumps.Wait()
	close(send)
	<-writerDone
}

// dispatch routes one inbound event. Domain errors and malformed payloads
// are reported to the sender only, never room-wide.
func (h *WSHandler) dispatch(sess *session, send chan game.Event, closeSignals chan struct{}, inbound inboundMessage) {
	switch inbound.Type {
	case EventCreateGame:
		h.handleCreateGame(sess, send, closeSignals, inbound.Payload)
	case EventJoinRoom:
		h.handleJoinRoom(sess, send, closeSignals, inbound.Payload)
	case EventAddQuestion:
		h.handleAddQuestion(sess, send, inbound.Payload)
	case EventDrawQuestion:
		h.handleDrawQuestion(sess, send, inbound.Payload)
	case EventPlayerGuess:
		h.handleGuess(sess, send, inbound.Payload)
	case EventSkipTurn:
		h.handleSkipTurn(sess, send, inbound.Payload)
	case EventUpdateName:
		h.handleUpdateName(sess, send, inbound.Payload)
	case EventExitRoom:
		h.handleExitRoom(sess, send, inbound.Payload)
	case EventChat:
		h.handleChat(sess, send, inbound.Payload)
	default:
		send <- errorEvent("unsupported message type")
	}
}

func (h *WSHandler) handleCreateGame(sess *session, send chan game.Event, closeSignals chan struct{}, raw json.RawMessage) {
	var payload createGamePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Username == "" {
		send <- errorEvent("invalid create_game payload")
		return
	}
	if sess.roomID != "" {
		send <- errorEvent("already in a room")
		return
	}

	g, err := h.service.CreateGame(domain.NewUser(sess.userID, payload.Username))
	if err != nil {
		send <- errorEvent(err.Error())
		return
	}
	sess.roomID = g.RoomID()
	h.subscribe(sess, send, closeSignals)

	send <- game.Event{
		Type:    EventGameCreated,
		Message: "game created",
		Success: true,
		Data:    map[string]string{"roomId": g.RoomID(), "userId": sess.userID},
	}
}

func (h *WSHandler) handleJoinRoom(sess *session, send chan game.Event, closeSignals chan struct{}, raw json.RawMessage) {
	var payload joinRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Username == "" {
		send <- errorEvent("invalid join_room payload")
		return
	}
	if sess.roomID != "" {
		send <- errorEvent("already in a room")
		return
	}

	g, err := h.service.Join(payload.RoomID, domain.NewUser(sess.userID, payload.Username))
	if err != nil {
		send <- game.Event{Type: EventJoined, Message: err.Error(), Success: false}
		return
	}
	sess.roomID = payload.RoomID
	h.subscribe(sess, send, closeSignals)

	var questionText *string
	if q, active := g.ActiveQuestion(); active {
		questionText = &q.Text
	}
	send <- game.Event{
		Type:    EventJoined,
		Message: "joined room",
		Success: true,
		Data: joinedData{
			RoomID:     payload.RoomID,
			UserID:     sess.userID,
			Scoreboard: g.Scoreboard(),
			Question:   questionText,
		},
	}

	h.broadcastScoreboard(sess.roomID)
	if questionText != nil {
		h.service.Broadcast(sess.roomID, game.Event{
			Type:    EventActiveQuestion,
			Message: "a question is in play",
			Success: true,
			Data:    questionNotice{Text: *questionText},
		})
	}
}

func (h *WSHandler) handleAddQuestion(sess *session, send chan game.Event, raw json.RawMessage) {
	var payload addQuestionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		send <- errorEvent("invalid add_question payload")
		return
	}
	roomID := h.roomFor(sess, payload.RoomID)
	duration := h.questionDuration(payload.Duration)

	err := h.service.AddQuestion(roomID, sess.userID, payload.Question.Text, payload.Question.Answer, duration, h.timeoutNotice(roomID))
	if err != nil {
		send <- errorEvent(err.Error())
		return
	}
	h.service.Broadcast(roomID, game.Event{
		Type:    EventNewQuestion,
		Message: "new question",
		Success: true,
		Data:    questionNotice{Text: payload.Question.Text, Duration: int(duration.Seconds())},
	})
}

func (h *WSHandler) handleDrawQuestion(sess *session, send chan game.Event, raw json.RawMessage) {
	var payload drawQuestionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		send <- errorEvent("invalid draw_question payload")
		return
	}
	roomID := h.roomFor(sess, payload.RoomID)
	duration := h.questionDuration(payload.Duration)

	q, err := h.service.DrawQuestion(context.Background(), roomID, sess.userID, payload.Topic, duration, h.timeoutNotice(roomID))
	if err != nil {
		send <- errorEvent(err.Error())
		return
	}
	h.service.Broadcast(roomID, game.Event{
		Type:    EventNewQuestion,
		Message: "new question",
		Success: true,
		Data:    questionNotice{Text: q.Text, Duration: int(duration.Seconds())},
	})
}

func (h *WSHandler) handleGuess(sess *session, send chan game.Event, raw json.RawMessage) {
	var payload guessPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		send <- errorEvent("invalid player_guess payload")
		return
	}
	roomID := h.roomFor(sess, payload.RoomID)

	correct, remaining, err := h.service.Guess(roomID, sess.userID, payload.Answer)
	if err != nil {
		send <- errorEvent(err.Error())
		return
	}
	if !correct {
		send <- game.Event{
			Type:    EventGuessResult,
			Message: "incorrect",
			Success: true,
			Data:    guessResultData{Correct: false, Remaining: remaining},
		}
		return
	}

	sb, _ := h.service.Scoreboard(roomID)
	var winner domain.User
	for _, u := range sb.Players {
		if u.ID == sess.userID {
			winner = u
			break
		}
	}
	h.service.Broadcast(roomID, game.Event{
		Type:    EventWinner,
		Message: "we have a winner",
		Success: true,
		Data:    winnerData{Winner: winner, Answer: payload.Answer, Scoreboard: sb},
	})
	h.broadcastScoreboard(roomID)
}

func (h *WSHandler) handleSkipTurn(sess *session, send chan game.Event, raw json.RawMessage) {
	var payload roomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		send <- errorEvent("invalid skip_turn payload")
		return
	}
	roomID := h.roomFor(sess, payload.RoomID)

	if err := h.service.SkipTurn(roomID, sess.userID); err != nil {
		send <- errorEvent(err.Error())
		return
	}
	h.broadcastScoreboard(roomID)
}

func (h *WSHandler) handleUpdateName(sess *session, send chan game.Event, raw json.RawMessage) {
	var payload updateNamePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Name == "" {
		send <- errorEvent("invalid update_name payload")
		return
	}
	roomID := h.roomFor(sess, payload.RoomID)

	if err := h.service.UpdateUserName(roomID, sess.userID, payload.Name); err != nil {
		send <- errorEvent(err.Error())
		return
	}
	h.broadcastScoreboard(roomID)
}

func (h *WSHandler) handleExitRoom(sess *session, send chan game.Event, raw json.RawMessage) {
	var payload roomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		send <- errorEvent("invalid exit_room payload")
		return
	}
	roomID := h.roomFor(sess, payload.RoomID)

	// Departures fail silently: an unknown user has nothing to announce.
	if err := h.service.Leave(roomID, sess.userID); err == nil {
		h.broadcastDeparture(roomID, sess.userID, "left the room")
	}
	if sess.unsubscribe != nil {
		sess.unsubscribe()
		sess.unsubscribe = nil
	}
	sess.roomID = ""
}

func (h *WSHandler) handleChat(sess *session, send chan game.Event, raw json.RawMessage) {
	var payload chatPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		send <- errorEvent("invalid chat payload")
		return
	}
	roomID := h.roomFor(sess, payload.RoomID)

	h.service.Broadcast(roomID, game.Event{
		Type:    EventChat,
		Message: payload.Message,
		Success: true,
		Data:    map[string]string{"from": sess.userID},
	})
}

// subscribe starts the pump that moves room events onto this connection.
func (h *WSHandler) subscribe(sess *session, send chan game.Event, closeSignals chan struct{}) {
	updates, cancel, err := h.service.Subscribe(sess.roomID)
	if err != nil {
		return
	}
	sess.unsubscribe = cancel

	sess.pumps.Add(1)
	go func() {
		defer sess.pumps.Done()
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- ev:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()
}

func (h *WSHandler) broadcastScoreboard(roomID string) {
	sb, err := h.service.Scoreboard(roomID)
	if err != nil {
		return
	}
	h.service.Broadcast(roomID, game.Event{
		Type:    EventScoreboard,
		Message: "scoreboard updated",
		Success: true,
		Data:    sb,
	})
}

func (h *WSHandler) broadcastDeparture(roomID, userID, what string) {
	h.service.Broadcast(roomID, game.Event{
		Type:    EventUserLeft,
		Message: "a player " + what,
		Success: true,
		Data:    map[string]string{"userId": userID},
	})
	h.broadcastScoreboard(roomID)
}

// timeoutNotice builds the deferred-timer callback: a timeout is broadcast
// room-wide as a no-winner outcome.
func (h *WSHandler) timeoutNotice(roomID string) func() {
	return func() {
		h.service.Broadcast(roomID, game.Event{
			Type:    EventQuestionTimeout,
			Message: "time is up, no winner",
			Success: true,
		})
	}
}

// roomFor prefers the payload's room id, falling back to the room this
// connection joined.
func (h *WSHandler) roomFor(sess *session, payloadRoomID string) string {
	if payloadRoomID != "" {
		return payloadRoomID
	}
	return sess.roomID
}

func (h *WSHandler) questionDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return h.defaultDuration
	}
	return time.Duration(seconds) * time.Second
}

func errorEvent(message string) game.Event {
	return game.Event{Type: EventError, Message: message, Success: false}
}
