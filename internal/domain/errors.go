package domain

import "errors"

var (
	// ErrInvalidQuestion is returned when a question fails construction rules.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNotGameMaster is returned when a non game master tries to pose a question.
	ErrNotGameMaster = errors.New("you are not the current game master")
	// ErrQuestionAlreadyActive is returned when a question is posed while one is live.
	ErrQuestionAlreadyActive = errors.New("there is already an active question")
	// ErrNoActiveQuestion is returned when a guess arrives with no question live.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrIsGameMaster is returned when the game master guesses their own question.
	ErrIsGameMaster = errors.New("you are the game master")
	// ErrMaxGuessesReached is returned once a user has spent all guesses this cycle.
	ErrMaxGuessesReached = errors.New("maximum guesses reached")
	// ErrInsufficientPlayers is returned when a question is posed to an empty room.
	ErrInsufficientPlayers = errors.New("at least one other player is required")
	// ErrRoomNotFound indicates the room id is not registered.
	ErrRoomNotFound = errors.New("room not found")
	// ErrUserNotFound indicates the user never joined the room.
	ErrUserNotFound = errors.New("user not found in room")
	// ErrTopicNotFound indicates the question bank has no content for a topic.
	ErrTopicNotFound = errors.New("question topic not found")
)
