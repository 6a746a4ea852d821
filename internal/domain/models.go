package domain

// UserStatus tracks room membership state. Users are never removed from a
// room; departures and disconnects only flip the status so the scoreboard
// keeps its history.
type UserStatus string

const (
	StatusOnline       UserStatus = "online"
	StatusDisconnected UserStatus = "disconnected"
	StatusLeft         UserStatus = "left"
)

// User is a room participant and their accumulated stats.
type User struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Status             UserStatus `json:"status"`
	Score              int        `json:"score"`
	QuestionsAttempted int        `json:"questionsAttempted"`
	QuestionsCorrect   int        `json:"questionsCorrect"`
}

// NewUser creates an online participant with zeroed stats.
func NewUser(id, name string) *User {
	return &User{
		ID:     id,
		Name:   name,
		Status: StatusOnline,
	}
}

// Question is an immutable text/answer pair. Grading is exact string
// equality against the stored answer.
type Question struct {
	Text   string `json:"text"`
	Answer string `json:"-"`
}

// NewQuestion validates and constructs a question.
func NewQuestion(text, answer string) (Question, error) {
	if text == "" || answer == "" {
		return Question{}, ErrInvalidQuestion
	}
	return Question{Text: text, Answer: answer}, nil
}

// IsCorrectAnswer grades a submission.
func (q Question) IsCorrectAnswer(answer string) bool {
	return q.Answer == answer
}

// Scoreboard is a point-in-time projection of a room. It carries copies of
// the user records, so callers may read or encode it without holding any
// game lock.
type Scoreboard struct {
	GameMaster User   `json:"gameMaster"`
	Players    []User `json:"players"`
}

// RoomInfo describes an active room for discovery listings.
type RoomInfo struct {
	RoomID    string `json:"roomId"`
	Occupants int    `json:"occupants"`
}
