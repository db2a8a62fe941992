package domain

import "time"

// Settings are the owner-configurable knobs for running a quiz.
type Settings struct {
	// TimeLimit is the answer window per question. The advancer also paces
	// itself on this value.
	TimeLimit          time.Duration `json:"timeLimit"`
	ShowResults        bool          `json:"showResults"`
	LeaderboardEnabled bool          `json:"leaderboardEnabled"`
}

// Question models an MCQ question; options are ordered and exactly one index
// is correct.
type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
}

// Quiz is the authored template plus its live session fields. OwnerID has
// exclusive write access to settings and questions while in draft/waiting.
type Quiz struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	RoomCode       string     `json:"roomCode"`
	Questions      []Question `json:"questions"`
	Settings       Settings   `json:"settings"`
	Status         Status     `json:"status"`
	ActiveQuestion int        `json:"activeQuestion"`
	Participants   int        `json:"participants"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Validate checks the structural invariants of an authored quiz.
func (q Quiz) Validate() error {
	if q.Title == "" {
		return ErrInvalidQuiz
	}
	if len(q.Questions) == 0 {
		return ErrInvalidQuiz
	}
	for _, question := range q.Questions {
		if len(question.Options) < 2 {
			return ErrInvalidQuiz
		}
		if question.CorrectOption < 0 || question.CorrectOption >= len(question.Options) {
			return ErrInvalidQuiz
		}
	}
	return nil
}

// Participant is one joined player; Score is mutated only by the scoring
// rule, never by the participant directly.
type Participant struct {
	ID          string
	DisplayName string
	Score       int
	JoinedAt    time.Time
}

// LeaderboardEntry is the ranked view of one participant. Medal is set for
// positions 1-3; PreviousPosition drives movement indicators (0 for a fresh
// joiner).
type LeaderboardEntry struct {
	ParticipantID    string `json:"participantId"`
	DisplayName      string `json:"displayName"`
	Score            int    `json:"score"`
	Position         int    `json:"position"`
	PreviousPosition int    `json:"previousPosition"`
	Medal            string `json:"medal,omitempty"`
}

// Leaderboard is the derived, sorted scoreboard for a session.
type Leaderboard struct {
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AnswerSubmission is the scoring signal from a participant.
type AnswerSubmission struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

// AnswerResult summarizes the outcome of a submission. Accepted is false for
// late, duplicate, or out-of-bounds submissions; those are not errors.
type AnswerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	Accepted      bool `json:"accepted"`
	Correct       bool `json:"correct"`
	Awarded       int  `json:"awarded"`
	TotalScore    int  `json:"totalScore"`
}

// SessionSnapshot is the participant-facing view of a live session. It never
// exposes correct option indexes.
type SessionSnapshot struct {
	QuizID         string      `json:"quizId"`
	RoomCode       string      `json:"roomCode"`
	Status         Status      `json:"status"`
	ActiveQuestion int         `json:"activeQuestion"`
	QuestionCount  int         `json:"questionCount"`
	Question       *QuizPrompt `json:"question,omitempty"`
	Leaderboard    Leaderboard `json:"leaderboard"`
}

// QuizPrompt is a question stripped of its answer key.
type QuizPrompt struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}
