package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// roomCodeAttempts bounds the generate-and-check loop when a fresh code
// collides with an open session.
const roomCodeAttempts = 5

// NewQuiz is the authoring input for CreateQuiz.
type NewQuiz struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	RoomCode    string            `json:"roomCode,omitempty"`
	Questions   []domain.Question `json:"questions"`
	Settings    domain.Settings   `json:"settings"`
}

// CreateQuiz validates and persists a new quiz in draft. The room code is
// generated unless the owner supplied one; either way it must not collide
// with another non-finished quiz.
func (s *QuizService) CreateQuiz(ctx context.Context, ownerID string, input NewQuiz) (domain.Quiz, error) {
	now := time.Now()
	quiz := domain.Quiz{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Questions:   input.Questions,
		Settings:    input.Settings,
		Status:      domain.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}

	code, err := s.resolveRoomCode(ctx, input.RoomCode)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.RoomCode = code

	if err := s.quizzes.Create(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (s *QuizService) resolveRoomCode(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		code := strings.ToUpper(strings.TrimSpace(requested))
		if !domain.ValidRoomCode(code) {
			return "", domain.ErrInvalidQuiz
		}
		taken, err := s.quizzes.RoomCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if taken {
			return "", domain.ErrRoomCodeTaken
		}
		return code, nil
	}

	for i := 0; i < roomCodeAttempts; i++ {
		code, err := domain.NewRoomCode(s.roomCodeLength)
		if err != nil {
			return "", err
		}
		taken, err := s.quizzes.RoomCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrRoomCodeTaken
}

// GetQuiz returns the owner's quiz, answer key included, so only the owner
// may fetch it.
func (s *QuizService) GetQuiz(ctx context.Context, quizID, actorID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.OwnerID != actorID {
		return domain.Quiz{}, domain.ErrNotOwner
	}
	if session, ok := s.sessions.Get(quizID); ok {
		snap := session.Snapshot()
		quiz.Status = snap.Status
		quiz.ActiveQuestion = snap.ActiveQuestion
		quiz.Participants = len(snap.Leaderboard.Entries)
	}
	return quiz, nil
}

// OpenWaitingRoom moves a draft quiz to waiting and opens the join gate.
func (s *QuizService) OpenWaitingRoom(ctx context.Context, quizID, actorID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.OwnerID != actorID {
		return domain.Quiz{}, domain.ErrNotOwner
	}
	if _, live := s.sessions.Get(quizID); live {
		return domain.Quiz{}, domain.ErrInvalidTransition
	}
	if !domain.CanTransition(quiz.Status, domain.StatusWaiting) {
		return domain.Quiz{}, domain.ErrInvalidTransition
	}

	if err := s.quizzes.RecordStatus(ctx, quizID, domain.StatusWaiting, 0); err != nil {
		return domain.Quiz{}, err
	}

	quiz.Status = domain.StatusWaiting
	quiz.ActiveQuestion = 0
	s.sessions.GetOrCreate(quizID, func() *Session {
		return NewSession(quiz, s.quizzes, s.questionInterval)
	})
	return quiz, nil
}

// StartQuiz moves a waiting session to running and starts the advancer.
// Starting straight from draft is rejected.
func (s *QuizService) StartQuiz(ctx context.Context, quizID, actorID string) (domain.SessionSnapshot, error) {
	session, err := s.ownedSession(ctx, quizID, actorID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return session.Start(ctx)
}

// StopSession aborts a waiting or running session back to draft and
// dissolves it; joined participants are dropped.
func (s *QuizService) StopSession(ctx context.Context, quizID, actorID string) (domain.SessionSnapshot, error) {
	session, err := s.ownedSession(ctx, quizID, actorID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	snap, err := session.Stop(ctx)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.Delete(quizID)
	return snap, nil
}

// AdvanceQuestion moves a running session to the next question manually,
// without waiting for the advancer's tick.
func (s *QuizService) AdvanceQuestion(ctx context.Context, quizID, actorID string) (domain.SessionSnapshot, error) {
	session, err := s.ownedSession(ctx, quizID, actorID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return session.Advance(ctx)
}

// FinishQuiz ends a running session early. The session lingers so the final
// leaderboard stays visible until the last participant leaves.
func (s *QuizService) FinishQuiz(ctx context.Context, quizID, actorID string) (domain.SessionSnapshot, error) {
	session, err := s.ownedSession(ctx, quizID, actorID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return session.Finish(ctx)
}

// Leaderboard returns the live scoreboard for the owner's session.
func (s *QuizService) Leaderboard(ctx context.Context, quizID, actorID string) (domain.Leaderboard, error) {
	session, err := s.ownedSession(ctx, quizID, actorID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return session.Leaderboard(), nil
}

// ownedSession resolves the live session for quizID, checking the actor's
// owner capability. Without a live session the quiz record decides between
// "not found" and "invalid transition" (e.g. starting straight from draft).
func (s *QuizService) ownedSession(ctx context.Context, quizID, actorID string) (*Session, error) {
	if session, ok := s.sessions.Get(quizID); ok {
		if session.OwnerID() != actorID {
			return nil, domain.ErrNotOwner
		}
		return session, nil
	}

	quiz, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.OwnerID != actorID {
		return nil, domain.ErrNotOwner
	}
	return nil, domain.ErrInvalidTransition
}
