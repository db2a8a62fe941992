package app

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// JoinRoom registers a participant in the session behind a room code. The
// gate is open only while the session is waiting.
func (s *QuizService) JoinRoom(ctx context.Context, roomCode, displayName string) (string, domain.SessionSnapshot, error) {
	code := strings.ToUpper(strings.TrimSpace(roomCode))
	if !domain.ValidRoomCode(code) {
		return "", domain.SessionSnapshot{}, domain.ErrRoomNotFound
	}

	quiz, err := s.quizzes.GetByRoomCode(ctx, code)
	if err != nil {
		return "", domain.SessionSnapshot{}, err
	}
	session, ok := s.sessions.Get(quiz.ID)
	if !ok {
		return "", domain.SessionSnapshot{}, domain.ErrNotJoinable
	}

	participantID := uuid.NewString()
	snap, err := session.Join(participantID, displayName)
	if err != nil {
		return "", domain.SessionSnapshot{}, err
	}
	return participantID, snap, nil
}

// SubmitAnswer applies the scoring rule for one participant's submission and
// pushes the resulting leaderboard onto the score feed when a score changed.
func (s *QuizService) SubmitAnswer(ctx context.Context, quizID, participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, domain.Leaderboard, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return domain.AnswerResult{}, domain.Leaderboard{}, domain.ErrSessionNotFound
	}

	key, err := s.keys.GetAnswerKey(ctx, quizID)
	if err != nil {
		return domain.AnswerResult{}, domain.Leaderboard{}, err
	}

	result, lb, err := session.SubmitAnswer(participantID, sub, key)
	if err != nil {
		return domain.AnswerResult{}, domain.Leaderboard{}, err
	}
	if result.Correct {
		s.publishScores(lb)
	}
	return result, lb, nil
}

// Subscribe returns a channel of session snapshots for a quiz. The caller
// must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, quizID string) (<-chan domain.SessionSnapshot, func(), error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Leave removes a participant. A finished session is dropped once its last
// participant leaves.
func (s *QuizService) Leave(_ context.Context, quizID, participantID string) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return
	}
	session.Leave(participantID)
	if session.IsEmpty() && session.Status().Terminal() {
		s.sessions.Delete(quizID)
	}
}
