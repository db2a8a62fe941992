package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizStore, used for tests
// and demo mode.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore() *QuizStore {
	return &QuizStore{quizzes: make(map[string]domain.Quiz)}
}

// Seed inserts quizzes directly, bypassing validation. Demo/test helper.
func (s *QuizStore) Seed(quizzes ...domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range quizzes {
		s.quizzes[q.ID] = q
	}
}

func (s *QuizStore) Create(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomCodeTakenLocked(quiz.RoomCode) {
		return domain.ErrRoomCodeTaken
	}
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *QuizStore) Get(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *QuizStore) GetByRoomCode(_ context.Context, code string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, quiz := range s.quizzes {
		if quiz.RoomCode == code && !quiz.Status.Terminal() {
			return quiz, nil
		}
	}
	return domain.Quiz{}, domain.ErrRoomNotFound
}

func (s *QuizStore) RoomCodeTaken(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomCodeTakenLocked(code), nil
}

func (s *QuizStore) roomCodeTakenLocked(code string) bool {
	for _, quiz := range s.quizzes {
		if quiz.RoomCode == code && !quiz.Status.Terminal() {
			return true
		}
	}
	return false
}

func (s *QuizStore) RecordStatus(_ context.Context, quizID string, status domain.Status, activeQuestion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Status = status
	quiz.ActiveQuestion = activeQuestion
	quiz.UpdatedAt = time.Now()
	s.quizzes[quizID] = quiz
	return nil
}
