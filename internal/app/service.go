package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// QuizStore persists quiz records (in-memory, Postgres, etc). GetByRoomCode
// only resolves non-finished quizzes; finished ones release their code.
type QuizStore interface {
	StatusRecorder
	Create(ctx context.Context, quiz domain.Quiz) error
	Get(ctx context.Context, quizID string) (domain.Quiz, error)
	GetByRoomCode(ctx context.Context, code string) (domain.Quiz, error)
	RoomCodeTaken(ctx context.Context, code string) (bool, error)
}

// SessionRepository abstracts how live sessions are tracked.
type SessionRepository interface {
	GetOrCreate(quizID string, create func() *Session) *Session
	Get(quizID string) (*Session, bool)
	Delete(quizID string)
}

// AnswerKeyRepository serves answer keys for scoring (typically cached).
type AnswerKeyRepository interface {
	GetAnswerKey(ctx context.Context, quizID string) (domain.AnswerKey, error)
}

// ScoreFeed is the low-latency broadcast channel for live score updates,
// separate from the per-connection subscription stream.
type ScoreFeed interface {
	PublishLeaderboard(ctx context.Context, lb domain.Leaderboard) error
}

// QuizService contains the quiz-hosting use cases: owner session control and
// participant play.
type QuizService struct {
	quizzes          QuizStore
	sessions         SessionRepository
	keys             AnswerKeyRepository
	feed             ScoreFeed
	roomCodeLength   int
	questionInterval time.Duration
}

// Option configures optional service collaborators.
type Option func(*QuizService)

// WithScoreFeed attaches the live score broadcast channel.
func WithScoreFeed(feed ScoreFeed) Option {
	return func(s *QuizService) { s.feed = feed }
}

// WithRoomCodeLength sets the generated room code length.
func WithRoomCodeLength(n int) Option {
	return func(s *QuizService) { s.roomCodeLength = n }
}

// WithQuestionInterval sets the advancer pace for quizzes without a
// per-question time limit.
func WithQuestionInterval(d time.Duration) Option {
	return func(s *QuizService) { s.questionInterval = d }
}

func NewQuizService(quizzes QuizStore, sessions SessionRepository, keys AnswerKeyRepository, opts ...Option) *QuizService {
	s := &QuizService{
		quizzes:          quizzes,
		sessions:         sessions,
		keys:             keys,
		roomCodeLength:   domain.DefaultRoomCodeLength,
		questionInterval: DefaultQuestionInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publishScores pushes a leaderboard snapshot onto the score feed with
// bounded retries. Broadcast failures never affect session state.
func (s *QuizService) publishScores(lb domain.Leaderboard) {
	if s.feed == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		err := backoff.Retry(func() error {
			return s.feed.PublishLeaderboard(ctx, lb)
		}, policy)
		if err != nil {
			slog.Error("score feed publish failed", "quiz_id", lb.QuizID, "error", err)
		}
	}()
}
