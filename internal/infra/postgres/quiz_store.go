package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

// QuizStore persists quiz documents in Postgres. The full quiz lives in a
// JSONB column; id, owner, room code, status, and active question are
// mirrored into columns so lookups and transition writes stay indexable. The
// columns are authoritative for the live fields.
type QuizStore struct {
	db *bun.DB
}

func NewQuizStore(db *bun.DB) *QuizStore {
	return &QuizStore{db: db}
}

func (s *QuizStore) Create(ctx context.Context, quiz domain.Quiz) error {
	taken, err := s.RoomCodeTaken(ctx, quiz.RoomCode)
	if err != nil {
		return err
	}
	if taken {
		return domain.ErrRoomCodeTaken
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quizzes (id, owner_id, room_code, status, active_question, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?::jsonb, ?, ?)`,
		quiz.ID, quiz.OwnerID, quiz.RoomCode, string(quiz.Status), quiz.ActiveQuestion,
		string(data), quiz.CreatedAt, quiz.UpdatedAt)
	if err != nil {
		// The partial unique index on live room codes catches the race two
		// concurrent creates can slip through the taken check.
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation {
			return domain.ErrRoomCodeTaken
		}
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *QuizStore) Get(ctx context.Context, quizID string) (domain.Quiz, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data, status, active_question FROM quizzes WHERE id = ?`, quizID)
	quiz, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return quiz, nil
}

func (s *QuizStore) GetByRoomCode(ctx context.Context, code string) (domain.Quiz, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data, status, active_question FROM quizzes
		WHERE room_code = ? AND status <> 'finished'
		ORDER BY created_at DESC LIMIT 1`, code)
	quiz, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz by room code: %w", err)
	}
	return quiz, nil
}

func (s *QuizStore) RoomCodeTaken(ctx context.Context, code string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM quizzes WHERE room_code = ? AND status <> 'finished')`, code).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check room code: %w", err)
	}
	return taken, nil
}

func (s *QuizStore) RecordStatus(ctx context.Context, quizID string, status domain.Status, activeQuestion int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE quizzes SET status = ?, active_question = ?, updated_at = now() WHERE id = ?`,
		string(status), activeQuestion, quizID)
	if err != nil {
		return fmt.Errorf("record status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record status: %w", err)
	}
	if affected == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuiz(row rowScanner) (domain.Quiz, error) {
	var (
		raw    []byte
		status string
		active int
	)
	if err := row.Scan(&raw, &status, &active); err != nil {
		return domain.Quiz{}, err
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.Status = domain.Status(status)
	quiz.ActiveQuestion = active
	return quiz, nil
}
