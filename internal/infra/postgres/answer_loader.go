package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// AnswerLoader reads answer keys straight off the quiz document with a pgx
// pool, bypassing bun. It backs the Redis and in-memory answer caches on a
// miss.
type AnswerLoader struct {
	pool *pgxpool.Pool
}

func NewAnswerLoader(pool *pgxpool.Pool) *AnswerLoader {
	return &AnswerLoader{pool: pool}
}

func (l *AnswerLoader) LoadAnswerKey(ctx context.Context, quizID string) (domain.AnswerKey, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id = $1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnswerKey{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.AnswerKey{}, fmt.Errorf("load quiz document: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.AnswerKey{}, fmt.Errorf("unmarshal quiz document: %w", err)
	}
	return domain.BuildAnswerKey(quiz), nil
}
