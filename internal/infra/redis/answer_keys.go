package redis

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// AnswerKeyLoader fetches an answer key from the backing quiz store.
type AnswerKeyLoader interface {
	LoadAnswerKey(ctx context.Context, quizID string) (domain.AnswerKey, error)
}

// AnswerKeys caches answer keys in Redis (hash per quiz) and falls back to a
// loader on cache miss.
// Keys are stored as: HSET quiz:{quizID}:answers {questionIndex} {correctOption}
type AnswerKeys struct {
	client *redis.Client
	loader AnswerKeyLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewAnswerKeys(client *redis.Client, loader AnswerKeyLoader, ttl time.Duration) *AnswerKeys {
	return &AnswerKeys{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *AnswerKeys) GetAnswerKey(ctx context.Context, quizID string) (domain.AnswerKey, error) {
	hashKey := r.answersKey(quizID)

	fields, err := r.client.HGetAll(ctx, hashKey).Result()
	if err == nil && len(fields) > 0 {
		return buildKeyFromHash(quizID, fields), nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		fields, err := r.client.HGetAll(ctx, hashKey).Result()
		if err == nil && len(fields) > 0 {
			return buildKeyFromHash(quizID, fields), nil
		}

		key, err := r.loader.LoadAnswerKey(ctx, quizID)
		if err != nil {
			return domain.AnswerKey{}, err
		}

		pipe := r.client.Pipeline()
		for i, correct := range key.Correct {
			pipe.HSet(ctx, hashKey, strconv.Itoa(i), correct)
		}
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, hashKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return key, nil
	})
	if err != nil {
		return domain.AnswerKey{}, err
	}
	return result.(domain.AnswerKey), nil
}

func (r *AnswerKeys) answersKey(quizID string) string {
	return "quiz:" + quizID + ":answers"
}

func buildKeyFromHash(quizID string, fields map[string]string) domain.AnswerKey {
	indexes := make([]int, 0, len(fields))
	byIndex := make(map[int]int, len(fields))
	for rawIdx, rawCorrect := range fields {
		idx, err := strconv.Atoi(rawIdx)
		if err != nil {
			continue
		}
		correct, err := strconv.Atoi(rawCorrect)
		if err != nil {
			continue
		}
		indexes = append(indexes, idx)
		byIndex[idx] = correct
	}
	sort.Ints(indexes)

	correct := make([]int, len(indexes))
	for i, idx := range indexes {
		correct[i] = byIndex[idx]
	}
	return domain.AnswerKey{QuizID: quizID, Correct: correct}
}

func (r *AnswerKeys) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
