package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ElegantFalcon/Quizzy/internal/app"
	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// AnswerKeyLoader fetches an answer key from the backing quiz store.
type AnswerKeyLoader interface {
	LoadAnswerKey(ctx context.Context, quizID string) (domain.AnswerKey, error)
}

// AnswerKeys caches answer keys with TTL to keep the scoring path off the
// document store.
type AnswerKeys struct {
	loader AnswerKeyLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedKey
}

type cachedKey struct {
	key       domain.AnswerKey
	expiresAt time.Time
}

// live reports whether the entry is still usable; a zero expiry means the
// entry never expires, matching the Redis cache's treatment of ttl <= 0.
func (c cachedKey) live(now time.Time) bool {
	return c.expiresAt.IsZero() || c.expiresAt.After(now)
}

func NewAnswerKeys(loader AnswerKeyLoader, ttl time.Duration) *AnswerKeys {
	return &AnswerKeys{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedKey),
	}
}

func (r *AnswerKeys) GetAnswerKey(ctx context.Context, quizID string) (domain.AnswerKey, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[quizID]; ok && entry.live(now) {
		r.mu.RUnlock()
		return entry.key, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[quizID]; ok && entry.live(now) {
			r.mu.RUnlock()
			return entry.key, nil
		}
		r.mu.RUnlock()

		key, err := r.loader.LoadAnswerKey(ctx, quizID)
		if err != nil {
			return domain.AnswerKey{}, err
		}

		entry := cachedKey{key: key}
		if d := r.ttlWithJitter(); d > 0 {
			entry.expiresAt = now.Add(d)
		}
		r.mu.Lock()
		r.cache[quizID] = entry
		r.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return domain.AnswerKey{}, err
	}
	return result.(domain.AnswerKey), nil
}

func (r *AnswerKeys) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StoreKeyLoader derives answer keys from quiz records in an app.QuizStore.
type StoreKeyLoader struct {
	store app.QuizStore
}

func NewStoreKeyLoader(store app.QuizStore) *StoreKeyLoader {
	return &StoreKeyLoader{store: store}
}

func (l *StoreKeyLoader) LoadAnswerKey(ctx context.Context, quizID string) (domain.AnswerKey, error) {
	quiz, err := l.store.Get(ctx, quizID)
	if err != nil {
		return domain.AnswerKey{}, err
	}
	return domain.BuildAnswerKey(quiz), nil
}
