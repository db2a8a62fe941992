package app

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// DefaultQuestionInterval paces the advancer when a quiz has no per-question
// time limit configured.
const DefaultQuestionInterval = 4 * time.Second

const recordTimeout = 5 * time.Second

// StatusRecorder persists a session's status and active-question index.
// Transitions call it before mutating local state so a failed write leaves
// the session exactly as it was.
type StatusRecorder interface {
	RecordStatus(ctx context.Context, quizID string, status domain.Status, activeQuestion int) error
}

// Session is the authoritative in-memory runtime for one live quiz. All
// status and index mutations happen here, under one mutex, driven either by
// owner actions or by the session's own advancer.
type Session struct {
	quiz     domain.Quiz
	recorder StatusRecorder
	interval time.Duration
	now      func() time.Time

	mu              sync.RWMutex
	status          domain.Status
	active          int
	questionStarted time.Time
	participants    map[string]*domain.Participant
	joinOrder       []string
	answered        map[int]map[string]struct{}
	lastPositions   map[string]int
	subscribers     map[chan domain.SessionSnapshot]struct{}
	advancerStop    chan struct{}
}

// NewSession builds a session in the waiting stage for a quiz whose waiting
// room was just opened.
func NewSession(quiz domain.Quiz, recorder StatusRecorder, defaultInterval time.Duration) *Session {
	return newSessionWithClock(quiz, recorder, defaultInterval, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(quiz domain.Quiz, recorder StatusRecorder, defaultInterval time.Duration, now func() time.Time) *Session {
	return newSessionWithClock(quiz, recorder, defaultInterval, now)
}

func newSessionWithClock(quiz domain.Quiz, recorder StatusRecorder, defaultInterval time.Duration, now func() time.Time) *Session {
	interval := quiz.Settings.TimeLimit
	if interval <= 0 {
		interval = defaultInterval
	}
	if interval <= 0 {
		interval = DefaultQuestionInterval
	}
	return &Session{
		quiz:          quiz,
		recorder:      recorder,
		interval:      interval,
		now:           now,
		status:        domain.StatusWaiting,
		active:        0,
		participants:  make(map[string]*domain.Participant),
		answered:      make(map[int]map[string]struct{}),
		lastPositions: make(map[string]int),
		subscribers:   make(map[chan domain.SessionSnapshot]struct{}),
	}
}

// QuizID returns the identity of the quiz this session runs.
func (s *Session) QuizID() string {
	return s.quiz.ID
}

// OwnerID returns the quiz owner's identity.
func (s *Session) OwnerID() string {
	return s.quiz.OwnerID
}

// Status returns the current lifecycle stage.
func (s *Session) Status() domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsEmpty reports whether the session has no participants.
func (s *Session) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants) == 0
}

// Join registers a participant while the waiting room is open.
func (s *Session) Join(participantID, displayName string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusWaiting {
		return domain.SessionSnapshot{}, domain.ErrNotJoinable
	}
	if _, ok := s.participants[participantID]; !ok {
		s.participants[participantID] = &domain.Participant{
			ID:          participantID,
			DisplayName: displayName,
			Score:       0,
			JoinedAt:    s.now(),
		}
		s.joinOrder = append(s.joinOrder, participantID)
	}
	return s.broadcastLocked(), nil
}

// Start moves the session from waiting to running, resets the question
// pointer, and starts the advancer.
func (s *Session) Start(ctx context.Context) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !domain.CanTransition(s.status, domain.StatusRunning) {
		return domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}
	if err := s.recordLocked(ctx, domain.StatusRunning, 0); err != nil {
		return domain.SessionSnapshot{}, err
	}

	s.status = domain.StatusRunning
	s.active = 0
	s.questionStarted = s.now()
	s.advancerStop = make(chan struct{})
	go s.runAdvancer(s.advancerStop)
	return s.broadcastLocked(), nil
}

// Stop aborts a waiting or running session back to draft, clearing the
// question pointer and cancelling the advancer.
func (s *Session) Stop(ctx context.Context) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !domain.CanTransition(s.status, domain.StatusDraft) {
		return domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}
	if err := s.recordLocked(ctx, domain.StatusDraft, 0); err != nil {
		return domain.SessionSnapshot{}, err
	}

	s.status = domain.StatusDraft
	s.active = 0
	s.stopAdvancerLocked()
	snap := s.broadcastLocked()
	// The session is being dissolved; release every subscriber after the
	// final draft snapshot.
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan domain.SessionSnapshot]struct{})
	return snap, nil
}

// Finish ends a running session early on the owner's behalf.
func (s *Session) Finish(ctx context.Context) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !domain.CanTransition(s.status, domain.StatusFinished) {
		return domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}
	if err := s.recordLocked(ctx, domain.StatusFinished, s.active); err != nil {
		return domain.SessionSnapshot{}, err
	}

	s.status = domain.StatusFinished
	s.stopAdvancerLocked()
	return s.broadcastLocked(), nil
}

// Advance moves a running session to the next question on the owner's
// behalf, finishing it when the list is exhausted. The timer-driven advancer
// keeps its own pace; this is the manual control next to it.
func (s *Session) Advance(ctx context.Context) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusRunning {
		return domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}

	last := len(s.quiz.Questions) - 1
	if s.active < last {
		if err := s.recordLocked(ctx, domain.StatusRunning, s.active+1); err != nil {
			return domain.SessionSnapshot{}, err
		}
		s.active++
		s.questionStarted = s.now()
		return s.broadcastLocked(), nil
	}

	if err := s.recordLocked(ctx, domain.StatusFinished, s.active); err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.status = domain.StatusFinished
	s.stopAdvancerLocked()
	return s.broadcastLocked(), nil
}

// SubmitAnswer applies the scoring rule for one participant. A correct
// in-window first submission scores exactly one point; wrong, late,
// duplicate, or mistargeted submissions are ignored without error.
func (s *Session) SubmitAnswer(participantID string, sub domain.AnswerSubmission, key domain.AnswerKey) (domain.AnswerResult, domain.Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[participantID]
	if !ok {
		return domain.AnswerResult{}, domain.Leaderboard{}, domain.ErrParticipantNotFound
	}

	result := domain.AnswerResult{
		QuestionIndex: sub.QuestionIndex,
		TotalScore:    participant.Score,
	}

	if s.status != domain.StatusRunning {
		return result, s.leaderboardLocked(), nil
	}
	if sub.QuestionIndex != s.active {
		// Stale submission for an already-advanced question.
		return result, s.leaderboardLocked(), nil
	}
	if s.now().Sub(s.questionStarted) > s.interval {
		// Late: the answer window for this question is closed.
		return result, s.leaderboardLocked(), nil
	}
	if _, dup := s.answered[s.active][participantID]; dup {
		return result, s.leaderboardLocked(), nil
	}

	if s.answered[s.active] == nil {
		s.answered[s.active] = make(map[string]struct{})
	}
	s.answered[s.active][participantID] = struct{}{}
	result.Accepted = true

	correct := key.CorrectOption(s.active)
	if correct >= 0 && sub.OptionIndex == correct {
		participant.Score++
		result.Correct = true
		result.Awarded = 1
		result.TotalScore = participant.Score
		return result, s.broadcastLocked().Leaderboard, nil
	}
	return result, s.leaderboardLocked(), nil
}

// Leave removes a participant.
func (s *Session) Leave(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[participantID]; !ok {
		return
	}
	delete(s.participants, participantID)
	for i, id := range s.joinOrder {
		if id == participantID {
			s.joinOrder = append(s.joinOrder[:i], s.joinOrder[i+1:]...)
			break
		}
	}
	s.broadcastLocked()
}

// Subscribe returns a channel of session snapshots. The caller must invoke
// the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.SessionSnapshot, func()) {
	ch := make(chan domain.SessionSnapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Snapshot returns the current participant-facing view.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Leaderboard returns the current ranked scoreboard.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaderboardLocked()
}

func (s *Session) runAdvancer(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.advanceOnce() {
				return
			}
		case <-stop:
			return
		}
	}
}

// advanceOnce performs one advancer tick: move to the next question, or
// finish when the list is exhausted. Returns true when the advancer should
// stop. A failed persistence write skips the local mutation; the next tick
// retries.
func (s *Session) advanceOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusRunning {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	last := len(s.quiz.Questions) - 1
	if s.active < last {
		if err := s.recordLocked(ctx, domain.StatusRunning, s.active+1); err != nil {
			slog.Warn("advance not persisted, retrying next tick", "quiz_id", s.quiz.ID, "error", err)
			return false
		}
		s.active++
		s.questionStarted = s.now()
		s.broadcastLocked()
		return false
	}

	if err := s.recordLocked(ctx, domain.StatusFinished, s.active); err != nil {
		slog.Warn("finish not persisted, retrying next tick", "quiz_id", s.quiz.ID, "error", err)
		return false
	}
	s.status = domain.StatusFinished
	s.stopAdvancerLocked()
	s.broadcastLocked()
	return true
}

func (s *Session) recordLocked(ctx context.Context, status domain.Status, active int) error {
	if s.recorder == nil {
		return nil
	}
	return s.recorder.RecordStatus(ctx, s.quiz.ID, status, active)
}

func (s *Session) stopAdvancerLocked() {
	if s.advancerStop != nil {
		close(s.advancerStop)
		s.advancerStop = nil
	}
}

func (s *Session) broadcastLocked() domain.SessionSnapshot {
	snap := s.snapshotLocked()
	s.commitPositionsLocked(snap.Leaderboard.Entries)
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale update so a slow client never blocks the room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	return snap
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		QuizID:         s.quiz.ID,
		RoomCode:       s.quiz.RoomCode,
		Status:         s.status,
		ActiveQuestion: s.active,
		QuestionCount:  len(s.quiz.Questions),
		Leaderboard:    s.leaderboardLocked(),
	}
	if s.status == domain.StatusRunning && s.active < len(s.quiz.Questions) {
		q := s.quiz.Questions[s.active]
		snap.Question = &domain.QuizPrompt{
			Index:   s.active,
			Text:    q.Text,
			Options: q.Options,
		}
	}
	return snap
}

// leaderboardLocked projects the ranked scoreboard: score descending, ties
// broken by join order so reprojection of an unchanged set is stable. The
// projection is pure; broadcastLocked commits the positions afterwards so
// PreviousPosition reflects the last broadcast, not the last read.
func (s *Session) leaderboardLocked() domain.Leaderboard {
	order := make(map[string]int, len(s.joinOrder))
	for i, id := range s.joinOrder {
		order[id] = i
	}

	entries := make([]domain.LeaderboardEntry, 0, len(s.participants))
	for _, p := range s.participants {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return order[entries[i].ParticipantID] < order[entries[j].ParticipantID]
	})

	for i := range entries {
		entries[i].Position = i + 1
		entries[i].PreviousPosition = s.lastPositions[entries[i].ParticipantID]
		entries[i].Medal = medalForPosition(i + 1)
	}

	return domain.Leaderboard{
		QuizID:    s.quiz.ID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}
}

func (s *Session) commitPositionsLocked(entries []domain.LeaderboardEntry) {
	for _, e := range entries {
		s.lastPositions[e.ParticipantID] = e.Position
	}
}

func medalForPosition(position int) string {
	switch position {
	case 1:
		return "gold"
	case 2:
		return "silver"
	case 3:
		return "bronze"
	}
	return ""
}
