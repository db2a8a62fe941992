package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

type recordedTransition struct {
	status domain.Status
	active int
}

// fakeRecorder captures persisted transitions and can be told to fail.
type fakeRecorder struct {
	transitions []recordedTransition
	failures    int
}

func (r *fakeRecorder) RecordStatus(_ context.Context, _ string, status domain.Status, active int) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("store unavailable")
	}
	r.transitions = append(r.transitions, recordedTransition{status, active})
	return nil
}

func twoQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:       "quiz-1",
		OwnerID:  "owner-1",
		Title:    "Colors",
		RoomCode: "ABC123",
		Questions: []domain.Question{
			{Text: "Q1", Options: []string{"a", "b", "c"}, CorrectOption: 0},
			{Text: "Q2", Options: []string{"a", "b", "c"}, CorrectOption: 2},
		},
		// No time limit configured; the session falls back to the default
		// interval, kept long here so manual ticks stay deterministic.
		Status: domain.StatusDraft,
	}
}

func TestAdvancerTickSequence(t *testing.T) {
	rec := &fakeRecorder{}
	session := NewSession(twoQuestionQuiz(), rec, time.Hour)

	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Tick 1: index 0 -> 1.
	if done := session.advanceOnce(); done {
		t.Fatalf("tick 1 should not stop the advancer")
	}
	if snap := session.Snapshot(); snap.ActiveQuestion != 1 || snap.Status != domain.StatusRunning {
		t.Fatalf("after tick 1 expected running/1, got %s/%d", snap.Status, snap.ActiveQuestion)
	}

	// Tick 2: questions exhausted, session finishes, index unchanged.
	if done := session.advanceOnce(); !done {
		t.Fatalf("tick 2 should stop the advancer")
	}
	if snap := session.Snapshot(); snap.Status != domain.StatusFinished || snap.ActiveQuestion != 1 {
		t.Fatalf("after tick 2 expected finished/1, got %s/%d", snap.Status, snap.ActiveQuestion)
	}

	// Tick 3: terminal state, no-op.
	if done := session.advanceOnce(); !done {
		t.Fatalf("tick 3 should report the advancer stopped")
	}
	if snap := session.Snapshot(); snap.Status != domain.StatusFinished || snap.ActiveQuestion != 1 {
		t.Fatalf("terminal state mutated: %s/%d", snap.Status, snap.ActiveQuestion)
	}

	want := []recordedTransition{
		{domain.StatusRunning, 0},
		{domain.StatusRunning, 1},
		{domain.StatusFinished, 1},
	}
	if len(rec.transitions) != len(want) {
		t.Fatalf("expected %d persisted transitions, got %+v", len(want), rec.transitions)
	}
	for i, tr := range want {
		if rec.transitions[i] != tr {
			t.Fatalf("transition %d = %+v, want %+v", i, rec.transitions[i], tr)
		}
	}
}

func TestAdvancerSkipsLocalAdvanceWhenPersistFails(t *testing.T) {
	rec := &fakeRecorder{}
	session := NewSession(twoQuestionQuiz(), rec, time.Hour)
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec.failures = 1
	if done := session.advanceOnce(); done {
		t.Fatalf("failed tick should not stop the advancer")
	}
	if snap := session.Snapshot(); snap.ActiveQuestion != 0 {
		t.Fatalf("index advanced despite failed persist: %d", snap.ActiveQuestion)
	}

	// Next tick retries and succeeds.
	if done := session.advanceOnce(); done {
		t.Fatalf("retry tick should keep going")
	}
	if snap := session.Snapshot(); snap.ActiveQuestion != 1 {
		t.Fatalf("expected retry to advance, got %d", snap.ActiveQuestion)
	}
}

func TestAdvancerLoopFinishesSession(t *testing.T) {
	quiz := twoQuestionQuiz()
	quiz.Settings.TimeLimit = 20 * time.Millisecond
	session := NewSession(quiz, &fakeRecorder{}, time.Hour)
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for session.Status() != domain.StatusFinished {
		select {
		case <-deadline:
			t.Fatalf("advancer never finished the session")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if snap := session.Snapshot(); snap.ActiveQuestion != 1 {
		t.Fatalf("expected final index 1, got %d", snap.ActiveQuestion)
	}
}

func TestStopCancelsAdvancer(t *testing.T) {
	quiz := twoQuestionQuiz()
	quiz.Settings.TimeLimit = 20 * time.Millisecond
	session := NewSession(quiz, &fakeRecorder{}, time.Hour)
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, err := session.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if snap.Status != domain.StatusDraft || snap.ActiveQuestion != 0 {
		t.Fatalf("expected draft/0 after stop, got %s/%d", snap.Status, snap.ActiveQuestion)
	}

	// An orphaned advancer would keep mutating; give it a chance to misfire.
	time.Sleep(80 * time.Millisecond)
	if got := session.Status(); got != domain.StatusDraft {
		t.Fatalf("advancer kept running after stop: %s", got)
	}
}

func TestScoringWindowAndIdempotency(t *testing.T) {
	current := time.Unix(1000, 0)
	clock := func() time.Time { return current }

	quiz := twoQuestionQuiz()
	quiz.Settings.TimeLimit = 30 * time.Second
	session := NewSessionWithClock(quiz, &fakeRecorder{}, time.Hour, clock)
	key := domain.BuildAnswerKey(quiz)

	if _, err := session.Join("p1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Correct in-window answer scores exactly one point.
	result, _, err := session.SubmitAnswer("p1", domain.AnswerSubmission{QuestionIndex: 0, OptionIndex: 0}, key)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Accepted || !result.Correct || result.TotalScore != 1 {
		t.Fatalf("expected accepted correct score 1, got %+v", result)
	}

	// Duplicate submission for the same question never double-counts.
	result, _, err = session.SubmitAnswer("p1", domain.AnswerSubmission{QuestionIndex: 0, OptionIndex: 0}, key)
	if err != nil {
		t.Fatalf("submit duplicate: %v", err)
	}
	if result.Accepted || result.TotalScore != 1 {
		t.Fatalf("duplicate should be ignored, got %+v", result)
	}

	// Advance to question 2, then let the answer window expire.
	if session.advanceOnce() {
		t.Fatalf("unexpected finish")
	}
	current = current.Add(31 * time.Second)
	result, _, err = session.SubmitAnswer("p1", domain.AnswerSubmission{QuestionIndex: 1, OptionIndex: 2}, key)
	if err != nil {
		t.Fatalf("submit late: %v", err)
	}
	if result.Accepted || result.TotalScore != 1 {
		t.Fatalf("late answer should be ignored, got %+v", result)
	}
}

func TestSubmitUnknownParticipant(t *testing.T) {
	quiz := twoQuestionQuiz()
	session := NewSession(quiz, &fakeRecorder{}, time.Hour)
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _, err := session.SubmitAnswer("ghost", domain.AnswerSubmission{}, domain.BuildAnswerKey(quiz))
	if err != domain.ErrParticipantNotFound {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestJoinGateClosedOutsideWaiting(t *testing.T) {
	session := NewSession(twoQuestionQuiz(), &fakeRecorder{}, time.Hour)
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := session.Join("p1", "Alice"); err != domain.ErrNotJoinable {
		t.Fatalf("expected ErrNotJoinable while running, got %v", err)
	}
}

func TestLeaderboardOrderingAndStability(t *testing.T) {
	quiz := twoQuestionQuiz()
	session := NewSession(quiz, &fakeRecorder{}, time.Hour)
	key := domain.BuildAnswerKey(quiz)

	for _, p := range []struct{ id, name string }{
		{"p1", "Alice"}, {"p2", "Bob"}, {"p3", "Cara"},
	} {
		if _, err := session.Join(p.id, p.name); err != nil {
			t.Fatalf("join %s: %v", p.id, err)
		}
	}
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, _, err := session.SubmitAnswer("p2", domain.AnswerSubmission{QuestionIndex: 0, OptionIndex: 0}, key); err != nil {
		t.Fatalf("submit: %v", err)
	}

	lb := session.Leaderboard()
	if lb.Entries[0].ParticipantID != "p2" || lb.Entries[0].Score != 1 {
		t.Fatalf("expected Bob leading with 1, got %+v", lb.Entries[0])
	}
	if lb.Entries[0].Medal != "gold" || lb.Entries[1].Medal != "silver" || lb.Entries[2].Medal != "bronze" {
		t.Fatalf("expected medals for top three, got %+v", lb.Entries)
	}
	// Ties keep join order: Alice before Cara.
	if lb.Entries[1].ParticipantID != "p1" || lb.Entries[2].ParticipantID != "p3" {
		t.Fatalf("tie-break broke join order: %+v", lb.Entries)
	}
	for i := 1; i < len(lb.Entries); i++ {
		if lb.Entries[i].Score > lb.Entries[i-1].Score {
			t.Fatalf("scores not non-increasing: %+v", lb.Entries)
		}
	}

	// Reprojection of an unchanged set is stable.
	again := session.Leaderboard()
	for i := range lb.Entries {
		if again.Entries[i].ParticipantID != lb.Entries[i].ParticipantID {
			t.Fatalf("projection not stable: %+v vs %+v", lb.Entries, again.Entries)
		}
	}
}

func TestLeaderboardTracksPreviousPositions(t *testing.T) {
	quiz := twoQuestionQuiz()
	session := NewSession(quiz, &fakeRecorder{}, time.Hour)
	key := domain.BuildAnswerKey(quiz)

	session.Join("p1", "Alice")
	session.Join("p2", "Bob")
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Bob scores and overtakes Alice; his previous position was 2.
	_, lb, err := session.SubmitAnswer("p2", domain.AnswerSubmission{QuestionIndex: 0, OptionIndex: 0}, key)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if lb.Entries[0].ParticipantID != "p2" || lb.Entries[0].PreviousPosition != 2 {
		t.Fatalf("expected Bob up from position 2, got %+v", lb.Entries[0])
	}
	if lb.Entries[1].ParticipantID != "p1" || lb.Entries[1].PreviousPosition != 1 {
		t.Fatalf("expected Alice down from position 1, got %+v", lb.Entries[1])
	}
}

func TestBroadcastNeverBlocksOnSlowSubscriber(t *testing.T) {
	session := NewSession(twoQuestionQuiz(), &fakeRecorder{}, time.Hour)

	// This subscriber never drains its channel.
	ch, cancel := session.Subscribe()
	defer cancel()

	const joins = 30
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < joins; i++ {
			session.Join(fmt.Sprintf("p%02d", i), fmt.Sprintf("Player %d", i))
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("broadcast blocked on a subscriber under backpressure")
	}

	// Stale updates are dropped, the buffer never grows past its size, and
	// the last delivered snapshot reflects the final state.
	var last domain.SessionSnapshot
	received := 0
drain:
	for {
		select {
		case snap := <-ch:
			last = snap
			received++
		default:
			break drain
		}
	}
	if received == 0 || received > joins {
		t.Fatalf("expected a bounded number of snapshots, got %d", received)
	}
	if received >= joins {
		t.Fatalf("expected stale snapshots to be dropped, got all %d", received)
	}
	if got := len(last.Leaderboard.Entries); got != joins {
		t.Fatalf("last snapshot should show all %d participants, got %d", joins, got)
	}
}

func TestStartRejectedWhenPersistFails(t *testing.T) {
	rec := &fakeRecorder{failures: 1}
	session := NewSession(twoQuestionQuiz(), rec, time.Hour)

	if _, err := session.Start(context.Background()); err == nil {
		t.Fatalf("expected start to surface the store failure")
	}
	if got := session.Status(); got != domain.StatusWaiting {
		t.Fatalf("failed start must leave state untouched, got %s", got)
	}

	// Retry succeeds once the store recovers.
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("retry start: %v", err)
	}
}
