package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ElegantFalcon/Quizzy/internal/app"
	"github.com/ElegantFalcon/Quizzy/internal/domain"
	"github.com/ElegantFalcon/Quizzy/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.QuizService, domain.Quiz) {
	t.Helper()
	store := memory.NewQuizStore()
	sessions := memory.NewSessionStore()
	keys := memory.NewAnswerKeys(memory.NewStoreKeyLoader(store), time.Minute)
	service := app.NewQuizService(store, sessions, keys, app.WithQuestionInterval(time.Hour))

	quiz, err := service.CreateQuiz(context.Background(), "owner-1", app.NewQuiz{
		Title: "Arithmetic",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectOption: 1},
			{Text: "What is 3 * 3?", Options: []string{"9", "6", "12"}, CorrectOption: 0},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if _, err := service.OpenWaitingRoom(context.Background(), quiz.ID, "owner-1"); err != nil {
		t.Fatalf("open waiting room: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	wsHandler := NewWSHandler(service, logger)
	apiHandler := NewAPIHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service, quiz
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func dialWS(t *testing.T, server *httptest.Server, code, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?code=" + code + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}

func waitFor(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		typ, payload := readNext(t, conn)
		if typ == want {
			return payload
		}
	}
	t.Fatalf("never received %q event", want)
	return nil
}

func TestWebSocketAnswerFlow(t *testing.T) {
	server, service, quiz := newTestServer(t)

	conn := dialWS(t, server, quiz.RoomCode, "Alice")

	joined := waitFor(t, conn, "joined")
	if id, ok := joined["participantId"].(string); !ok || id == "" {
		t.Fatalf("expected participant id in joined payload, got %v", joined)
	}

	if _, err := service.StartQuiz(context.Background(), quiz.ID, "owner-1"); err != nil {
		t.Fatalf("start quiz: %v", err)
	}
	session := waitFor(t, conn, "session")
	if session["status"] != string(domain.StatusRunning) {
		t.Fatalf("expected running session event, got %v", session)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionIndex": 0, "optionIndex": 1},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	result := waitFor(t, conn, "answerResult")
	if result["correct"] != true {
		t.Fatalf("expected correct answer result, got %v", result)
	}
	lb := waitFor(t, conn, "leaderboard")
	if lb == nil {
		t.Fatalf("expected leaderboard payload")
	}
}

func TestWebSocketRejectsUnknownRoom(t *testing.T) {
	server, _, _ := newTestServer(t)

	conn := dialWS(t, server, "ZZZZZZ", "Alice")
	typ, payload := readNext(t, conn)
	if typ != "error" {
		t.Fatalf("expected error event, got %s %v", typ, payload)
	}
}

func TestWebSocketDisconnectReleasesParticipant(t *testing.T) {
	server, service, quiz := newTestServer(t)
	ctx := context.Background()

	conn := dialWS(t, server, quiz.RoomCode, "Alice")
	waitFor(t, conn, "joined")
	conn.Close()

	// Broadcasts keep flowing into the dead connection's buffer; the handler
	// must still unwind and remove the participant.
	for i := 0; i < 20; i++ {
		if _, _, err := service.JoinRoom(ctx, quiz.RoomCode, fmt.Sprintf("Player %d", i)); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		lb, err := service.Leaderboard(ctx, quiz.ID, "owner-1")
		if err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
		gone := true
		for _, e := range lb.Entries {
			if e.DisplayName == "Alice" {
				gone = false
			}
		}
		if gone {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("participant never released after disconnect: %+v", lb.Entries)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWebSocketJoinGateClosedWhileRunning(t *testing.T) {
	server, service, quiz := newTestServer(t)

	// One participant keeps the session alive.
	first := dialWS(t, server, quiz.RoomCode, "Alice")
	waitFor(t, first, "joined")

	if _, err := service.StartQuiz(context.Background(), quiz.ID, "owner-1"); err != nil {
		t.Fatalf("start quiz: %v", err)
	}

	late := dialWS(t, server, quiz.RoomCode, "Bob")
	typ, _ := readNext(t, late)
	if typ != "error" {
		t.Fatalf("expected error for late joiner, got %s", typ)
	}
}
