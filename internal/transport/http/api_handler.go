package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ElegantFalcon/Quizzy/internal/app"
	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// APIHandler exposes the host-facing REST surface: authoring quizzes and
// driving a session through its lifecycle. The acting user is taken from the
// X-User-ID header; authorization against the quiz owner happens in the
// service layer.
type APIHandler struct {
	service *app.QuizService
	logger  *slog.Logger
}

func NewAPIHandler(service *app.QuizService, logger *slog.Logger) *APIHandler {
	return &APIHandler{service: service, logger: logger}
}

// Register mounts the host routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quizzes", h.createQuiz)
	mux.HandleFunc("GET /api/quizzes/{id}", h.getQuiz)
	mux.HandleFunc("POST /api/quizzes/{id}/waiting-room", h.openWaitingRoom)
	mux.HandleFunc("POST /api/quizzes/{id}/start", h.sessionAction(h.service.StartQuiz))
	mux.HandleFunc("POST /api/quizzes/{id}/next", h.sessionAction(h.service.AdvanceQuestion))
	mux.HandleFunc("POST /api/quizzes/{id}/finish", h.sessionAction(h.service.FinishQuiz))
	mux.HandleFunc("POST /api/quizzes/{id}/stop", h.sessionAction(h.service.StopSession))
	mux.HandleFunc("GET /api/quizzes/{id}/leaderboard", h.leaderboard)
}

func (h *APIHandler) createQuiz(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var input app.NewQuiz
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	quiz, err := h.service.CreateQuiz(r.Context(), actorID, input)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("quiz created", "quiz_id", quiz.ID, "room_code", quiz.RoomCode, "owner_id", actorID)
	h.writeJSON(w, http.StatusCreated, quiz)
}

func (h *APIHandler) getQuiz(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	quiz, err := h.service.GetQuiz(r.Context(), r.PathValue("id"), actorID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quiz)
}

func (h *APIHandler) openWaitingRoom(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	quizID := r.PathValue("id")
	quiz, err := h.service.OpenWaitingRoom(r.Context(), quizID, actorID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("waiting room opened", "quiz_id", quizID, "room_code", quiz.RoomCode)
	h.writeJSON(w, http.StatusOK, quiz)
}

// sessionAction adapts the lifecycle operations, which all share the same
// signature, into handlers.
func (h *APIHandler) sessionAction(op func(ctx context.Context, quizID, actorID string) (domain.SessionSnapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := h.actor(w, r)
		if !ok {
			return
		}
		quizID := r.PathValue("id")
		snap, err := op(r.Context(), quizID, actorID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		h.logger.Info("session transition", "quiz_id", quizID, "status", snap.Status, "active_question", snap.ActiveQuestion)
		h.writeJSON(w, http.StatusOK, snap)
	}
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("id"), actorID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := r.Header.Get("X-User-ID")
	if actorID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", false
	}
	return actorID, true
}

func (h *APIHandler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.writeError(w, status, "internal error")
		return
	}
	h.writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotJoinable),
		errors.Is(err, domain.ErrRoomCodeTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("write response", "error", err)
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
