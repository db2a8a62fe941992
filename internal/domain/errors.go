package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz record could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a live session does not exist.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrRoomNotFound is returned when no open session matches a room code.
	ErrRoomNotFound = errors.New("room code not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrInvalidTransition is returned for any status edge outside the state machine.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNotOwner is returned when a mutating operation comes from anyone but the quiz owner.
	ErrNotOwner = errors.New("operation restricted to quiz owner")
	// ErrNotJoinable is returned when joining a session that is not in the waiting stage.
	ErrNotJoinable = errors.New("session is not accepting participants")
	// ErrInvalidQuiz indicates the authored content breaks a structural invariant.
	ErrInvalidQuiz = errors.New("invalid quiz content")
	// ErrRoomCodeTaken indicates the room code is held by another non-finished quiz.
	ErrRoomCodeTaken = errors.New("room code already in use")
)
