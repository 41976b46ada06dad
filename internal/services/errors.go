package services

import (
	"errors"

	"github.com/SAP-F-2025/session-runtime/internal/runtime"
)

var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionAlreadySubmitted = errors.New("session has already been submitted")
	ErrSurveyHasNoQuestions    = errors.New("survey has no questions")
	ErrSessionNotRunning       = errors.New("no running session engine for this id")
)

// IsNotFoundError reports whether err should map to a 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionNotRunning) ||
		errors.Is(err, runtime.ErrQuestionNotFound) ||
		errors.Is(err, runtime.ErrOptionNotFound)
}

// IsConflictError reports whether err should map to a 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSessionAlreadySubmitted) ||
		errors.Is(err, runtime.ErrAlreadySubmitted) ||
		errors.Is(err, runtime.ErrSessionTerminal) ||
		errors.Is(err, runtime.ErrInvalidTransition) ||
		errors.Is(err, runtime.ErrNotActive)
}
