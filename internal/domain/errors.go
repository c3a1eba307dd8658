package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("reading session not found")
	// ErrTaskNotFound indicates the task content could not be loaded.
	ErrTaskNotFound = errors.New("reading task not found")
	// ErrTaskNotActive indicates the task is outside its competition window.
	ErrTaskNotActive = errors.New("reading task not active")
	// ErrAlreadyCompleted indicates the student already has a completed
	// attempt for the task; callers recover by returning the stored result.
	ErrAlreadyCompleted = errors.New("task already completed by student")
	// ErrInvalidState indicates an operation attempted out of lifecycle order.
	ErrInvalidState = errors.New("session is not in the required state")
	// ErrDegenerateTask indicates a task whose reference text has no words.
	// This is a content-authoring bug and is rejected, never scored as 0%.
	ErrDegenerateTask = errors.New("task reference text has no words")
	// ErrTranscriptionUnavailable indicates the external transcriber failed
	// after all retries; the session is surfaced as failed, not scored.
	ErrTranscriptionUnavailable = errors.New("transcription unavailable")
	// ErrAnswerCount indicates the answer list does not cover every question
	// exactly once.
	ErrAnswerCount = errors.New("answers must cover every question exactly once")
)
