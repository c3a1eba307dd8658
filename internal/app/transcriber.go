package app

import (
	"context"
	"fmt"
	"log"

	"reading-fluency-service/internal/domain"
)

// Transcription is what the external speech-to-text collaborator produces
// for an uploaded audio artifact.
type Transcription struct {
	Transcript      string
	DurationSeconds float64
}

// Transcriber is the external speech-to-text boundary. The engine never sees
// raw audio, only the artifact reference handed to the collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string) (Transcription, error)
}

// transcribeWithRetry calls the collaborator with exponential backoff and
// maps exhaustion to domain.ErrTranscriptionUnavailable.
func (s *SessionService) transcribeWithRetry(ctx context.Context, audioRef string) (Transcription, error) {
	if s.stt == nil {
		return Transcription{}, domain.ErrTranscriptionUnavailable
	}

	backoff := s.opts.TranscribeBackoff
	var lastErr error
	for attempt := 1; attempt <= s.opts.TranscribeAttempts; attempt++ {
		result, err := s.stt.Transcribe(ctx, audioRef)
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Printf("transcription attempt %d/%d failed: %v", attempt, s.opts.TranscribeAttempts, err)
		if attempt == s.opts.TranscribeAttempts {
			break
		}
		if err := s.sleep(ctx, backoff); err != nil {
			return Transcription{}, err
		}
		backoff *= 2
	}
	return Transcription{}, fmt.Errorf("%w: %v", domain.ErrTranscriptionUnavailable, lastErr)
}
