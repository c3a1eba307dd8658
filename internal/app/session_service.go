package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"reading-fluency-service/internal/align"
	"reading-fluency-service/internal/domain"
	"reading-fluency-service/internal/scoring"
	"reading-fluency-service/internal/textnorm"
)

// SessionStore persists reading sessions. Transition is the compare-and-set
// primitive: it must atomically verify the current status, apply mutate, and
// move the session to the new status, failing with domain.ErrInvalidState
// when the session is not in the expected predecessor state. Implementations
// additionally enforce the single-COMPLETED-attempt invariant per
// (student, task).
type SessionStore interface {
	Create(ctx context.Context, session domain.ReadingSession) error
	Get(ctx context.Context, id string) (domain.ReadingSession, error)
	FindCompleted(ctx context.Context, studentID, taskID string) (*domain.ReadingSession, error)
	Transition(ctx context.Context, id string, from, to domain.SessionStatus, mutate func(*domain.ReadingSession)) (domain.ReadingSession, error)
	ListCompleted(ctx context.Context, competitionID string) ([]domain.ReadingSession, error)
	AbandonExpired(ctx context.Context, now time.Time) (int, error)
}

// TaskRepository loads reading tasks (from cache/backing store).
type TaskRepository interface {
	GetTask(ctx context.Context, taskID string) (domain.ReadingTask, error)
}

// SessionOptions tunes lifecycle and scoring behavior.
type SessionOptions struct {
	Weights     scoring.Weights
	Align       align.Options
	BaselineWPM func(difficulty string) float64
	GracePeriod time.Duration
	// Voice-recording transcription retry policy.
	TranscribeAttempts int
	TranscribeBackoff  time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.Weights.Completion+o.Weights.Words+o.Weights.Time+o.Weights.Questions <= 0 {
		o.Weights = scoring.DefaultWeights()
	}
	if o.BaselineWPM == nil {
		o.BaselineWPM = func(string) float64 { return 90 }
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 2 * time.Minute
	}
	if o.TranscribeAttempts <= 0 {
		o.TranscribeAttempts = 3
	}
	if o.TranscribeBackoff <= 0 {
		o.TranscribeBackoff = 500 * time.Millisecond
	}
	return o
}

// SessionService owns the reading-attempt lifecycle: every status change
// goes through the store's compare-and-set, so duplicate or out-of-order
// requests cannot double-score a session.
type SessionService struct {
	store SessionStore
	tasks TaskRepository
	stt   Transcriber
	opts  SessionOptions
	now   func() time.Time
	newID func() string
	sleep func(context.Context, time.Duration) error
}

func NewSessionService(store SessionStore, tasks TaskRepository, stt Transcriber, opts SessionOptions) *SessionService {
	return &SessionService{
		store: store,
		tasks: tasks,
		stt:   stt,
		opts:  opts.withDefaults(),
		now:   time.Now,
		newID: uuid.NewString,
		sleep: sleepCtx,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// StartSession creates a session for the student and moves it to STARTED.
// A prior completed attempt fails with domain.ErrAlreadyCompleted, returning
// the existing session alongside the error.
func (s *SessionService) StartSession(ctx context.Context, taskID, studentID string) (domain.ReadingSession, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	if err := s.taskActive(task); err != nil {
		return domain.ReadingSession{}, err
	}

	if prior, err := s.store.FindCompleted(ctx, studentID, taskID); err != nil {
		return domain.ReadingSession{}, err
	} else if prior != nil {
		return *prior, domain.ErrAlreadyCompleted
	}

	session := domain.ReadingSession{
		ID:            s.newID(),
		TaskID:        task.ID,
		CompetitionID: task.CompetitionID,
		Day:           task.Day,
		StudentID:     studentID,
		Status:        domain.StatusCreated,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return domain.ReadingSession{}, err
	}
	return s.store.Transition(ctx, session.ID, domain.StatusCreated, domain.StatusStarted, nil)
}

// BeginReading starts the timed attempt, stamping started_at and the
// abandonment deadline.
func (s *SessionService) BeginReading(ctx context.Context, sessionID string) (domain.ReadingSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	task, err := s.tasks.GetTask(ctx, session.TaskID)
	if err != nil {
		return domain.ReadingSession{}, err
	}

	startedAt := s.now()
	deadline := startedAt.Add(time.Duration(task.TimeLimitSeconds)*time.Second + s.opts.GracePeriod)
	return s.store.Transition(ctx, sessionID, domain.StatusStarted, domain.StatusReading, func(sess *domain.ReadingSession) {
		sess.StartedAt = startedAt
		sess.Deadline = deadline
	})
}

// SubmitReading accepts the live-transcript path's final transcript and
// elapsed duration. Tasks with comprehension questions advance to QUESTIONS;
// tasks without finalize immediately. Submitting to an already-completed
// session returns the stored breakdown unchanged.
func (s *SessionService) SubmitReading(ctx context.Context, sessionID, transcript string, durationSeconds float64) (domain.ReadingSession, error) {
	return s.acceptTranscript(ctx, sessionID, domain.StatusReading, transcript, durationSeconds)
}

// SubmitVoiceRecording parks the session in VOICE_RECORD until the uploaded
// audio artifact has been transcribed out-of-band.
func (s *SessionService) SubmitVoiceRecording(ctx context.Context, sessionID, audioRef string) (domain.ReadingSession, error) {
	return s.store.Transition(ctx, sessionID, domain.StatusReading, domain.StatusVoiceRecord, func(sess *domain.ReadingSession) {
		sess.AudioRef = audioRef
	})
}

// AnalyzeRecording asks the external transcriber for the recording's
// transcript, retrying with backoff. On success the session follows the same
// path as a live-transcript submission; on exhaustion it stays in
// VOICE_RECORD and the failure is surfaced, never scored as zero.
func (s *SessionService) AnalyzeRecording(ctx context.Context, sessionID string) (domain.ReadingSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	if session.Status == domain.StatusCompleted && session.Breakdown != nil {
		return session, nil
	}
	if session.Status != domain.StatusVoiceRecord {
		return domain.ReadingSession{}, domain.ErrInvalidState
	}

	result, err := s.transcribeWithRetry(ctx, session.AudioRef)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	return s.acceptTranscript(ctx, sessionID, domain.StatusVoiceRecord, result.Transcript, result.DurationSeconds)
}

// SubmitAnswers records the comprehension answers and finalizes the session.
// The answer list must cover every question exactly once.
func (s *SessionService) SubmitAnswers(ctx context.Context, sessionID string, answers []int) (domain.ReadingSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	if session.Status == domain.StatusCompleted && session.Breakdown != nil {
		return session, nil
	}

	task, err := s.tasks.GetTask(ctx, session.TaskID)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	if len(answers) != len(task.Questions) {
		return domain.ReadingSession{}, domain.ErrAnswerCount
	}
	correct := 0
	for i, q := range task.Questions {
		if answers[i] == q.CorrectOption {
			correct++
		}
	}

	breakdown, err := s.computeBreakdown(task, session.Transcript, session.ReadingDurationSeconds, correct, len(task.Questions))
	if err != nil {
		return domain.ReadingSession{}, err
	}

	completedAt := s.now()
	updated, err := s.store.Transition(ctx, sessionID, domain.StatusQuestions, domain.StatusCompleted, func(sess *domain.ReadingSession) {
		sess.Answers = append([]int(nil), answers...)
		sess.QuestionsCorrect = correct
		sess.Breakdown = &breakdown
		sess.CompletedAt = completedAt
	})
	if errors.Is(err, domain.ErrInvalidState) {
		// A concurrent duplicate may have won the compare-and-set; the
		// stored result is returned rather than a second distinct score.
		return s.completedOr(ctx, sessionID, err)
	}
	return updated, err
}

// GetMyResults returns the student's per-day breakdowns plus weekly totals
// for one competition.
func (s *SessionService) GetMyResults(ctx context.Context, studentID, competitionID string) (domain.StudentResults, error) {
	sessions, err := s.store.ListCompleted(ctx, competitionID)
	if err != nil {
		return domain.StudentResults{}, err
	}

	results := domain.StudentResults{StudentID: studentID, CompetitionID: competitionID}
	var completionSum, durationSum float64
	for _, sess := range sessions {
		if sess.StudentID != studentID || sess.Breakdown == nil {
			continue
		}
		results.Days = append(results.Days, domain.DayResult{
			Day:                    sess.Day,
			TaskID:                 sess.TaskID,
			ReadingDurationSeconds: sess.ReadingDurationSeconds,
			Breakdown:              *sess.Breakdown,
		})
		results.TotalScore += sess.Breakdown.TotalScore
		results.QuestionsCorrect += sess.QuestionsCorrect
		completionSum += sess.Breakdown.CompletionPercentage
		durationSum += sess.ReadingDurationSeconds
	}
	if n := len(results.Days); n > 0 {
		results.AvgCompletion = completionSum / float64(n)
		results.AvgDurationSeconds = durationSum / float64(n)
		sort.Slice(results.Days, func(i, j int) bool { return results.Days[i].Day < results.Days[j].Day })
	}
	return results, nil
}

// acceptTranscript converges the live-transcript and voice-recording paths:
// both supply (transcript, duration) from their respective predecessor state.
func (s *SessionService) acceptTranscript(ctx context.Context, sessionID string, from domain.SessionStatus, transcript string, durationSeconds float64) (domain.ReadingSession, error) {
	if durationSeconds < 0 {
		return domain.ReadingSession{}, fmt.Errorf("reading duration %v negative", durationSeconds)
	}

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	if session.Status == domain.StatusCompleted && session.Breakdown != nil {
		return session, nil
	}

	task, err := s.tasks.GetTask(ctx, session.TaskID)
	if err != nil {
		return domain.ReadingSession{}, err
	}

	if len(task.Questions) > 0 {
		return s.store.Transition(ctx, sessionID, from, domain.StatusQuestions, func(sess *domain.ReadingSession) {
			sess.Transcript = transcript
			sess.ReadingDurationSeconds = durationSeconds
		})
	}

	breakdown, err := s.computeBreakdown(task, transcript, durationSeconds, 0, 0)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	completedAt := s.now()
	updated, err := s.store.Transition(ctx, sessionID, from, domain.StatusCompleted, func(sess *domain.ReadingSession) {
		sess.Transcript = transcript
		sess.ReadingDurationSeconds = durationSeconds
		sess.Breakdown = &breakdown
		sess.CompletedAt = completedAt
	})
	if errors.Is(err, domain.ErrInvalidState) {
		return s.completedOr(ctx, sessionID, err)
	}
	return updated, err
}

// computeBreakdown runs alignment and scoring for a finalizing session.
func (s *SessionService) computeBreakdown(task domain.ReadingTask, transcript string, durationSeconds float64, questionsCorrect, questionsTotal int) (domain.ScoreBreakdown, error) {
	referenceWords := textnorm.Normalize(task.ReferenceText)
	spokenWords := textnorm.Normalize(transcript)

	alignment := align.Align(referenceWords, spokenWords, s.opts.Align)
	if alignment.DegenerateReference {
		return domain.ScoreBreakdown{}, domain.ErrDegenerateTask
	}

	target := scoring.TargetDuration(len(referenceWords), s.opts.BaselineWPM(task.Difficulty))
	return scoring.Score(scoring.Input{
		CompletionPercentage: alignment.CompletionPercentage,
		WordsRead:            alignment.WordsRead,
		TotalWords:           len(referenceWords),
		ReadingDurationSecs:  durationSeconds,
		TargetDurationSecs:   target,
		QuestionsCorrect:     questionsCorrect,
		QuestionsTotal:       questionsTotal,
	}, s.opts.Weights)
}

// completedOr resolves a lost compare-and-set race: if the session finished
// concurrently its stored result wins, otherwise the original error stands.
func (s *SessionService) completedOr(ctx context.Context, sessionID string, original error) (domain.ReadingSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err == nil && session.Status == domain.StatusCompleted && session.Breakdown != nil {
		return session, nil
	}
	return domain.ReadingSession{}, original
}

func (s *SessionService) taskActive(task domain.ReadingTask) error {
	now := s.now()
	if !task.ActiveFrom.IsZero() && now.Before(task.ActiveFrom) {
		return domain.ErrTaskNotActive
	}
	if !task.ActiveUntil.IsZero() && now.After(task.ActiveUntil) {
		return domain.ErrTaskNotActive
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
