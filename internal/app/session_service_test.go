package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reading-fluency-service/internal/app"
	"reading-fluency-service/internal/domain"
	"reading-fluency-service/internal/infra/memory"
)

const (
	taskWithQuestions = "task-q"
	taskPlainReading  = "task-plain"
)

// testTasks: ten-word reference; baseline WPM of 12 puts the target duration
// at 50 seconds.
func testTasks() map[string]domain.ReadingTask {
	questions := []domain.Question{
		{Prompt: "q1", Options: []string{"a", "b"}, CorrectOption: 0},
		{Prompt: "q2", Options: []string{"a", "b", "c"}, CorrectOption: 2},
	}
	return map[string]domain.ReadingTask{
		taskWithQuestions: {
			ID:               taskWithQuestions,
			CompetitionID:    "week-1",
			Day:              "mon",
			ReferenceText:    "one two three four five six seven eight nine ten",
			Difficulty:       "grade2",
			TimeLimitSeconds: 120,
			Questions:        questions,
		},
		taskPlainReading: {
			ID:               taskPlainReading,
			CompetitionID:    "week-1",
			Day:              "tue",
			ReferenceText:    "one two three four five six seven eight nine ten",
			Difficulty:       "grade2",
			TimeLimitSeconds: 120,
		},
	}
}

func newTestService(t *testing.T, stt app.Transcriber) (*app.SessionService, *memory.SessionStore) {
	t.Helper()
	store := memory.NewSessionStore()
	tasks := memory.NewTaskRepository(memory.NewStaticTaskLoader(testTasks()), 5*time.Minute)
	service := app.NewSessionService(store, tasks, stt, app.SessionOptions{
		BaselineWPM:        func(string) float64 { return 12 },
		TranscribeAttempts: 3,
		TranscribeBackoff:  time.Millisecond,
	})
	return service, store
}

func TestFullLifecycleWithQuestions(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	session, err := service.StartSession(ctx, taskWithQuestions, "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Status != domain.StatusStarted {
		t.Fatalf("expected STARTED, got %s", session.Status)
	}

	session, err = service.BeginReading(ctx, session.ID)
	if err != nil {
		t.Fatalf("begin reading: %v", err)
	}
	if session.Status != domain.StatusReading || session.StartedAt.IsZero() {
		t.Fatalf("expected READING with started_at, got %+v", session)
	}

	// Eight of ten reference words, read in 40s against the 50s target.
	session, err = service.SubmitReading(ctx, session.ID, "one two three four five six seven eight", 40)
	if err != nil {
		t.Fatalf("submit reading: %v", err)
	}
	if session.Status != domain.StatusQuestions {
		t.Fatalf("expected QUESTIONS, got %s", session.Status)
	}

	session, err = service.SubmitAnswers(ctx, session.ID, []int{0, 2})
	if err != nil {
		t.Fatalf("submit answers: %v", err)
	}
	if session.Status != domain.StatusCompleted || session.Breakdown == nil {
		t.Fatalf("expected COMPLETED with breakdown, got %+v", session)
	}

	b := session.Breakdown
	if b.CompletionPercentage != 80 {
		t.Fatalf("expected completion 80, got %v", b.CompletionPercentage)
	}
	if b.ScoreCompletion != 20 || b.ScoreWords != 20 {
		t.Fatalf("expected completion/words components 20/20, got %v/%v", b.ScoreCompletion, b.ScoreWords)
	}
	if b.ScoreTime != 25 {
		t.Fatalf("expected time component saturated at 25, got %v", b.ScoreTime)
	}
	if b.ScoreQuestions != 25 {
		t.Fatalf("expected question component 25, got %v", b.ScoreQuestions)
	}
	if b.TotalScore != 90 {
		t.Fatalf("expected total 90, got %v", b.TotalScore)
	}
}

func TestPlainReadingFinalizesWithoutQuestions(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	session, _ := service.StartSession(ctx, taskPlainReading, "u1")
	session, _ = service.BeginReading(ctx, session.ID)
	session, err := service.SubmitReading(ctx, session.ID, "one two three four five six seven eight nine ten", 40)
	if err != nil {
		t.Fatalf("submit reading: %v", err)
	}
	if session.Status != domain.StatusCompleted || session.Breakdown == nil {
		t.Fatalf("expected COMPLETED, got %+v", session)
	}
	if session.Breakdown.ScoreQuestions != 0 {
		t.Fatalf("expected no question component, got %v", session.Breakdown.ScoreQuestions)
	}
	if session.Breakdown.TotalScore < 99.999 {
		t.Fatalf("expected rescaled full score, got %v", session.Breakdown.TotalScore)
	}
}

func TestSecondAttemptRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	session, _ := service.StartSession(ctx, taskPlainReading, "u1")
	session, _ = service.BeginReading(ctx, session.ID)
	first, err := service.SubmitReading(ctx, session.ID, "one two three", 30)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	again, err := service.StartSession(ctx, taskPlainReading, "u1")
	if !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected already-completed, got %v", err)
	}
	if again.ID != first.ID || again.Breakdown == nil {
		t.Fatalf("expected the original completed session back, got %+v", again)
	}
}

func TestResubmissionReturnsStoredBreakdown(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	session, _ := service.StartSession(ctx, taskWithQuestions, "u1")
	session, _ = service.BeginReading(ctx, session.ID)
	session, _ = service.SubmitReading(ctx, session.ID, "one two three four five", 50)
	first, err := service.SubmitAnswers(ctx, session.ID, []int{0, 2})
	if err != nil {
		t.Fatalf("answers: %v", err)
	}

	second, err := service.SubmitAnswers(ctx, session.ID, []int{1, 1})
	if err != nil {
		t.Fatalf("resubmission: %v", err)
	}
	if *second.Breakdown != *first.Breakdown {
		t.Fatalf("resubmission produced a different score: %+v vs %+v", second.Breakdown, first.Breakdown)
	}
}

func TestSubmitReadingRequiresReadingState(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	session, _ := service.StartSession(ctx, taskWithQuestions, "u1")
	if _, err := service.SubmitReading(ctx, session.ID, "one two", 10); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state before BeginReading, got %v", err)
	}
}

func TestSubmitAnswersValidatesCount(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	session, _ := service.StartSession(ctx, taskWithQuestions, "u1")
	session, _ = service.BeginReading(ctx, session.ID)
	session, _ = service.SubmitReading(ctx, session.ID, "one two three", 30)

	if _, err := service.SubmitAnswers(ctx, session.ID, []int{0}); !errors.Is(err, domain.ErrAnswerCount) {
		t.Fatalf("expected answer-count error, got %v", err)
	}
}

func TestTaskWindowEnforced(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	closed := testTasks()[taskPlainReading]
	closed.ActiveFrom = time.Now().Add(-48 * time.Hour)
	closed.ActiveUntil = time.Now().Add(-24 * time.Hour)
	tasks := memory.NewTaskRepository(memory.NewStaticTaskLoader(map[string]domain.ReadingTask{
		taskPlainReading: closed,
	}), 5*time.Minute)
	service := app.NewSessionService(store, tasks, nil, app.SessionOptions{})

	if _, err := service.StartSession(ctx, taskPlainReading, "u1"); !errors.Is(err, domain.ErrTaskNotActive) {
		t.Fatalf("expected task-not-active, got %v", err)
	}
}

type fakeTranscriber struct {
	failures int
	calls    int
	result   app.Transcription
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) (app.Transcription, error) {
	f.calls++
	if f.calls <= f.failures {
		return app.Transcription{}, errors.New("stt backend overloaded")
	}
	return f.result, nil
}

func TestVoiceRecordingPathRetriesThenScores(t *testing.T) {
	ctx := context.Background()
	stt := &fakeTranscriber{
		failures: 2,
		result:   app.Transcription{Transcript: "one two three four five six seven eight nine ten", DurationSeconds: 45},
	}
	service, _ := newTestService(t, stt)

	session, _ := service.StartSession(ctx, taskPlainReading, "u1")
	session, _ = service.BeginReading(ctx, session.ID)
	session, err := service.SubmitVoiceRecording(ctx, session.ID, "s3://recordings/u1.ogg")
	if err != nil {
		t.Fatalf("submit voice: %v", err)
	}
	if session.Status != domain.StatusVoiceRecord {
		t.Fatalf("expected VOICE_RECORD, got %s", session.Status)
	}

	session, err = service.AnalyzeRecording(ctx, session.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if stt.calls != 3 {
		t.Fatalf("expected 3 transcription attempts, got %d", stt.calls)
	}
	if session.Status != domain.StatusCompleted || session.Breakdown == nil {
		t.Fatalf("expected completed session, got %+v", session)
	}
	if session.Breakdown.CompletionPercentage != 100 {
		t.Fatalf("expected full completion, got %v", session.Breakdown.CompletionPercentage)
	}
}

func TestVoiceRecordingExhaustionSurfacesFailure(t *testing.T) {
	ctx := context.Background()
	stt := &fakeTranscriber{failures: 10}
	service, store := newTestService(t, stt)

	session, _ := service.StartSession(ctx, taskPlainReading, "u1")
	session, _ = service.BeginReading(ctx, session.ID)
	session, _ = service.SubmitVoiceRecording(ctx, session.ID, "s3://recordings/u1.ogg")

	if _, err := service.AnalyzeRecording(ctx, session.ID); !errors.Is(err, domain.ErrTranscriptionUnavailable) {
		t.Fatalf("expected transcription-unavailable, got %v", err)
	}

	// The session must not be silently scored; it stays parked for the sweep.
	current, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Status != domain.StatusVoiceRecord || current.Breakdown != nil {
		t.Fatalf("expected unscored VOICE_RECORD session, got %+v", current)
	}
}

func TestGetMyResults(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	s1, _ := service.StartSession(ctx, taskWithQuestions, "u1")
	s1, _ = service.BeginReading(ctx, s1.ID)
	s1, _ = service.SubmitReading(ctx, s1.ID, "one two three four five six seven eight nine ten", 50)
	if _, err := service.SubmitAnswers(ctx, s1.ID, []int{0, 2}); err != nil {
		t.Fatalf("answers: %v", err)
	}

	s2, _ := service.StartSession(ctx, taskPlainReading, "u1")
	s2, _ = service.BeginReading(ctx, s2.ID)
	if _, err := service.SubmitReading(ctx, s2.ID, "one two three four five six seven eight nine ten", 50); err != nil {
		t.Fatalf("submit: %v", err)
	}

	results, err := service.GetMyResults(ctx, "u1", "week-1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results.Days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(results.Days))
	}
	if results.Days[0].Day != "mon" || results.Days[1].Day != "tue" {
		t.Fatalf("expected day-ordered results, got %+v", results.Days)
	}
	if results.QuestionsCorrect != 2 {
		t.Fatalf("expected 2 correct answers in totals, got %d", results.QuestionsCorrect)
	}
	if results.AvgCompletion != 100 {
		t.Fatalf("expected 100%% average completion, got %v", results.AvgCompletion)
	}
}
