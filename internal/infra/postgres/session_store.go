package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"reading-fluency-service/internal/domain"
)

const uniqueViolation = "23505"

const sessionColumns = `id, task_id, competition_id, day, student_id, status,
	started_at, deadline, transcript, reading_duration_seconds, audio_ref,
	answers, questions_correct, breakdown, completed_at`

// SessionStore persists reading sessions in Postgres. Transitions take a row
// lock and re-check the status inside the transaction, which makes them a
// compare-and-set; the reading_sessions_one_completed partial unique index
// closes the duplicate-completion race across concurrent submissions.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, session domain.ReadingSession) error {
	answers, breakdown, err := marshalSessionJSON(session)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reading_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		session.ID, session.TaskID, session.CompetitionID, session.Day, session.StudentID, string(session.Status),
		nullTime(session.StartedAt), nullTime(session.Deadline), session.Transcript, session.ReadingDurationSeconds, session.AudioRef,
		answers, session.QuestionsCorrect, breakdown, nullTime(session.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.ReadingSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM reading_sessions WHERE id=$1`, id)
	return scanSession(row)
}

func (s *SessionStore) FindCompleted(ctx context.Context, studentID, taskID string) (*domain.ReadingSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM reading_sessions
		WHERE student_id=$1 AND task_id=$2 AND status=$3`,
		studentID, taskID, string(domain.StatusCompleted))
	session, err := scanSession(row)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionStore) Transition(ctx context.Context, id string, from, to domain.SessionStatus, mutate func(*domain.ReadingSession)) (domain.ReadingSession, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ReadingSession{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM reading_sessions WHERE id=$1 FOR UPDATE`, id)
	session, err := scanSession(row)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	if session.Status != from {
		return domain.ReadingSession{}, domain.ErrInvalidState
	}

	if mutate != nil {
		mutate(&session)
	}
	session.Status = to

	answers, breakdown, err := marshalSessionJSON(session)
	if err != nil {
		return domain.ReadingSession{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE reading_sessions SET
			status=$2, started_at=$3, deadline=$4, transcript=$5,
			reading_duration_seconds=$6, audio_ref=$7, answers=$8,
			questions_correct=$9, breakdown=$10, completed_at=$11
		WHERE id=$1`,
		id, string(session.Status), nullTime(session.StartedAt), nullTime(session.Deadline), session.Transcript,
		session.ReadingDurationSeconds, session.AudioRef, answers,
		session.QuestionsCorrect, breakdown, nullTime(session.CompletedAt),
	)
	if isUniqueViolation(err) {
		return domain.ReadingSession{}, domain.ErrAlreadyCompleted
	}
	if err != nil {
		return domain.ReadingSession{}, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ReadingSession{}, domain.ErrAlreadyCompleted
		}
		return domain.ReadingSession{}, fmt.Errorf("commit transition: %w", err)
	}
	return session, nil
}

func (s *SessionStore) ListCompleted(ctx context.Context, competitionID string) ([]domain.ReadingSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM reading_sessions
		WHERE competition_id=$1 AND status=$2`,
		competitionID, string(domain.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ReadingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SessionStore) AbandonExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reading_sessions SET status=$1
		WHERE status NOT IN ($2,$3) AND deadline IS NOT NULL AND deadline < $4`,
		string(domain.StatusAbandoned), string(domain.StatusCompleted), string(domain.StatusAbandoned), now)
	if err != nil {
		return 0, fmt.Errorf("abandon expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (domain.ReadingSession, error) {
	var (
		session    domain.ReadingSession
		status     string
		startedAt  *time.Time
		deadline   *time.Time
		completed  *time.Time
		answersRaw []byte
		breakRaw   []byte
	)
	err := row.Scan(
		&session.ID, &session.TaskID, &session.CompetitionID, &session.Day, &session.StudentID, &status,
		&startedAt, &deadline, &session.Transcript, &session.ReadingDurationSeconds, &session.AudioRef,
		&answersRaw, &session.QuestionsCorrect, &breakRaw, &completed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ReadingSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.ReadingSession{}, fmt.Errorf("scan session: %w", err)
	}

	session.Status = domain.SessionStatus(status)
	if startedAt != nil {
		session.StartedAt = *startedAt
	}
	if deadline != nil {
		session.Deadline = *deadline
	}
	if completed != nil {
		session.CompletedAt = *completed
	}
	if len(answersRaw) > 0 {
		if err := json.Unmarshal(answersRaw, &session.Answers); err != nil {
			return domain.ReadingSession{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	if len(breakRaw) > 0 {
		var b domain.ScoreBreakdown
		if err := json.Unmarshal(breakRaw, &b); err != nil {
			return domain.ReadingSession{}, fmt.Errorf("unmarshal breakdown: %w", err)
		}
		session.Breakdown = &b
	}
	return session, nil
}

func marshalSessionJSON(session domain.ReadingSession) (answers, breakdown []byte, err error) {
	if session.Answers != nil {
		if answers, err = json.Marshal(session.Answers); err != nil {
			return nil, nil, fmt.Errorf("marshal answers: %w", err)
		}
	}
	if session.Breakdown != nil {
		if breakdown, err = json.Marshal(session.Breakdown); err != nil {
			return nil, nil, fmt.Errorf("marshal breakdown: %w", err)
		}
	}
	return answers, breakdown, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
