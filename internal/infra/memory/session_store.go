package memory

import (
	"context"
	"sync"
	"time"

	"reading-fluency-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. A single
// mutex makes every Transition a compare-and-set, and the completed index
// stands in for the database's partial unique constraint on
// (student_id, task_id).
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]domain.ReadingSession
	completed map[[2]string]string // (studentID, taskID) -> sessionID
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]domain.ReadingSession),
		completed: make(map[[2]string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.ReadingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.completed[completedKey(session.StudentID, session.TaskID)]; ok {
		return domain.ErrAlreadyCompleted
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (domain.ReadingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ReadingSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) FindCompleted(_ context.Context, studentID, taskID string) (*domain.ReadingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.completed[completedKey(studentID, taskID)]
	if !ok {
		return nil, nil
	}
	session := s.sessions[id]
	return &session, nil
}

func (s *SessionStore) Transition(_ context.Context, id string, from, to domain.SessionStatus, mutate func(*domain.ReadingSession)) (domain.ReadingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return domain.ReadingSession{}, domain.ErrSessionNotFound
	}
	if session.Status != from {
		return domain.ReadingSession{}, domain.ErrInvalidState
	}
	if to == domain.StatusCompleted {
		key := completedKey(session.StudentID, session.TaskID)
		if winner, taken := s.completed[key]; taken && winner != id {
			return domain.ReadingSession{}, domain.ErrAlreadyCompleted
		}
		s.completed[key] = id
	}

	if mutate != nil {
		mutate(&session)
	}
	session.Status = to
	s.sessions[id] = session
	return session, nil
}

func (s *SessionStore) ListCompleted(_ context.Context, competitionID string) ([]domain.ReadingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ReadingSession
	for _, session := range s.sessions {
		if session.Status == domain.StatusCompleted && session.CompetitionID == competitionID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *SessionStore) AbandonExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	abandoned := 0
	for id, session := range s.sessions {
		if session.Status.Terminal() || session.Deadline.IsZero() {
			continue
		}
		if session.Deadline.Before(now) {
			session.Status = domain.StatusAbandoned
			s.sessions[id] = session
			abandoned++
		}
	}
	return abandoned, nil
}

func completedKey(studentID, taskID string) [2]string {
	return [2]string{studentID, taskID}
}
