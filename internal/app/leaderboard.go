package app

import (
	"context"
	"sort"
	"time"

	"reading-fluency-service/internal/domain"
)

// FastReaderMinCompletion is the average completion percentage a student
// must hold across the week to qualify for the fast_reader and
// accurate_reader boards.
const FastReaderMinCompletion = 90.0

// TestScoreProvider supplies the external test-taking subsystem's scores,
// consumed as opaque numbers by the champion and test_master rankings.
type TestScoreProvider interface {
	TestScores(ctx context.Context, competitionID string) (map[string]float64, error)
}

// Aggregator produces ranked leaderboard views.
type Aggregator interface {
	Leaderboard(ctx context.Context, competitionID string, group domain.LeaderboardGroup) (domain.Leaderboard, error)
}

// LeaderboardService recomputes the four competitive rankings from completed
// sessions. It is a pure projection: rebuilding it from scratch has no side
// effects and it never writes back to the session store.
type LeaderboardService struct {
	store      SessionStore
	testScores TestScoreProvider
	now        func() time.Time
}

func NewLeaderboardService(store SessionStore, testScores TestScoreProvider) *LeaderboardService {
	return &LeaderboardService{store: store, testScores: testScores, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (l *LeaderboardService) WithClock(now func() time.Time) *LeaderboardService {
	l.now = now
	return l
}

// weeklyStats is one student's aggregate over the competition week.
type weeklyStats struct {
	studentID        string
	readingTotal     float64
	testScore        float64
	completionSum    float64
	durationSum      float64
	questionsCorrect int
	days             int
	earliestStart    time.Time
}

func (w weeklyStats) avgCompletion() float64 {
	if w.days == 0 {
		return 0
	}
	return w.completionSum / float64(w.days)
}

func (w weeklyStats) avgDuration() float64 {
	if w.days == 0 {
		return 0
	}
	return w.durationSum / float64(w.days)
}

func (w weeklyStats) totalScore() float64 {
	return w.readingTotal + w.testScore
}

// Leaderboard builds the requested group's ranking for a competition week.
func (l *LeaderboardService) Leaderboard(ctx context.Context, competitionID string, group domain.LeaderboardGroup) (domain.Leaderboard, error) {
	stats, err := l.collect(ctx, competitionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	ranked := rank(stats, group)
	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, st := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			StudentID:          st.studentID,
			Rank:               i + 1,
			TotalScore:         st.totalScore(),
			TestScore:          st.testScore,
			AvgCompletion:      st.avgCompletion(),
			AvgDurationSeconds: st.avgDuration(),
			QuestionsCorrect:   st.questionsCorrect,
			DaysCompleted:      st.days,
		})
	}
	return domain.Leaderboard{
		CompetitionID: competitionID,
		Group:         group,
		Entries:       entries,
		UpdatedAt:     l.now(),
	}, nil
}

func (l *LeaderboardService) collect(ctx context.Context, competitionID string) ([]weeklyStats, error) {
	sessions, err := l.store.ListCompleted(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	var external map[string]float64
	if l.testScores != nil {
		external, err = l.testScores.TestScores(ctx, competitionID)
		if err != nil {
			return nil, err
		}
	}

	byStudent := make(map[string]*weeklyStats)
	for _, sess := range sessions {
		if sess.Breakdown == nil {
			continue
		}
		st, ok := byStudent[sess.StudentID]
		if !ok {
			st = &weeklyStats{studentID: sess.StudentID, testScore: external[sess.StudentID]}
			byStudent[sess.StudentID] = st
		}
		st.readingTotal += sess.Breakdown.TotalScore
		st.completionSum += sess.Breakdown.CompletionPercentage
		st.durationSum += sess.ReadingDurationSeconds
		st.questionsCorrect += sess.QuestionsCorrect
		st.days++
		if st.earliestStart.IsZero() || sess.StartedAt.Before(st.earliestStart) {
			st.earliestStart = sess.StartedAt
		}
	}

	stats := make([]weeklyStats, 0, len(byStudent))
	for _, st := range byStudent {
		stats = append(stats, *st)
	}
	return stats, nil
}

// rank applies each group's restriction and sort keys. The four boards sort
// independently and are allowed to disagree.
func rank(stats []weeklyStats, group domain.LeaderboardGroup) []weeklyStats {
	out := append([]weeklyStats(nil), stats...)

	switch group {
	case domain.GroupFastReader:
		out = filterQualified(out)
		sort.Slice(out, func(i, j int) bool {
			if out[i].avgDuration() != out[j].avgDuration() {
				return out[i].avgDuration() < out[j].avgDuration()
			}
			if out[i].totalScore() != out[j].totalScore() {
				return out[i].totalScore() > out[j].totalScore()
			}
			return out[i].studentID < out[j].studentID
		})
	case domain.GroupAccurateReader:
		out = filterQualified(out)
		sort.Slice(out, func(i, j int) bool {
			if out[i].questionsCorrect != out[j].questionsCorrect {
				return out[i].questionsCorrect > out[j].questionsCorrect
			}
			if out[i].totalScore() != out[j].totalScore() {
				return out[i].totalScore() > out[j].totalScore()
			}
			return out[i].studentID < out[j].studentID
		})
	case domain.GroupTestMaster:
		sort.Slice(out, func(i, j int) bool {
			if out[i].testScore != out[j].testScore {
				return out[i].testScore > out[j].testScore
			}
			if out[i].totalScore() != out[j].totalScore() {
				return out[i].totalScore() > out[j].totalScore()
			}
			return out[i].studentID < out[j].studentID
		})
	default: // champion
		sort.Slice(out, func(i, j int) bool {
			if out[i].totalScore() != out[j].totalScore() {
				return out[i].totalScore() > out[j].totalScore()
			}
			if !out[i].earliestStart.Equal(out[j].earliestStart) {
				return out[i].earliestStart.Before(out[j].earliestStart)
			}
			return out[i].studentID < out[j].studentID
		})
	}
	return out
}

func filterQualified(stats []weeklyStats) []weeklyStats {
	qualified := stats[:0]
	for _, st := range stats {
		if st.avgCompletion() >= FastReaderMinCompletion {
			qualified = append(qualified, st)
		}
	}
	return qualified
}
