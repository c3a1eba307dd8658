package domain

import "time"

// Question is a single comprehension question attached to a reading task.
type Question struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
}

// ReadingTask is immutable competition content: a reference text plus
// optional comprehension questions. Authored externally; never mutated once
// a competition is live.
type ReadingTask struct {
	ID               string     `json:"id"`
	CompetitionID    string     `json:"competitionId"`
	Day              string     `json:"day"`
	Title            string     `json:"title"`
	ReferenceText    string     `json:"referenceText"`
	TotalWordCount   int        `json:"totalWordCount"`
	Language         string     `json:"language"`
	Difficulty       string     `json:"difficulty"`
	TimeLimitSeconds float64    `json:"timeLimitSeconds"`
	ActiveFrom       time.Time  `json:"activeFrom"`
	ActiveUntil      time.Time  `json:"activeUntil"`
	Questions        []Question `json:"questions"`
}

// SessionStatus is the server-authoritative lifecycle state of an attempt.
type SessionStatus string

const (
	StatusCreated     SessionStatus = "CREATED"
	StatusStarted     SessionStatus = "STARTED"
	StatusReading     SessionStatus = "READING"
	StatusVoiceRecord SessionStatus = "VOICE_RECORD"
	StatusQuestions   SessionStatus = "QUESTIONS"
	StatusCompleted   SessionStatus = "COMPLETED"
	StatusAbandoned   SessionStatus = "ABANDONED"
)

// Terminal reports whether no further transitions are legal from s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// ReadingSession is one student's attempt at one task. Owned for writes by
// the student; scoring and leaderboards only ever read it.
type ReadingSession struct {
	ID                     string          `json:"id"`
	TaskID                 string          `json:"taskId"`
	CompetitionID          string          `json:"competitionId"`
	Day                    string          `json:"day"`
	StudentID              string          `json:"studentId"`
	Status                 SessionStatus   `json:"status"`
	StartedAt              time.Time       `json:"startedAt"`
	Deadline               time.Time       `json:"deadline"`
	Transcript             string          `json:"transcript,omitempty"`
	ReadingDurationSeconds float64         `json:"readingDurationSeconds,omitempty"`
	AudioRef               string          `json:"audioRef,omitempty"`
	Answers                []int           `json:"answers,omitempty"`
	QuestionsCorrect       int             `json:"questionsCorrect"`
	Breakdown              *ScoreBreakdown `json:"breakdown,omitempty"`
	CompletedAt            time.Time       `json:"completedAt,omitempty"`
}

// ScoreBreakdown is the per-attempt score, computed exactly once at
// completion and immutable afterwards. TotalScore is always in [0,100].
type ScoreBreakdown struct {
	CompletionPercentage float64 `json:"completionPercentage"`
	WordsRead            int     `json:"wordsRead"`
	ScoreCompletion      float64 `json:"scoreCompletion"`
	ScoreWords           float64 `json:"scoreWords"`
	ScoreTime            float64 `json:"scoreTime"`
	ScoreQuestions       float64 `json:"scoreQuestions"`
	TotalScore           float64 `json:"totalScore"`
}

// LeaderboardGroup is one of the four independently ranked categories.
type LeaderboardGroup string

const (
	GroupChampion       LeaderboardGroup = "champion"
	GroupFastReader     LeaderboardGroup = "fast_reader"
	GroupAccurateReader LeaderboardGroup = "accurate_reader"
	GroupTestMaster     LeaderboardGroup = "test_master"
)

// KnownGroup reports whether g names one of the four leaderboard groups.
func KnownGroup(g LeaderboardGroup) bool {
	switch g {
	case GroupChampion, GroupFastReader, GroupAccurateReader, GroupTestMaster:
		return true
	}
	return false
}

// LeaderboardEntry is a ranked row in one group's leaderboard.
type LeaderboardEntry struct {
	StudentID          string  `json:"studentId"`
	Rank               int     `json:"rank"`
	TotalScore         float64 `json:"totalScore"`
	TestScore          float64 `json:"testScore"`
	AvgCompletion      float64 `json:"avgCompletion"`
	AvgDurationSeconds float64 `json:"avgDurationSeconds"`
	QuestionsCorrect   int     `json:"questionsCorrect"`
	DaysCompleted      int     `json:"daysCompleted"`
}

// Leaderboard is a recomputed projection over completed sessions; it is
// never the system of record.
type Leaderboard struct {
	CompetitionID string             `json:"competitionId"`
	Group         LeaderboardGroup   `json:"group"`
	Entries       []LeaderboardEntry `json:"entries"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// DayResult is one completed attempt in a student's results view.
type DayResult struct {
	Day                    string         `json:"day"`
	TaskID                 string         `json:"taskId"`
	ReadingDurationSeconds float64        `json:"readingDurationSeconds"`
	Breakdown              ScoreBreakdown `json:"breakdown"`
}

// StudentResults is the per-day breakdown plus weekly totals for one student.
type StudentResults struct {
	StudentID          string      `json:"studentId"`
	CompetitionID      string      `json:"competitionId"`
	Days               []DayResult `json:"days"`
	TotalScore         float64     `json:"totalScore"`
	AvgCompletion      float64     `json:"avgCompletion"`
	AvgDurationSeconds float64     `json:"avgDurationSeconds"`
	QuestionsCorrect   int         `json:"questionsCorrect"`
}
