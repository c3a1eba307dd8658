package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"reading-fluency-service/internal/domain"
)

// TaskLoader loads reading-task JSONB from Postgres.
type TaskLoader struct {
	pool *pgxpool.Pool
}

func NewTaskLoader(pool *pgxpool.Pool) *TaskLoader {
	return &TaskLoader{pool: pool}
}

func (l *TaskLoader) LoadTask(ctx context.Context, taskID string) (domain.ReadingTask, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM reading_tasks WHERE id=$1`, taskID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ReadingTask{}, domain.ErrTaskNotFound
	}
	if err != nil {
		return domain.ReadingTask{}, fmt.Errorf("load task: %w", err)
	}
	var task domain.ReadingTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return domain.ReadingTask{}, fmt.Errorf("unmarshal task: %w", err)
	}
	return task, nil
}

// TestScores loads the external test-taking subsystem's scores for the
// champion and test_master rankings.
type TestScores struct {
	pool *pgxpool.Pool
}

func NewTestScores(pool *pgxpool.Pool) *TestScores {
	return &TestScores{pool: pool}
}

func (p *TestScores) TestScores(ctx context.Context, competitionID string) (map[string]float64, error) {
	rows, err := p.pool.Query(ctx, `SELECT student_id, score FROM test_scores WHERE competition_id=$1`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("load test scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var studentID string
		var score float64
		if err := rows.Scan(&studentID, &score); err != nil {
			return nil, fmt.Errorf("scan test score: %w", err)
		}
		scores[studentID] = score
	}
	return scores, rows.Err()
}
