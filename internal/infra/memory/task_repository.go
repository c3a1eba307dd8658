package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"reading-fluency-service/internal/domain"
	"reading-fluency-service/internal/textnorm"
)

// TaskLoader fetches task content from a backing store (e.g., Postgres).
type TaskLoader interface {
	LoadTask(ctx context.Context, taskID string) (domain.ReadingTask, error)
}

// TaskRepository caches tasks with TTL to avoid repeated DB hits. Tasks are
// immutable once a competition is live, so a stale-by-TTL cache is safe.
type TaskRepository struct {
	loader TaskLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedTask
}

type cachedTask struct {
	task      domain.ReadingTask
	expiresAt time.Time
}

func NewTaskRepository(loader TaskLoader, ttl time.Duration) *TaskRepository {
	return &TaskRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTask),
	}
}

func (r *TaskRepository) GetTask(ctx context.Context, taskID string) (domain.ReadingTask, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[taskID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.task, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(taskID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[taskID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.task, nil
		}
		r.mu.RUnlock()

		task, err := r.loader.LoadTask(ctx, taskID)
		if err != nil {
			return domain.ReadingTask{}, err
		}
		if err := ValidateTask(task); err != nil {
			return domain.ReadingTask{}, err
		}

		r.mu.Lock()
		r.cache[taskID] = cachedTask{
			task:      task,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return task, nil
	})
	if err != nil {
		return domain.ReadingTask{}, err
	}
	return result.(domain.ReadingTask), nil
}

func (r *TaskRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// ValidateTask rejects degenerate content at load time so scoring never has
// to interpret a zero-word reference as a real 0%.
func ValidateTask(task domain.ReadingTask) error {
	if textnorm.WordCount(task.ReferenceText) == 0 {
		return domain.ErrDegenerateTask
	}
	return nil
}

// StaticTaskLoader is a simple loader backed by an in-memory map (useful for
// tests/demos).
type StaticTaskLoader struct {
	tasks map[string]domain.ReadingTask
}

func NewStaticTaskLoader(tasks map[string]domain.ReadingTask) *StaticTaskLoader {
	return &StaticTaskLoader{tasks: tasks}
}

func (l *StaticTaskLoader) LoadTask(_ context.Context, taskID string) (domain.ReadingTask, error) {
	if task, ok := l.tasks[taskID]; ok {
		return task, nil
	}
	return domain.ReadingTask{}, domain.ErrTaskNotFound
}

// StaticTestScores serves external test scores from a fixed map.
type StaticTestScores struct {
	scores map[string]map[string]float64 // competitionID -> studentID -> score
}

func NewStaticTestScores(scores map[string]map[string]float64) *StaticTestScores {
	return &StaticTestScores{scores: scores}
}

func (p *StaticTestScores) TestScores(_ context.Context, competitionID string) (map[string]float64, error) {
	return p.scores[competitionID], nil
}
