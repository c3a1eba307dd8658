package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"reading-fluency-service/internal/domain"
	"reading-fluency-service/internal/infra/memory"
)

// TaskRepository caches task content in Redis (JSON per task) and falls back
// to a loader on cache miss. Tasks are stored as: SET task:{taskID} {json}.
type TaskRepository struct {
	client *redis.Client
	loader memory.TaskLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewTaskRepository(client *redis.Client, loader memory.TaskLoader, ttl time.Duration) *TaskRepository {
	return &TaskRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *TaskRepository) GetTask(ctx context.Context, taskID string) (domain.ReadingTask, error) {
	key := r.key(taskID)

	if task, ok := r.cached(ctx, key); ok {
		return task, nil
	}

	result, err, _ := r.sf.Do(taskID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if task, ok := r.cached(ctx, key); ok {
			return task, nil
		}

		task, err := r.loader.LoadTask(ctx, taskID)
		if err != nil {
			return domain.ReadingTask{}, err
		}
		if err := memory.ValidateTask(task); err != nil {
			return domain.ReadingTask{}, err
		}

		if data, err := json.Marshal(task); err == nil {
			// best-effort cache fill
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return task, nil
	})
	if err != nil {
		return domain.ReadingTask{}, err
	}
	return result.(domain.ReadingTask), nil
}

func (r *TaskRepository) cached(ctx context.Context, key string) (domain.ReadingTask, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return domain.ReadingTask{}, false
	}
	var task domain.ReadingTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return domain.ReadingTask{}, false
	}
	return task, true
}

func (r *TaskRepository) key(taskID string) string {
	return "task:" + taskID
}

func (r *TaskRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
