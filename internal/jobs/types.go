package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/briangreenhill/mikud/cache"
	"github.com/briangreenhill/mikud/israelpost"
)

const (
	TaskPrefetchZipcode = "zipcode:prefetch"
	QueuePrefetch       = "prefetch"

	prefetchIDPrefix = "prefetch:"
)

type PrefetchPayload struct {
	Address israelpost.Address `json:"address"`
}

// NewPrefetchTask builds a prefetch task whose id is derived from the
// address, so queueing the same address twice conflicts instead of
// duplicating work. The id is returned to callers so they can trace the job.
func NewPrefetchTask(addr israelpost.Address) (*asynq.Task, string, error) {
	payload, err := json.Marshal(PrefetchPayload{Address: addr})
	if err != nil {
		return nil, "", err
	}
	id := PrefetchTaskID(addr)
	task := asynq.NewTask(TaskPrefetchZipcode, payload,
		asynq.TaskID(id),
		asynq.Queue(QueuePrefetch),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	)
	return task, id, nil
}

// PrefetchTaskID is the queue id for addr's prefetch task.
func PrefetchTaskID(addr israelpost.Address) string {
	return cache.HashKey(prefetchIDPrefix, addr.CacheKey())
}
