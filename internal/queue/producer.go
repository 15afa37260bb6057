package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TaskDiagnosis = "diagnosis"
	TaskCleanup   = "cleanup"
)

// Task is one stream entry. Fields are flattened into the entry values.
type Task struct {
	Type        string
	DiagnosisID string
	Fields      map[string]string
}

func (t Task) values() map[string]any {
	values := make(map[string]any, len(t.Fields)+2)
	for k, v := range t.Fields {
		values[k] = v
	}
	values["type"] = t.Type
	if t.DiagnosisID != "" {
		values["diagnosisId"] = t.DiagnosisID
	}
	return values
}

type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

// Enqueue appends task to the stream and returns the entry id. A nil
// producer or client drops the task silently.
func (p *Producer) Enqueue(ctx context.Context, task Task) (string, error) {
	if p == nil || p.client == nil {
		return "", nil
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: task.values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}
