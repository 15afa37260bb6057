package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"smartcrop/api/internal/models"
	"smartcrop/api/internal/queue"
	"smartcrop/api/internal/repository"
)

const cleanupBatch = 100

type DiagnosisStore interface {
	GetByID(ctx context.Context, id string) (models.Diagnosis, error)
	ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Diagnosis, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

type ObjectRemover interface {
	Remove(ctx context.Context, bucket, key string) error
}

type Processor struct {
	diagnoses DiagnosisStore
	objects   ObjectRemover
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewProcessor(diagnoses DiagnosisStore, objects ObjectRemover, retention time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		diagnoses: diagnoses,
		objects:   objects,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	taskType := stringValue(msg.Values, "type")

	switch taskType {
	case queue.TaskDiagnosis:
		return p.handleDiagnosis(ctx, stringValue(msg.Values, "diagnosisId"))
	case queue.TaskCleanup:
		return p.handleCleanup(ctx)
	default:
		p.logger.Warn().Str("type", taskType).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func stringValue(values map[string]interface{}, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}

func (p *Processor) handleDiagnosis(ctx context.Context, id string) error {
	if id == "" {
		p.logger.Warn().Msg("diagnosis task without id")
		return nil
	}
	d, err := p.diagnoses.GetByID(ctx, id)
	if errors.Is(err, repository.ErrDiagnosisNotFound) {
		// already removed by retention cleanup
		p.logger.Debug().Str("diagnosis_id", id).Msg("diagnosis gone")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load diagnosis %s: %w", id, err)
	}

	event := p.logger.Info().
		Str("diagnosis_id", d.ID).
		Str("crop", string(d.Crop)).
		Str("prediction", d.Prediction).
		Int64("size_bytes", d.SizeBytes)
	if d.UserID != nil {
		event = event.Str("user_id", *d.UserID)
	}
	event.Msg("diagnosis recorded")
	return nil
}

// handleCleanup removes diagnoses older than the retention window, objects
// first so a failed removal leaves the row for the next run.
func (p *Processor) handleCleanup(ctx context.Context) error {
	if p.retention <= 0 {
		return nil
	}
	cutoff := p.now().Add(-p.retention)

	total := int64(0)
	for {
		batch, err := p.diagnoses.ListCreatedBefore(ctx, cutoff, cleanupBatch)
		if err != nil {
			return fmt.Errorf("list expired diagnoses: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]string, 0, len(batch))
		for _, d := range batch {
			if err := p.objects.Remove(ctx, d.Bucket, d.ObjectKey); err != nil {
				p.logger.Error().Err(err).Str("diagnosis_id", d.ID).Msg("remove object failed")
				continue
			}
			ids = append(ids, d.ID)
		}

		deleted, err := p.diagnoses.DeleteByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("delete expired diagnoses: %w", err)
		}
		total += deleted

		if len(ids) < len(batch) || len(batch) < cleanupBatch {
			break
		}
	}

	p.logger.Info().Int64("deleted", total).Time("cutoff", cutoff).Msg("diagnosis cleanup finished")
	return nil
}
