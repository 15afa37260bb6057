package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"smartcrop/api/internal/apperr"
	"smartcrop/api/internal/ids"
	"smartcrop/api/internal/media/sniffer"
	"smartcrop/api/internal/models"
	"smartcrop/api/internal/queue"
	"smartcrop/api/internal/security"
)

const (
	historyLimit         = 50
	diagnosisUnavailable = "There was an error contacting the disease detection service. Please try again later."
)

type Predictor interface {
	Predict(ctx context.Context, crop string, image []byte, mimeType string) (string, error)
}

type ObjectWriter interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (int64, error)
	Remove(ctx context.Context, bucket, key string) error
}

type DiagnosisRecorder interface {
	Create(ctx context.Context, d models.Diagnosis) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Diagnosis, error)
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

type DiagnosisService struct {
	predictor       Predictor
	objects         ObjectWriter
	diagnoses       DiagnosisRecorder
	tasks           TaskQueue
	bucket          string
	signatureSecret string
	maxBytes        int64
	log             zerolog.Logger
	now             func() time.Time
}

type DiagnosisOptions struct {
	Bucket          string
	SignatureSecret string
	MaxUploadBytes  int64
}

func NewDiagnosisService(
	predictor Predictor,
	objects ObjectWriter,
	diagnoses DiagnosisRecorder,
	tasks TaskQueue,
	opts DiagnosisOptions,
	log zerolog.Logger,
) *DiagnosisService {
	return &DiagnosisService{
		predictor:       predictor,
		objects:         objects,
		diagnoses:       diagnoses,
		tasks:           tasks,
		bucket:          opts.Bucket,
		signatureSecret: opts.SignatureSecret,
		maxBytes:        opts.MaxUploadBytes,
		log:             log,
		now:             time.Now,
	}
}

type PredictInput struct {
	UserID *string
	Crop   string
	File   io.Reader
	Header textproto.MIMEHeader
}

func (s *DiagnosisService) Predict(ctx context.Context, input PredictInput) (models.Diagnosis, error) {
	crop := models.CropWheat
	if c := strings.TrimSpace(input.Crop); c != "" {
		crop = models.Crop(c)
	}
	if !crop.Valid() {
		return models.Diagnosis{}, apperr.Validation("crop", "Crop must be one of Wheat, Rice, Corn")
	}
	if input.File == nil {
		return models.Diagnosis{}, apperr.Validation("image", "Image is required")
	}

	data, err := s.readImage(input.File)
	if err != nil {
		return models.Diagnosis{}, err
	}

	head := data
	if len(head) > sniffer.HeadSize {
		head = head[:sniffer.HeadSize]
	}
	detected, err := sniffer.Check(head, input.Header)
	if err != nil {
		if errors.Is(err, sniffer.ErrTypeMismatch) {
			return models.Diagnosis{}, apperr.Validation("image", "Declared image type does not match the file")
		}
		return models.Diagnosis{}, apperr.Validation("image", "Unsupported image type")
	}

	now := s.now().UTC()
	id := ids.New()
	key := path.Join(now.Format("2006/01/02"), fmt.Sprintf("%s.%s", id, detected.Type))

	size, err := s.objects.Put(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), detected.MIME)
	if err != nil {
		return models.Diagnosis{}, err
	}

	prediction, err := s.predictor.Predict(ctx, string(crop), data, detected.MIME)
	if err != nil {
		if rmErr := s.objects.Remove(ctx, s.bucket, key); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("object_key", key).Msg("remove orphaned upload failed")
		}
		return models.Diagnosis{}, &apperr.UpstreamError{Service: "inference", Public: diagnosisUnavailable, Err: err}
	}

	sum := sha256.Sum256(data)
	d := models.Diagnosis{
		ID:         id,
		UserID:     input.UserID,
		Crop:       crop,
		Bucket:     s.bucket,
		ObjectKey:  key,
		Format:     string(detected.Type),
		SizeBytes:  size,
		Checksum:   sum[:],
		Signature:  security.SignResource(s.signatureSecret, id, key),
		Prediction: prediction,
		CreatedAt:  now,
	}
	if err := s.diagnoses.Create(ctx, d); err != nil {
		return models.Diagnosis{}, fmt.Errorf("save diagnosis: %w", err)
	}

	if _, err := s.tasks.Enqueue(ctx, queue.Task{Type: queue.TaskDiagnosis, DiagnosisID: d.ID}); err != nil {
		s.log.Warn().Err(err).Str("diagnosis_id", d.ID).Msg("enqueue diagnosis failed")
	}

	return d, nil
}

// History lists the caller's most recent diagnoses, newest first.
func (s *DiagnosisService) History(ctx context.Context, userID string) ([]models.Diagnosis, error) {
	return s.diagnoses.ListByUser(ctx, userID, historyLimit)
}

func (s *DiagnosisService) readImage(r io.Reader) ([]byte, error) {
	reader := r
	if s.maxBytes > 0 {
		reader = io.LimitReader(r, s.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, apperr.Validation("image", "Image is required")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, apperr.Validation("image", fmt.Sprintf("Image exceeds %d bytes", s.maxBytes))
	}
	return data, nil
}
