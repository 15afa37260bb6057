package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"smartcrop/api/internal/models"
)

var ErrDiagnosisNotFound = errors.New("diagnosis not found")

type DiagnosisRepository struct {
	db DBTX
}

func NewDiagnosisRepository(db DBTX) *DiagnosisRepository {
	return &DiagnosisRepository{db: db}
}

const diagnosisColumns = `id, user_id, crop, bucket, object_key, format, size_bytes, checksum, signature, prediction, created_at`

func (r *DiagnosisRepository) Create(ctx context.Context, d models.Diagnosis) error {
	const query = `
		INSERT INTO diagnoses (
			id, user_id, crop, bucket, object_key, format, size_bytes, checksum, signature, prediction, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.Exec(ctx, query,
		d.ID,
		d.UserID,
		d.Crop,
		d.Bucket,
		d.ObjectKey,
		d.Format,
		d.SizeBytes,
		d.Checksum,
		d.Signature,
		d.Prediction,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert diagnosis: %w", err)
	}
	return nil
}

func (r *DiagnosisRepository) GetByID(ctx context.Context, id string) (models.Diagnosis, error) {
	query := `SELECT ` + diagnosisColumns + ` FROM diagnoses WHERE id = $1`

	d, err := scanDiagnosis(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Diagnosis{}, ErrDiagnosisNotFound
	}
	return d, err
}

func (r *DiagnosisRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Diagnosis, error) {
	query := `SELECT ` + diagnosisColumns + `
		FROM diagnoses
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.list(ctx, query, userID, limit)
}

// ListCreatedBefore returns up to limit diagnoses older than cutoff, oldest first.
func (r *DiagnosisRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Diagnosis, error) {
	query := `SELECT ` + diagnosisColumns + `
		FROM diagnoses
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	return r.list(ctx, query, cutoff, limit)
}

func (r *DiagnosisRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM diagnoses WHERE id = ANY($1)`
	cmd, err := r.db.Exec(ctx, query, ids)
	if err != nil {
		return 0, fmt.Errorf("delete diagnoses: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *DiagnosisRepository) list(ctx context.Context, query string, args ...any) ([]models.Diagnosis, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDiagnosis(row pgx.Row) (models.Diagnosis, error) {
	var d models.Diagnosis
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Crop,
		&d.Bucket,
		&d.ObjectKey,
		&d.Format,
		&d.SizeBytes,
		&d.Checksum,
		&d.Signature,
		&d.Prediction,
		&d.CreatedAt,
	)
	return d, err
}
