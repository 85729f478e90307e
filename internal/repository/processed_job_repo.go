package repository

import "context"

// ProcessedJobRepository collapses at-least-once queue delivery to a single
// effect. A job id is marked only after its handler ran to completion, so an
// interrupted run stays unmarked and the redelivery executes again.
type ProcessedJobRepository struct {
	db DBTX
}

func NewProcessedJobRepository(db DBTX) *ProcessedJobRepository {
	return &ProcessedJobRepository{db: db}
}

func (r *ProcessedJobRepository) IsProcessed(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_jobs WHERE job_id = $1)
	`, jobID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// MarkProcessed records a completed run. Inserting an id twice is harmless.
func (r *ProcessedJobRepository) MarkProcessed(ctx context.Context, jobID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO processed_jobs (job_id)
		VALUES ($1)
		ON CONFLICT (job_id) DO NOTHING
	`, jobID)
	return err
}
