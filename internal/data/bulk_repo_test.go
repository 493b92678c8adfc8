package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/testutil"
)

func TestBulkJobRepo_CreateAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewBulkJobRepo(db)

		job, err := repo.Create(ctx, "owner-1", 3)
		require.NoError(t, err)
		require.NotEmpty(t, job.ID)
		assert.Equal(t, model.BulkStatusProcessing, job.Status)
		assert.Equal(t, 3, job.Total)
		assert.Zero(t, job.Completed)

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)

		_, err = repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.Create(ctx, "owner-1", 0)
		assert.Error(t, err)
	})
}

func TestBulkJobRepo_CountRequestStatuses(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewBulkJobRepo(db)
		requests := NewVerificationRepo(db)

		job, err := repo.Create(ctx, "owner-1", 3)
		require.NoError(t, err)

		var ids []string
		for i := 0; i < 3; i++ {
			created, createErr := requests.Create(ctx,
				testutil.NewVerificationRequest().WithBulkJob(job.ID).Build())
			require.NoError(t, createErr)
			ids = append(ids, created.ID)
		}

		counts, err := repo.CountRequestStatuses(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BulkCounts{Total: 3, InProgress: 3}, counts)

		// Drive one to verified and one to failed.
		claimed, err := requests.BeginProcessing(ctx, ids[0])
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, requests.FinalizeVerdict(ctx, core.FinalizeVerdictParams{
			RequestID: ids[0],
			Verdict:   model.Verdict{Status: model.StatusVerified, Confidence: 90, RiskScore: 0.1},
		}))
		require.NoError(t, requests.ForceFail(ctx, ids[1], "boom"))

		counts, err = repo.CountRequestStatuses(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BulkCounts{Total: 3, Verified: 1, Failed: 1, InProgress: 1}, counts)
	})
}

func TestBulkJobRepo_UpdateProgress(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewBulkJobRepo(db)

		job, err := repo.Create(ctx, "owner-1", 2)
		require.NoError(t, err)

		counts := model.BulkCounts{Total: 2, Verified: 1, Rejected: 1}
		updated, err := repo.UpdateProgress(ctx, core.UpdateBulkProgressParams{
			BulkJobID: job.ID,
			Counts:    counts,
			Status:    model.DeriveBulkStatus(counts),
		})
		require.NoError(t, err)
		assert.Equal(t, model.BulkStatusPartial, updated.Status)
		assert.Equal(t, 2, updated.Completed)
		assert.Equal(t, 1, updated.Verified)
		assert.Equal(t, 1, updated.Rejected)

		_, err = repo.UpdateProgress(ctx, core.UpdateBulkProgressParams{
			BulkJobID: uuid.NewString(),
			Counts:    counts,
			Status:    model.BulkStatusPartial,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
