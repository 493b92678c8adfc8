package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/testutil"
)

func TestAuditRepo_AppendAndList(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewAuditRepoWithTimeProvider(db, tp)
		request := createTestRequest(t, db)

		first := &model.AuditRecord{
			OwnerID:   request.OwnerID,
			RequestID: request.ID,
			Category:  model.AuditNormal,
			Detail:    "verified with confidence 92",
		}
		require.NoError(t, repo.Append(ctx, first))
		assert.NotEmpty(t, first.ID)
		assert.Equal(t, testutil.TestTime(), first.CreatedAt.UTC())

		tp.Advance(time.Second)
		second := &model.AuditRecord{
			OwnerID:   request.OwnerID,
			RequestID: request.ID,
			Category:  model.AuditPipelineFailed,
			Detail:    "verification attempts exhausted",
		}
		require.NoError(t, repo.Append(ctx, second))

		records, err := repo.ListByRequest(ctx, request.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, model.AuditNormal, records[0].Category)
		assert.Equal(t, model.AuditPipelineFailed, records[1].Category)
	})
}
