package repo

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-form-builder/internal/domain"
)

func TestFormListStats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Form{})

	empty, err := FormListStats(ctx, db, "")
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.True(t, empty.LatestUpdate.IsZero())

	jan := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	may := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, f := range []domain.Form{
		{ID: "f1", Title: "Fire exits", Status: domain.FormStatusDraft, CreatedBy: "u1", CreatedAt: jan, UpdatedAt: jan},
		{ID: "f2", Title: "Kitchen", Status: domain.FormStatusDraft, CreatedBy: "u2", CreatedAt: mar, UpdatedAt: mar},
		{ID: "f3", Title: "Old audit", Status: domain.FormStatusArchived, CreatedBy: "u1", CreatedAt: may, UpdatedAt: may},
	} {
		require.NoError(t, db.Create(&f).Error)
	}

	drafts, err := FormListStats(ctx, db, domain.FormStatusDraft)
	require.NoError(t, err)
	assert.EqualValues(t, 2, drafts.Count)
	assert.True(t, drafts.LatestUpdate.Equal(mar), "got %v", drafts.LatestUpdate)

	all, err := FormListStats(ctx, db, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Count)
	assert.True(t, all.LatestUpdate.Equal(may))
}

func TestListStats_ETag(t *testing.T) {
	ts := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	st := ListStats{Status: domain.FormStatusActive, Count: 4, LatestUpdate: ts}

	assert.Equal(t, `W/"forms:active:2:10:4:`+strconv.FormatInt(ts.UnixNano(), 10)+`"`, st.ETag(2, 10))
	assert.NotEqual(t, st.ETag(1, 10), st.ETag(2, 10), "page is part of the validator")

	bumped := st
	bumped.LatestUpdate = ts.Add(time.Millisecond)
	assert.NotEqual(t, st.ETag(1, 10), bumped.ETag(1, 10))

	assert.Equal(t, `W/"forms::1:20:0:0"`, ListStats{}.ETag(1, 20))
}

func TestFormListStats_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := FormListStats(ctx, newTestDB(t), "")
	assert.Error(t, err, "missing table")

	db := newTestDB(t, &domain.Form{})
	now := time.Now().UTC()
	require.NoError(t, db.Create(&domain.Form{ID: "fx", Title: "x", CreatedBy: "u", CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Exec(`ALTER TABLE forms RENAME COLUMN updated_at TO touched_at`).Error)

	_, err = FormListStats(ctx, db, "")
	assert.Error(t, err, "latest-update query")
}
