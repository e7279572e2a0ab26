package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-form-builder/internal/domain"
)

// ListStats summarizes the forms visible under one status filter. Any
// create, update or delete of a matching form changes it.
type ListStats struct {
	Status       domain.FormStatus
	Count        int64
	LatestUpdate time.Time // zero when Count is 0
}

// ETag is a weak validator for one page of the listing.
func (s ListStats) ETag(page, pageSize int) string {
	var ts int64
	if !s.LatestUpdate.IsZero() {
		ts = s.LatestUpdate.UnixNano()
	}
	return fmt.Sprintf(`W/"forms:%s:%d:%d:%d:%d"`, s.Status, page, pageSize, s.Count, ts)
}

// FormListStats counts the forms matching status ("" for all) and finds the
// newest UpdatedAt among them.
func FormListStats(ctx context.Context, db *gorm.DB, status domain.FormStatus) (ListStats, error) {
	st := ListStats{Status: status}
	if err := formsQuery(ctx, db, status).Count(&st.Count).Error; err != nil {
		return ListStats{}, err
	}
	if st.Count == 0 {
		return st, nil
	}
	// ORDER BY instead of MAX(): SQLite returns MAX(datetime) as TEXT.
	var row struct{ UpdatedAt time.Time }
	if err := formsQuery(ctx, db, status).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return ListStats{}, err
	}
	st.LatestUpdate = row.UpdatedAt
	return st, nil
}
