package dto

import (
	"time"

	"stockflow/internal/domain/journal"
	"stockflow/internal/domain/report"
)

// JournalQuery filters the orchestration journal.
type JournalQuery struct {
	Kind        string     `form:"kind"`
	ContainerID int64      `form:"containerId"`
	From        *time.Time `form:"from" time_format:"2006-01-02"`
	To          *time.Time `form:"to" time_format:"2006-01-02"`
	Limit       int        `form:"limit"`
	Offset      int        `form:"offset"`
}

// ToFilter converts the query. To is inclusive of the whole day.
func (q JournalQuery) ToFilter() journal.Filter {
	f := journal.Filter{Kind: q.Kind, ContainerID: q.ContainerID, Limit: q.Limit, Offset: q.Offset}
	if q.From != nil {
		f.From = *q.From
	}
	if q.To != nil {
		f.To = q.To.AddDate(0, 0, 1)
	}
	return f
}

// MovementsQuery selects a movement report and its format.
type MovementsQuery struct {
	report.Query
	Format string `form:"format"`
}
