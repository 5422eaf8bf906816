package premium

import (
	"time"

	"github.com/patabima/pricing-engine/internal/model"
)

// policyTerm returns the cover window starting on start's calendar day and
// running for days days, end date inclusive.
func policyTerm(start time.Time, days int) *model.PolicyTerm {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	return &model.PolicyTerm{
		StartDate: day,
		EndDate:   day.AddDate(0, 0, days-1),
		Days:      days,
	}
}
