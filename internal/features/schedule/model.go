package schedule

import (
	"time"

	"go-reports/internal/features/report"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Schedule is a recurring report delivery: on each cron fire the report is
// regenerated into the cache and the recipients get the download link.
type Schedule struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ReportID   primitive.ObjectID `json:"report_id" bson:"report_id"`
	CronExpr   string             `json:"cron_expr" bson:"cron_expr"`
	Recipients []string           `json:"recipients" bson:"recipients"`
	Format     report.Format      `json:"format" bson:"format"`
	Active     bool               `json:"active" bson:"active"`
	LastRun    *time.Time         `json:"last_run,omitempty" bson:"last_run,omitempty"`
	NextRun    *time.Time         `json:"next_run,omitempty" bson:"next_run,omitempty"`
	CreatedBy  string             `json:"created_by" bson:"created_by"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" bson:"updated_at"`
}
