package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
	JobNoMatch   string = "NO_MATCH"
)

const (
	TaskTransform string = "transform"
	TaskGenerate  string = "generate"
)

// Dataset is an uploaded table kept in its CSV form.
type Dataset struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null"`
	RowCount     int       `gorm:"default:0"`
	Data         []byte
	CreationTime time.Time

	Jobs []TransformJob `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`
}

// TransformJob is the audit record for one orchestrator invocation. The
// coordination store holds a job's live state only while it is in flight;
// this row is what survives, so status queries keep working after cleanup.
type TransformJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DatasetId uuid.UUID `gorm:"type:uuid"`
	Dataset   *Dataset  `gorm:"foreignKey:DatasetId"`

	TaskType string `gorm:"size:20;not null"`
	Status   string `gorm:"size:20;not null"`
	Progress float64

	ErrorMessage sql.NullString

	Result []byte

	CreationTime   time.Time
	CompletionTime sql.NullTime
}
