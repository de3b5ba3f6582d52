package migration_0

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Dataset struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null"`
	RowCount     int       `gorm:"default:0"`
	Data         []byte
	CreationTime time.Time
}

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

func Migration(txn *gorm.DB) error {
	return txn.AutoMigrate(&Dataset{}, &TransformJob{})
}

func Rollback(txn *gorm.DB) error {
	return txn.Migrator().DropTable(&TransformJob{}, &Dataset{})
}
