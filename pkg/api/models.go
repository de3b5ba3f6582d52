package api

import (
	"time"

	"github.com/google/uuid"
)

const (
	// OutputModeReplace writes transformed values back into the source column.
	OutputModeReplace = "replace"
	// OutputModeNewColumn writes transformed values into a separate column.
	OutputModeNewColumn = "new_column"
)

// ColumnCommand describes the transformation applied to one source column.
type ColumnCommand struct {
	Command    string `json:"command"`
	OutputMode string `json:"output_mode,omitempty"`
	OutputName string `json:"output_name,omitempty"`
}

// OutputColumn resolves the column the transformed values are written to.
func (c ColumnCommand) OutputColumn(sourceColumn string) string {
	if c.OutputMode == OutputModeNewColumn && c.OutputName != "" {
		return c.OutputName
	}
	return sourceColumn
}

// ColumnCommands maps source column names to their transformation commands.
type ColumnCommands map[string]ColumnCommand

type UploadDatasetResponse struct {
	DatasetId uuid.UUID
	Name      string
	RowCount  int
	Columns   []string
}

type TransformRequest struct {
	ColumnCommands    ColumnCommands `json:"column_commands"`
	SearchDescription string         `json:"search_description,omitempty"`
}

type GenerateColumnRequest struct {
	ReferenceColumns []string `json:"reference_columns"`
	NewColumnName    string   `json:"new_column_name"`
	GenerationPrompt string   `json:"generation_prompt"`
}

type SubmitJobResponse struct {
	Message string
	JobId   uuid.UUID
}

type JobStatusResponse struct {
	JobId          uuid.UUID
	DatasetId      uuid.UUID
	TaskType       string
	Status         string
	Progress       float64
	ErrorMessage   string `json:",omitempty"`
	CreationTime   time.Time
	CompletionTime *time.Time `json:",omitempty"`
}

type ListJobsRequest struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

type ListJobsResponse struct {
	Jobs  []JobStatusResponse
	Total int64
}
