package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"transform-backend/internal/database"
	"transform-backend/internal/dataset"
	"transform-backend/internal/orchestrator"
	"transform-backend/pkg/api"
)

const maxUploadBytes = 50 * 1024 * 1024

// BackendService is the HTTP control plane: datasets go in as CSV, jobs run
// asynchronously through the orchestrator, and results come back out as CSV.
type BackendService struct {
	db           *gorm.DB
	orchestrator *orchestrator.Orchestrator
}

func NewBackendService(db *gorm.DB, orch *orchestrator.Orchestrator) *BackendService {
	return &BackendService{db: db, orchestrator: orch}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/datasets", func(r chi.Router) {
		r.Post("/", RestHandler(s.UploadDataset))
		r.Get("/{dataset_id}", s.DownloadDataset)
		r.Post("/{dataset_id}/transform", RestHandler(s.SubmitTransformJob))
		r.Post("/{dataset_id}/generate", RestHandler(s.SubmitGenerateJob))
	})
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListJobs))
		r.Get("/{job_id}", RestHandler(s.GetJob))
		r.Get("/{job_id}/result", s.DownloadJobResult)
	})
}

func (s *BackendService) UploadDataset(r *http.Request) (any, error) {
	name, data, err := readUpload(r)
	if err != nil {
		return nil, err
	}

	tbl, err := dataset.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid csv upload: %v", err)
	}

	record := &database.Dataset{
		Id:           uuid.New(),
		Name:         name,
		RowCount:     tbl.NumRows(),
		Data:         data,
		CreationTime: time.Now().UTC(),
	}
	if err := database.CreateDataset(r.Context(), s.db, record); err != nil {
		slog.Error("error creating dataset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store dataset")
	}

	slog.Info("dataset uploaded", "dataset_id", record.Id, "name", name, "rows", tbl.NumRows())

	return api.UploadDatasetResponse{
		DatasetId: record.Id,
		Name:      name,
		RowCount:  tbl.NumRows(),
		Columns:   tbl.Columns,
	}, nil
}

func (s *BackendService) DownloadDataset(w http.ResponseWriter, r *http.Request) {
	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := database.GetDataset(r.Context(), s.db, datasetId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "dataset not found", http.StatusNotFound)
			return
		}
		slog.Error("error fetching dataset", "dataset_id", datasetId, "error", err)
		http.Error(w, "failed to fetch dataset", http.StatusInternalServerError)
		return
	}

	writeCSVAttachment(w, record.Name+".csv", record.Data)
}

func (s *BackendService) SubmitTransformJob(r *http.Request) (any, error) {
	req, err := ParseRequest[api.TransformRequest](r)
	if err != nil {
		return nil, err
	}
	if len(req.ColumnCommands) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "column_commands is required")
	}

	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	tbl, job, err := s.createJob(r.Context(), datasetId, database.TaskTransform)
	if err != nil {
		return nil, err
	}

	go s.runJob(job, func(ctx context.Context, progress orchestrator.ProgressFunc) (dataset.Table, error) {
		return s.orchestrator.ProcessTable(ctx, tbl, req.ColumnCommands, req.SearchDescription, progress)
	})

	return api.SubmitJobResponse{Message: "transform job submitted", JobId: job.Id}, nil
}

func (s *BackendService) SubmitGenerateJob(r *http.Request) (any, error) {
	req, err := ParseRequest[api.GenerateColumnRequest](r)
	if err != nil {
		return nil, err
	}
	if req.NewColumnName == "" || len(req.ReferenceColumns) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "new_column_name and reference_columns are required")
	}

	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	tbl, job, err := s.createJob(r.Context(), datasetId, database.TaskGenerate)
	if err != nil {
		return nil, err
	}

	go s.runJob(job, func(ctx context.Context, progress orchestrator.ProgressFunc) (dataset.Table, error) {
		return s.orchestrator.GenerateColumn(ctx, tbl, req.ReferenceColumns, req.NewColumnName, req.GenerationPrompt, progress)
	})

	return api.SubmitJobResponse{Message: "column generation job submitted", JobId: job.Id}, nil
}

func (s *BackendService) GetJob(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	job, err := database.GetJob(r.Context(), s.db, jobId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "job %s not found", jobId)
		}
		slog.Error("error fetching job", "job_id", jobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to fetch job")
	}

	return jobStatusResponse(job), nil
}

func (s *BackendService) ListJobs(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListJobsRequest](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	jobs, total, err := database.ListJobs(r.Context(), s.db, params.Limit, params.Offset)
	if err != nil {
		slog.Error("error listing jobs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list jobs")
	}

	resp := api.ListJobsResponse{Total: total, Jobs: make([]api.JobStatusResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, jobStatusResponse(job))
	}
	return resp, nil
}

func (s *BackendService) DownloadJobResult(w http.ResponseWriter, r *http.Request) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := database.GetJobResult(r.Context(), s.db, jobId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		slog.Error("error fetching job result", "job_id", jobId, "error", err)
		http.Error(w, "failed to fetch job result", http.StatusInternalServerError)
		return
	}
	if len(result) == 0 {
		http.Error(w, "job has no result yet", http.StatusConflict)
		return
	}

	writeCSVAttachment(w, jobId.String()+".csv", result)
}

// createJob loads the dataset table and records a queued job for it.
func (s *BackendService) createJob(ctx context.Context, datasetId uuid.UUID, taskType string) (dataset.Table, *database.TransformJob, error) {
	record, err := database.GetDataset(ctx, s.db, datasetId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dataset.Table{}, nil, CodedErrorf(http.StatusNotFound, "dataset %s not found", datasetId)
		}
		slog.Error("error fetching dataset", "dataset_id", datasetId, "error", err)
		return dataset.Table{}, nil, CodedErrorf(http.StatusInternalServerError, "failed to fetch dataset")
	}

	tbl, err := dataset.ReadCSV(bytes.NewReader(record.Data))
	if err != nil {
		return dataset.Table{}, nil, CodedErrorf(http.StatusInternalServerError, "stored dataset %s is unreadable: %v", datasetId, err)
	}

	job := &database.TransformJob{
		Id:           uuid.New(),
		DatasetId:    datasetId,
		TaskType:     taskType,
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}
	if err := database.CreateJob(ctx, s.db, job); err != nil {
		slog.Error("error creating job", "error", err)
		return dataset.Table{}, nil, CodedErrorf(http.StatusInternalServerError, "failed to create job entry")
	}

	return tbl, job, nil
}

// runJob drives one orchestrator call to completion in the background,
// mirroring its outcome into the job's audit record.
func (s *BackendService) runJob(job *database.TransformJob, run func(ctx context.Context, progress orchestrator.ProgressFunc) (dataset.Table, error)) {
	ctx := context.Background()

	if err := database.UpdateJobStatus(ctx, s.db, job.Id, database.JobRunning); err != nil {
		slog.Error("error marking job running", "job_id", job.Id, "error", err)
	}

	progress := func(fraction float64) {
		if err := database.UpdateJobProgress(ctx, s.db, job.Id, fraction); err != nil {
			slog.Error("error recording job progress", "job_id", job.Id, "error", err)
		}
	}

	result, err := run(ctx, progress)
	if err != nil {
		status := database.JobFailed
		if errors.Is(err, orchestrator.ErrNoMatchingRows) {
			status = database.JobNoMatch
		}
		slog.Warn("job finished without result", "job_id", job.Id, "status", status, "error", err)
		if dbErr := database.FinishJob(ctx, s.db, job.Id, status, err.Error(), nil); dbErr != nil {
			slog.Error("error finishing job", "job_id", job.Id, "error", dbErr)
		}
		return
	}

	var buf bytes.Buffer
	if err := result.WriteCSV(&buf); err != nil {
		slog.Error("error encoding job result", "job_id", job.Id, "error", err)
		if dbErr := database.FinishJob(ctx, s.db, job.Id, database.JobFailed, fmt.Sprintf("error encoding result: %v", err), nil); dbErr != nil {
			slog.Error("error finishing job", "job_id", job.Id, "error", dbErr)
		}
		return
	}

	if err := database.FinishJob(ctx, s.db, job.Id, database.JobCompleted, "", buf.Bytes()); err != nil {
		slog.Error("error finishing job", "job_id", job.Id, "error", err)
	}
	slog.Info("job completed", "job_id", job.Id, "rows", result.NumRows())
}

func jobStatusResponse(job database.TransformJob) api.JobStatusResponse {
	resp := api.JobStatusResponse{
		JobId:        job.Id,
		DatasetId:    job.DatasetId,
		TaskType:     job.TaskType,
		Status:       job.Status,
		Progress:     job.Progress,
		CreationTime: job.CreationTime,
	}
	if job.ErrorMessage.Valid {
		resp.ErrorMessage = job.ErrorMessage.String
	}
	if job.CompletionTime.Valid {
		t := job.CompletionTime.Time
		resp.CompletionTime = &t
	}
	return resp
}

// readUpload accepts either a multipart form with a "file" field or a raw
// CSV request body.
func readUpload(r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, CodedErrorf(http.StatusBadRequest, "missing 'file' form field: %v", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, CodedErrorf(http.StatusBadRequest, "error reading upload: %v", err)
		}
		return header.Filename, data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, CodedErrorf(http.StatusBadRequest, "error reading upload: %v", err)
	}
	if len(data) == 0 {
		return "", nil, CodedErrorf(http.StatusBadRequest, "empty upload")
	}
	return "dataset", data, nil
}

func writeCSVAttachment(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("error writing csv response", "error", err)
	}
}
