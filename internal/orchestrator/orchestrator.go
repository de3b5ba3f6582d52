package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"transform-backend/internal/coordination"
	"transform-backend/internal/dataset"
	"transform-backend/internal/llm"
	"transform-backend/pkg/api"
)

// ErrNoMatchingRows is returned when the row filter matches nothing. It is a
// valid empty-result outcome, not a processing failure: the input table is
// returned unchanged alongside it.
var ErrNoMatchingRows = errors.New("no matching rows found")

// TimeoutError reports a job that did not complete within the configured
// window, carrying how far it got.
type TimeoutError struct {
	Completed int
	Total     int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("processing timeout: only %d/%d chunks completed", e.Completed, e.Total)
}

// ProgressFunc receives fractional completion in [0, 1]. It is always called
// with 1.0 once a job finishes.
type ProgressFunc func(fraction float64)

type Options struct {
	ChunkSize    int
	JobTimeout   time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 50
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = time.Hour
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	return o
}

// strategy is the execution backend for one orchestrator. It is chosen once
// at construction and never changes: distributed when the coordination store
// is reachable, single-process otherwise. Both obey the same contract, so
// callers cannot tell which one they got except by timing.
type strategy interface {
	ProcessTable(ctx context.Context, tbl dataset.Table, commands api.ColumnCommands, searchDescription string, progress ProgressFunc) (dataset.Table, error)
	GenerateColumn(ctx context.Context, tbl dataset.Table, referenceColumns []string, newColumnName, generationPrompt string, progress ProgressFunc) (dataset.Table, error)
}

// Orchestrator owns the lifecycle of transform and generation jobs. Failures
// surface as (originalTable, error); the input is always safe to render.
type Orchestrator struct {
	strategy    strategy
	distributed bool
}

// New builds an orchestrator. If store is nil or unreachable, the
// orchestrator permanently runs jobs in-process with identical semantics.
func New(store coordination.Store, model llm.LLM, opts Options) *Orchestrator {
	opts = opts.withDefaults()

	if store == nil {
		slog.Warn("no coordination store configured, using single-process execution")
		return &Orchestrator{strategy: &localStrategy{model: model, opts: opts}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		slog.Warn("coordination store unreachable, falling back to single-process execution", "error", err)
		return &Orchestrator{strategy: &localStrategy{model: model, opts: opts}}
	}

	return &Orchestrator{
		strategy:    &distributedStrategy{store: store, model: model, opts: opts},
		distributed: true,
	}
}

// Distributed reports whether jobs run through the coordination store.
func (o *Orchestrator) Distributed() bool {
	return o.distributed
}

// ProcessTable applies per-column transformation commands to every row,
// optionally restricted to rows matching searchDescription.
func (o *Orchestrator) ProcessTable(ctx context.Context, tbl dataset.Table, commands api.ColumnCommands, searchDescription string, progress ProgressFunc) (dataset.Table, error) {
	if len(commands) == 0 {
		return tbl, errors.New("no column commands provided")
	}
	for col := range commands {
		if !tbl.HasColumn(col) {
			return tbl, fmt.Errorf("table has no column %q", col)
		}
	}
	return o.strategy.ProcessTable(ctx, tbl, commands, searchDescription, progress)
}

// GenerateColumn adds a new column whose values are generated from the
// reference columns of each row.
func (o *Orchestrator) GenerateColumn(ctx context.Context, tbl dataset.Table, referenceColumns []string, newColumnName, generationPrompt string, progress ProgressFunc) (dataset.Table, error) {
	if newColumnName == "" {
		return tbl, errors.New("new column name is required")
	}
	if len(referenceColumns) == 0 {
		return tbl, errors.New("at least one reference column is required")
	}
	for _, col := range referenceColumns {
		if !tbl.HasColumn(col) {
			return tbl, fmt.Errorf("table has no column %q", col)
		}
	}
	return o.strategy.GenerateColumn(ctx, tbl, referenceColumns, newColumnName, generationPrompt, progress)
}

// filterRows applies the natural-language row filter. The search text for a
// row is the concatenation of its values in the transformation target
// columns. Returns the rows to process and whether any row matched; with no
// description every row is kept.
func filterRows(ctx context.Context, model llm.LLM, tbl dataset.Table, commands api.ColumnCommands, searchDescription string) (dataset.Table, bool) {
	if searchDescription == "" {
		return tbl, tbl.NumRows() > 0
	}

	columns := make([]string, 0, len(commands))
	for col := range commands {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	texts := make([]string, tbl.NumRows())
	for row := 0; row < tbl.NumRows(); row++ {
		texts[row] = tbl.SearchText(row, columns)
	}

	matches := model.FilterMatches(ctx, texts, searchDescription)

	var keep []int
	for row, matched := range matches {
		if matched {
			keep = append(keep, row)
		}
	}
	if len(keep) == 0 {
		return dataset.Table{}, false
	}

	slog.Info("row filter applied", "matched", len(keep), "total", tbl.NumRows())
	return tbl.Select(keep), true
}

func reportProgress(progress ProgressFunc, fraction float64) {
	if progress != nil {
		progress(fraction)
	}
}
