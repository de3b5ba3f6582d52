package orchestrator_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transform-backend/internal/coordination"
	"transform-backend/internal/dataset"
	"transform-backend/internal/orchestrator"
	"transform-backend/internal/worker"
	"transform-backend/pkg/api"
)

// scriptedModel is a deterministic collaborator: transforms annotate the input
// with the instruction, generation echoes the record, and the filter matches
// rows containing the description as a substring.
type scriptedModel struct{}

func (scriptedModel) TransformText(_ context.Context, text, instruction string) string {
	return instruction + "(" + text + ")"
}

func (scriptedModel) GenerateBatch(_ context.Context, records []map[string]string, prompt string) []string {
	values := make([]string, len(records))
	for i, record := range records {
		values[i] = prompt + ":" + record["value"]
	}
	return values
}

func (scriptedModel) FilterMatches(_ context.Context, texts []string, description string) []bool {
	matches := make([]bool, len(texts))
	for i, text := range texts {
		matches[i] = strings.Contains(text, description)
	}
	return matches
}

func numberedTable(rows int) dataset.Table {
	tbl := dataset.New([]string{"value"})
	for i := 0; i < rows; i++ {
		tbl.Rows = append(tbl.Rows, []string{"row" + strings.Repeat("x", i%3) + "-" + string(rune('a'+i%26))})
	}
	return tbl
}

func fastOptions() orchestrator.Options {
	return orchestrator.Options{
		ChunkSize:    3,
		JobTimeout:   10 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

// startWorker runs a worker against the store until the returned stop function
// is called.
func startWorker(t *testing.T, store coordination.Store) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.New(store, scriptedModel{}, 20*time.Millisecond).Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestDistributedProcessTable(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()
	stop := startWorker(t, store)
	defer stop()

	orch := orchestrator.New(store, scriptedModel{}, fastOptions())
	require.True(t, orch.Distributed())

	tbl := numberedTable(7)
	commands := api.ColumnCommands{"value": {Command: "upper"}}

	var progress []float64
	result, err := orch.ProcessTable(context.Background(), tbl, commands, "", func(f float64) {
		progress = append(progress, f)
	})
	require.NoError(t, err)

	require.Equal(t, tbl.NumRows(), result.NumRows())
	for row := 0; row < tbl.NumRows(); row++ {
		assert.Equal(t, "upper("+tbl.Cell(row, "value")+")", result.Cell(row, "value"))
	}

	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestDistributedGenerateColumn(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()
	stop := startWorker(t, store)
	defer stop()

	orch := orchestrator.New(store, scriptedModel{}, fastOptions())

	tbl := numberedTable(5)
	result, err := orch.GenerateColumn(context.Background(), tbl, []string{"value"}, "generated", "greet", nil)
	require.NoError(t, err)

	require.True(t, result.HasColumn("generated"))
	require.Equal(t, tbl.NumRows(), result.NumRows())
	for row := 0; row < tbl.NumRows(); row++ {
		assert.Equal(t, "greet:"+tbl.Cell(row, "value"), result.Cell(row, "generated"))
	}
	assert.False(t, tbl.HasColumn("generated"))
}

func TestProcessTableRowFilter(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()
	stop := startWorker(t, store)
	defer stop()

	orch := orchestrator.New(store, scriptedModel{}, fastOptions())

	tbl := dataset.Table{
		Columns: []string{"value"},
		Rows:    [][]string{{"apple pie"}, {"banana"}, {"apple tart"}},
	}
	commands := api.ColumnCommands{"value": {Command: "upper"}}

	result, err := orch.ProcessTable(context.Background(), tbl, commands, "apple", nil)
	require.NoError(t, err)

	require.Equal(t, 2, result.NumRows())
	assert.Equal(t, "upper(apple pie)", result.Cell(0, "value"))
	assert.Equal(t, "upper(apple tart)", result.Cell(1, "value"))
}

func TestProcessTableNoMatchingRows(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	orch := orchestrator.New(store, scriptedModel{}, fastOptions())

	tbl := numberedTable(4)
	commands := api.ColumnCommands{"value": {Command: "upper"}}

	result, err := orch.ProcessTable(context.Background(), tbl, commands, "no-such-substring", nil)
	require.ErrorIs(t, err, orchestrator.ErrNoMatchingRows)
	assert.Equal(t, tbl, result)
}

func TestDistributedTimeoutWithoutWorkers(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	opts := fastOptions()
	opts.JobTimeout = 100 * time.Millisecond
	orch := orchestrator.New(store, scriptedModel{}, opts)

	tbl := numberedTable(7)
	commands := api.ColumnCommands{"value": {Command: "upper"}}

	result, err := orch.ProcessTable(context.Background(), tbl, commands, "", nil)

	var timeoutErr *orchestrator.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 2, timeoutErr.Total)
	assert.Equal(t, 0, timeoutErr.Completed)
	assert.Contains(t, err.Error(), "0/2 chunks completed")
	assert.Equal(t, tbl, result)
}

func TestDistributedContextCancellation(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	orch := orchestrator.New(store, scriptedModel{}, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := orch.ProcessTable(ctx, numberedTable(7), api.ColumnCommands{"value": {Command: "upper"}}, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalFallbackWithNilStore(t *testing.T) {
	orch := orchestrator.New(nil, scriptedModel{}, fastOptions())
	require.False(t, orch.Distributed())

	tbl := numberedTable(7)
	commands := api.ColumnCommands{"value": {Command: "upper"}}

	var progress []float64
	result, err := orch.ProcessTable(context.Background(), tbl, commands, "", func(f float64) {
		progress = append(progress, f)
	})
	require.NoError(t, err)

	require.Equal(t, tbl.NumRows(), result.NumRows())
	for row := 0; row < tbl.NumRows(); row++ {
		assert.Equal(t, "upper("+tbl.Cell(row, "value")+")", result.Cell(row, "value"))
	}
	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
}

// pingFailStore simulates an unreachable coordination backend.
type pingFailStore struct {
	coordination.Store
}

func (pingFailStore) Ping(ctx context.Context) error {
	return context.DeadlineExceeded
}

func TestLocalFallbackWhenPingFails(t *testing.T) {
	inner := coordination.NewMemoryStore()
	defer inner.Close()

	orch := orchestrator.New(pingFailStore{Store: inner}, scriptedModel{}, fastOptions())
	assert.False(t, orch.Distributed())
}

func TestFallbackEquivalence(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()
	stop := startWorker(t, store)
	defer stop()

	distributed := orchestrator.New(store, scriptedModel{}, fastOptions())
	local := orchestrator.New(nil, scriptedModel{}, fastOptions())

	tbl := numberedTable(8)
	commands := api.ColumnCommands{"value": {Command: "norm", OutputMode: api.OutputModeNewColumn, OutputName: "normalized"}}

	distResult, err := distributed.ProcessTable(context.Background(), tbl, commands, "", nil)
	require.NoError(t, err)
	localResult, err := local.ProcessTable(context.Background(), tbl, commands, "", nil)
	require.NoError(t, err)

	assert.Equal(t, localResult, distResult)

	distGen, err := distributed.GenerateColumn(context.Background(), tbl, []string{"value"}, "out", "p", nil)
	require.NoError(t, err)
	localGen, err := local.GenerateColumn(context.Background(), tbl, []string{"value"}, "out", "p", nil)
	require.NoError(t, err)

	assert.Equal(t, localGen, distGen)
}

func TestProcessTableValidation(t *testing.T) {
	orch := orchestrator.New(nil, scriptedModel{}, fastOptions())
	tbl := numberedTable(3)

	_, err := orch.ProcessTable(context.Background(), tbl, api.ColumnCommands{}, "", nil)
	assert.ErrorContains(t, err, "no column commands")

	_, err = orch.ProcessTable(context.Background(), tbl, api.ColumnCommands{"missing": {Command: "x"}}, "", nil)
	assert.ErrorContains(t, err, `no column "missing"`)
}

func TestGenerateColumnValidation(t *testing.T) {
	orch := orchestrator.New(nil, scriptedModel{}, fastOptions())
	tbl := numberedTable(3)

	_, err := orch.GenerateColumn(context.Background(), tbl, []string{"value"}, "", "p", nil)
	assert.ErrorContains(t, err, "column name is required")

	_, err = orch.GenerateColumn(context.Background(), tbl, nil, "out", "p", nil)
	assert.ErrorContains(t, err, "reference column is required")

	_, err = orch.GenerateColumn(context.Background(), tbl, []string{"missing"}, "out", "p", nil)
	assert.ErrorContains(t, err, `no column "missing"`)
}
