package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T, storeMatrices bool) *RunStore {
	t.Helper()
	s, err := Open(":memory:", storeMatrices)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id string, started time.Time) RunRecord {
	return RunRecord{
		ID:         id,
		InputPath:  "/data/p1.edf",
		OutputPath: "/tmp/dda/" + id,
		Argv:       []string{"/opt/dda", "-DATA_FN", "/data/p1.edf", "-OUT_FN", "/tmp/dda/" + id},
		Format:     "native",
		Variants:   []string{"ST", "DE"},
		ExitCode:   1,
		Status:     StatusSuccess,
		StartedAt:  started,
		Duration:   1500 * time.Millisecond,
		Results: []ResultRecord{
			{Variant: "ST", Rows: 2, Cols: 3, SourcePath: "/tmp/dda/" + id + "_ST", Matrix: [][]float64{{1, 2, 3}, {4, 5, 6}}},
			{Variant: "DE", Warnings: []string{"no output file for DE"}},
		},
	}
}

func TestRecordAndGetRun(t *testing.T) {
	s := openMemory(t, true)
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

	require.NoError(t, s.RecordRun(ctx, sampleRun("run-1", started)))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "/data/p1.edf", got.InputPath)
	assert.Equal(t, []string{"ST", "DE"}, got.Variants)
	assert.Equal(t, 1, got.ExitCode)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, "-OUT_FN", got.Argv[3])

	require.Len(t, got.Results, 2)
	// Ordered by variant name.
	assert.Equal(t, "DE", got.Results[0].Variant)
	assert.Equal(t, []string{"no output file for DE"}, got.Results[0].Warnings)
	assert.Nil(t, got.Results[0].Matrix)
	assert.Equal(t, "ST", got.Results[1].Variant)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, got.Results[1].Matrix)
}

func TestRecordRun_WithoutMatrices(t *testing.T) {
	s := openMemory(t, false)
	ctx := context.Background()
	require.NoError(t, s.RecordRun(ctx, sampleRun("run-1", time.Now())))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	for _, res := range got.Results {
		assert.Nil(t, res.Matrix)
	}
	assert.Equal(t, 2, got.Results[1].Rows)
}

func TestRecordRun_ReplacesResults(t *testing.T) {
	s := openMemory(t, true)
	ctx := context.Background()
	rec := sampleRun("run-1", time.Now())
	require.NoError(t, s.RecordRun(ctx, rec))

	rec.Status = StatusFailed
	rec.ErrorKind = "external_process"
	rec.Error = "exit code 1"
	rec.Results = nil
	require.NoError(t, s.RecordRun(ctx, rec))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "external_process", got.ErrorKind)
	assert.Empty(t, got.Results)
}

func TestGetRun_NotFound(t *testing.T) {
	s := openMemory(t, true)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordRun_RequiresID(t *testing.T) {
	s := openMemory(t, true)
	assert.Error(t, s.RecordRun(context.Background(), RunRecord{}))
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := openMemory(t, true)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)
	assert.Empty(t, runs[0].Results)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestOpen_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")
	s, err := Open(path, true)
	require.NoError(t, err)
	require.NoError(t, s.RecordRun(context.Background(), sampleRun("run-1", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path, true)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
	got, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
}
