package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ddaharness/cmd/dda/ui"
	"ddaharness/internal/config"
	"ddaharness/internal/edf"
	"ddaharness/internal/types"
)

const fakeBinary = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-OUT_FN" ]; then out="$2"; fi
  shift
done
printf '0 125 0.1 9 9 9 0.2 9 9 9\n62 187 0.11 9 9 9 0.21 9 9 9\n' > "${out}_ST"
exit 1
`

// setupCLI writes a config pointing at temp paths and resets global flag state.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	c := config.DefaultConfig()
	c.Binary.Path = filepath.Join(dir, "run_DDA_AsciiEdf")
	c.Execution.WorkDir = filepath.Join(dir, "work")
	c.Execution.WaitDelay = "500ms"
	c.Store.DatabasePath = filepath.Join(dir, "runs.db")
	c.Logging.Level = "error"
	path := filepath.Join(dir, "dda.yaml")
	require.NoError(t, c.Save(path))

	verbose, jsonOutput, timeout = false, false, 0
	styles = ui.PlainStyles()
	logger = zap.NewNop()
	for _, key := range []string{"DDA_BINARY_PATH", "DDA_WORK_DIR", "DDA_TIMEOUT", "DDA_MAX_PARALLEL", "DDA_DB", "DDA_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVariantsCommand(t *testing.T) {
	cfgPath := setupCLI(t)

	out, err := execute(t, "variants", "--config", cfgPath)
	require.NoError(t, err)
	for _, want := range []string{"ST", "CT", "CD_DDA_ST", "DE", "SY", "slot 3 is reserved"} {
		assert.Contains(t, out, want)
	}
}

func TestMaskCommands(t *testing.T) {
	cfgPath := setupCLI(t)

	out, err := execute(t, "mask", "encode", "ST,DE", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "1 0 0 0 1 0\n", out)

	out, err = execute(t, "mask", "decode", "0 1 1 0 0 1", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "CT CD SY\n", out)

	_, err = execute(t, "mask", "decode", "1 0 1", "--config", cfgPath)
	assert.ErrorIs(t, err, types.ErrMaskLength)

	_, err = execute(t, "mask", "encode", "XX", "--config", cfgPath)
	assert.ErrorIs(t, err, types.ErrUnknownVariant)
}

func TestEDFCommand(t *testing.T) {
	cfgPath := setupCLI(t)

	h := &edf.Header{
		Version:        "0",
		PatientID:      "P-17",
		RecordingID:    "night",
		StartDate:      "01.02.24",
		StartTime:      "22.00.00",
		NumRecords:     60,
		RecordDuration: 1,
		Signals: []edf.Signal{
			{Label: "Fp1", PhysicalDimension: "uV", PhysicalMin: -3200, PhysicalMax: 3200, DigitalMin: -32768, DigitalMax: 32767, SamplesPerRecord: 256},
			{Label: "Fp2", PhysicalDimension: "uV", PhysicalMin: -3200, PhysicalMax: 3200, DigitalMin: -32768, DigitalMax: 32767, SamplesPerRecord: 256},
		},
	}
	data, err := h.MarshalBinary()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rec.edf")
	require.NoError(t, os.WriteFile(path, data, 0644))

	out, err := execute(t, "edf", path, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "P-17")
	assert.Contains(t, out, "Fp2")
	assert.Contains(t, out, "256")
	assert.Contains(t, out, "15360")
}

func TestRunAndHistory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake binary is a shell script")
	}
	cfgPath := setupCLI(t)
	c, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(c.Binary.Path, []byte(fakeBinary), 0755))

	docsPath := filepath.Join(t.TempDir(), "docs.json")
	out, err := execute(t, "run", "-i", "signal.edf", "--channels", "0,1", "-o", docsPath, "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "ST")
	assert.Contains(t, out, "binary exited 1 after writing output")

	data, err := os.ReadFile(docsPath)
	require.NoError(t, err)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(data, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "ST", docs[0]["variant"])
	assert.Equal(t, []any{"ch0", "ch1"}, docs[0]["channel_names"])
	runID := docs[0]["run_id"].(string)

	out, err = execute(t, "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "success")

	out, err = execute(t, "history", runID, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "signal.edf")
	assert.True(t, strings.Contains(out, "ST"))
}

func TestBuildRequest(t *testing.T) {
	setupCLI(t)
	cfg = config.DefaultConfig()
	saved := runFlags
	defer func() { runFlags = saved }()

	runFlags.channels = []int{0, 1}
	runFlags.variants = []string{"ST", "CT"}
	runFlags.ctPairs = []string{"0-1"}
	runFlags.delays = []int{3, 5}
	runFlags.ascii = true

	req, labels, err := buildRequest("table.txt")
	require.NoError(t, err)
	assert.Nil(t, labels)
	assert.Equal(t, types.FormatASCII, req.InputFormat)
	assert.Equal(t, []types.ChannelPair{{0, 1}}, req.CTPairs)
	assert.Equal(t, []int{3, 5}, req.DelayValues())
	assert.Equal(t, 125, req.WindowLength, "config defaults fill the rest")
	assert.Equal(t, []int{1, 2, 10}, req.ModelTerms)

	runFlags.startSec = 5
	_, _, err = buildRequest("table.txt")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestBuildRequest_PartialDelayRange(t *testing.T) {
	setupCLI(t)
	cfg = config.DefaultConfig()
	cfg.Analysis.DelayMin, cfg.Analysis.DelayMax = 7, 10
	saved := runFlags
	defer func() { runFlags = saved }()
	runFlags.channels = []int{0}
	runFlags.ascii = true

	runFlags.delayMin = 8
	req, _, err := buildRequest("table.txt")
	require.NoError(t, err)
	assert.Equal(t, &types.DelayRange{Min: 8, Max: 10}, req.DelayRange)

	runFlags.delayMin, runFlags.delayMax = 0, 9
	req, _, err = buildRequest("table.txt")
	require.NoError(t, err)
	assert.Equal(t, &types.DelayRange{Min: 7, Max: 9}, req.DelayRange)

	runFlags.delayMin, runFlags.delayMax = 12, 0
	_, _, err = buildRequest("table.txt")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestParsePairs(t *testing.T) {
	pairs, err := parsePairs([]string{"0-1", "2:3", " 4 - 5 "})
	require.NoError(t, err)
	assert.Equal(t, []types.ChannelPair{{0, 1}, {2, 3}, {4, 5}}, pairs)

	for _, bad := range []string{"01", "-1", "a-b", "1-"} {
		_, err := parsePairs([]string{bad})
		assert.ErrorIs(t, err, types.ErrInvalidRequest, bad)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"ST", "DE", "SY"}, splitList([]string{"ST,DE", " SY "}))
}
