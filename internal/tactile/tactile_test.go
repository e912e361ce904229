package tactile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ddaharness/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// parseOut makes a fake binary find its -OUT_FN argument.
const parseOut = `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-OUT_FN" ]; then out="$2"; fi
  shift
done
`

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fake_dda")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+parseOut+body), 0755))
	return path
}

func testConfig() ExecutorConfig {
	cfg := DefaultExecutorConfig()
	cfg.DefaultTimeout = 30 * time.Second
	cfg.WaitDelay = 500 * time.Millisecond
	return cfg
}

func command(binary, outputPath string, variantIDs ...string) types.InvocationCommand {
	if len(variantIDs) == 0 {
		variantIDs = []string{"ST"}
	}
	return types.NewInvocationCommand(binary, types.FormatNative, nil,
		[]string{"-DATA_FN", "in.edf", "-OUT_FN", outputPath}, outputPath, variantIDs)
}

func TestClassifyHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   types.BinaryFormat
	}{
		{"ape magic", "MZqFpD='\n\x00\x00", types.FormatBootstrapShim},
		{"jartsr magic", "jartsr='\nexec", types.FormatBootstrapShim},
		{"other MZ assignment", "MZxyz='abc'", types.FormatBootstrapShim},
		{"plain PE", "MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff", types.FormatNative},
		{"elf", "\x7fELF\x02\x01\x01", types.FormatNative},
		{"shell script", "#!/bin/sh\necho hi", types.FormatNative},
		{"empty", "", types.FormatNative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyHeader([]byte(tt.header)))
		})
	}
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()

	shim := filepath.Join(dir, "shim")
	require.NoError(t, os.WriteFile(shim, []byte("MZqFpD='\n' <<'@'\n"), 0644))
	format, err := DetectFormat(shim)
	require.NoError(t, err)
	assert.Equal(t, types.FormatBootstrapShim, format)

	native := filepath.Join(dir, "native")
	require.NoError(t, os.WriteFile(native, []byte{0x7f, 'E', 'L', 'F'}, 0755))
	format, err = DetectFormat(native)
	require.NoError(t, err)
	assert.Equal(t, types.FormatNative, format)

	_, err = DetectFormat(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, types.ErrBinaryNotExecutable)
}

func TestLaunchPrefix(t *testing.T) {
	assert.Equal(t, []string{"sh"}, LaunchPrefix(types.FormatBootstrapShim, "linux", ""))
	assert.Equal(t, []string{"sh"}, LaunchPrefix(types.FormatBootstrapShim, "darwin", ""))
	assert.Equal(t, []string{"/bin/bash"}, LaunchPrefix(types.FormatBootstrapShim, "linux", "/bin/bash"))
	assert.Nil(t, LaunchPrefix(types.FormatBootstrapShim, "windows", ""))
	assert.Nil(t, LaunchPrefix(types.FormatNative, "linux", ""))
}

func TestEnsureExecutable(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "dda")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0644))

	require.NoError(t, EnsureExecutable(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0100, "owner execute bit should be set")

	assert.ErrorIs(t, EnsureExecutable(filepath.Join(dir, "nope")), types.ErrBinaryNotExecutable)
	assert.ErrorIs(t, EnsureExecutable(dir), types.ErrBinaryNotExecutable)
}

func TestEffectiveTimeout(t *testing.T) {
	cfg := ExecutorConfig{DefaultTimeout: time.Minute, MaxTimeout: 5 * time.Minute}
	assert.Equal(t, time.Minute, cfg.EffectiveTimeout(0))
	assert.Equal(t, 2*time.Minute, cfg.EffectiveTimeout(2*time.Minute))
	assert.Equal(t, 5*time.Minute, cfg.EffectiveTimeout(time.Hour))

	assert.Zero(t, ExecutorConfig{}.EffectiveTimeout(0))
	assert.Equal(t, 5*time.Minute, ExecutorConfig{MaxTimeout: 5 * time.Minute}.EffectiveTimeout(0),
		"a zero default is still capped")
}

func TestRun_NonZeroExitWithArtifactIsSuccess(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, `printf '0 0 1 2 3 4\n' > "${out}_ST"
echo "double free during cleanup" >&2
exit 1
`)
	out := filepath.Join(dir, "run")

	engine := NewEngine(bin, testConfig())
	result, err := engine.Run(context.Background(), command(bin, out))
	require.NoError(t, err)

	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, out+"_ST", result.Artifact)
	assert.Contains(t, result.Stderr, "double free")
	assert.Contains(t, result.OutputListing, "run_ST")
	assert.False(t, result.Killed)
}

func TestRun_ArtifactWithOriginalExtension(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, `printf '0 0 1\n' > "${out}_ST"
exit 1
`)
	out := filepath.Join(dir, "run.txt")

	result, err := NewEngine(bin, testConfig()).Run(context.Background(), command(bin, out))
	require.NoError(t, err)
	assert.Equal(t, out+"_ST", result.Artifact)
}

func TestRun_NonZeroExitWithoutArtifactFails(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, `echo "progress 10%"
echo "cannot open input file" >&2
exit 1
`)
	out := filepath.Join(dir, "run")

	result, err := NewEngine(bin, testConfig()).Run(context.Background(), command(bin, out))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExternalProcess)

	var procErr *types.ExternalProcessError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, 1, procErr.ExitCode)
	assert.Contains(t, procErr.Stderr, "cannot open input file")
	assert.Contains(t, procErr.Stdout, "progress 10%")
	assert.Equal(t, bin, procErr.Argv[0])

	require.NotNil(t, result)
	assert.False(t, result.ArtifactFound())
}

func TestRun_EmptyArtifactAfterFailedExitFails(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, `: > "${out}_ST"
echo "ERROR: cannot open input file" >&2
exit 1
`)
	out := filepath.Join(dir, "run")

	result, err := NewEngine(bin, testConfig()).Run(context.Background(), command(bin, out))
	var procErr *types.ExternalProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Contains(t, procErr.Stderr, "cannot open input file")
	require.NotNil(t, result)
	assert.Equal(t, out+"_ST", result.Artifact)
}

func TestRun_EmptyArtifactAfterCleanExitIsLeftToDecoder(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, `: > "${out}_ST"
`)

	result, err := NewEngine(bin, testConfig()).Run(context.Background(), command(bin, filepath.Join(dir, "run")))
	require.NoError(t, err)
	assert.True(t, result.ArtifactFound())
}

func TestRun_ZeroExitWithoutArtifactIsLeftToDecoder(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, "exit 0\n")

	result, err := NewEngine(bin, testConfig()).Run(context.Background(), command(bin, filepath.Join(dir, "run")))
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.ArtifactFound())
}

func TestRun_OtherVariantArtifactSatisfiesPolicy(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, `printf '0 0 1\n' > "${out}_DE"
exit 139
`)
	out := filepath.Join(dir, "run")

	result, err := NewEngine(bin, testConfig()).Run(context.Background(), command(bin, out, "ST", "DE"))
	require.NoError(t, err)
	assert.Equal(t, out+"_DE", result.Artifact)
}

func TestRun_TimeoutKillsProcessGroup(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	// The child sleep shares our pipes; only a group kill lets Wait return promptly.
	bin := writeScript(t, dir, `sleep 30 &
sleep 30
`)
	out := filepath.Join(dir, "run")

	start := time.Now()
	result, err := NewEngine(bin, testConfig()).RunWithTimeout(context.Background(), command(bin, out), 200*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)

	require.NotNil(t, result)
	assert.True(t, result.Killed)
	assert.Contains(t, result.KillReason, "timeout")
	assert.Equal(t, "timeout", types.Kind(err))
}

func TestRun_DeadlineAfterCleanExitIsNotAKill(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	// The binary exits at once, but a helper keeps stdout open past the deadline.
	bin := writeScript(t, dir, `printf '0 0 1 2 3 4\n' > "${out}_ST"
sleep 2 &
exit 0
`)
	out := filepath.Join(dir, "run")

	result, err := NewEngine(bin, testConfig()).RunWithTimeout(context.Background(), command(bin, out), 500*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, result.Killed)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, out+"_ST", result.Artifact)
}

func TestRun_BootstrapShimThroughShell(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := filepath.Join(dir, "dda.com")
	script := "MZqFpD='ape'\n" + parseOut + `printf '0 0 5 6 7 8\n' > "${out}_ST"
`
	// Not executable on purpose: permission repair must fix it.
	require.NoError(t, os.WriteFile(bin, []byte(script), 0644))

	format, err := DetectFormat(bin)
	require.NoError(t, err)
	require.Equal(t, types.FormatBootstrapShim, format)

	out := filepath.Join(dir, "run")
	cmd := types.NewInvocationCommand(bin, format, LaunchPrefix(format, runtime.GOOS, ""),
		[]string{"-OUT_FN", out}, out, []string{"ST"})
	assert.Equal(t, "sh", cmd.Argv()[0])

	result, err := NewEngine(bin, testConfig()).Run(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, out+"_ST", result.Artifact)

	info, err := os.Stat(bin)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0100)
}

func TestRun_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "absent")
	_, err := NewEngine(bin, testConfig()).Run(context.Background(), command(bin, filepath.Join(dir, "run")))
	assert.ErrorIs(t, err, types.ErrBinaryNotExecutable)
}

func TestRun_EmptyCommand(t *testing.T) {
	_, err := NewEngine("dda", testConfig()).Run(context.Background(), types.InvocationCommand{})
	assert.ErrorIs(t, err, types.ErrMissingParameter)
}

func TestRun_TruncatesOutput(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, `i=0
while [ $i -lt 50 ]; do echo "0123456789"; i=$((i+1)); done
printf '0 0 1\n' > "${out}_ST"
`)
	cfg := testConfig()
	cfg.MaxOutputBytes = 64

	result, err := NewEngine(bin, cfg).Run(context.Background(), command(bin, filepath.Join(dir, "run")))
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Stdout, 64)
}

func TestRun_AuditEvents(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, `printf '0 0 1\n' > "${out}_ST"
`)

	var mu sync.Mutex
	var events []AuditEvent
	engine := NewEngine(bin, testConfig())
	engine.SetAuditCallback(func(e AuditEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	_, err := engine.Run(context.Background(), command(bin, filepath.Join(dir, "run")))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, AuditEventStart, events[0].Type)
	assert.Equal(t, "run", events[0].RunID)
	assert.Equal(t, AuditEventComplete, events[1].Type)
	require.NotNil(t, events[1].Result)
	assert.True(t, strings.HasSuffix(events[1].Result.Artifact, "run_ST"))
	assert.False(t, events[1].Timestamp.IsZero())
}

func TestSubmit_DoesNotBlockCaller(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, `sleep 0.3
printf '0 0 1\n' > "${out}_ST"
exit 1
`)
	out := filepath.Join(dir, "run")

	job := NewEngine(bin, testConfig()).Submit(context.Background(), command(bin, out))

	_, _, ok := job.Result()
	assert.False(t, ok, "job should still be running")

	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("job never finished")
	}

	result, err, ok := job.Result()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, out+"_ST", result.Artifact)
	assert.Equal(t, out, job.Command().OutputPath())
}

func TestSubmit_CancelKillsProcess(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, "sleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	job := NewEngine(bin, testConfig()).Submit(ctx, command(bin, filepath.Join(dir, "run")))
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	result, err := job.Wait(waitCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.True(t, result.Killed)
}

func TestSubmit_LaunchFailureCompletesImmediately(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "absent")
	job := NewEngine(bin, testConfig()).Submit(context.Background(), command(bin, filepath.Join(dir, "run")))

	_, err, ok := job.Result()
	require.True(t, ok)
	assert.ErrorIs(t, err, types.ErrBinaryNotExecutable)
}

func TestJobWait_GivesUpWithContext(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, "sleep 0.5\n")

	job := NewEngine(bin, testConfig()).Submit(context.Background(), command(bin, filepath.Join(dir, "run")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := job.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	<-job.Done()
}

func TestArtifactWatcher(t *testing.T) {
	dir := t.TempDir()
	aw, err := watchArtifacts(dir, "run.txt")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_ST"), []byte("1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated"), []byte("1"), 0644))

	assert.Eventually(t, func() bool {
		aw.mu.Lock()
		defer aw.mu.Unlock()
		_, ok := aw.seen[filepath.Join(dir, "run_ST")]
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	seen := aw.Stop()
	assert.Equal(t, []string{filepath.Join(dir, "run_ST")}, seen)
}

func TestFindArtifact_LegacyBareName(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "run")
	require.NoError(t, os.WriteFile(out, []byte("0 0 1"), 0644))

	assert.Equal(t, out, FindArtifact(out, []string{"ST"}))
	assert.Equal(t, "", FindArtifact(out, []string{"DE"}))
	assert.Equal(t, out, FindArtifact(out, nil))
}

func TestLimitedWriter(t *testing.T) {
	var sb strings.Builder
	lw := &limitedWriter{w: &sb, max: 5}
	n, err := lw.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = lw.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcde", sb.String())
	assert.True(t, lw.truncated)
	assert.EqualValues(t, 3, lw.discarded)
}
