package cluster

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/sterope-gsa/sterope/internal/executor"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// startWorker serves a worker over an in-memory listener
func startWorker(t *testing.T, workdir string, slots int) grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewServer(workdir, slots).Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestCommandCodec(t *testing.T) {
	cmd := executor.Command{Label: "level07", Argv: []string{"kasim4", "-i", "model_level07.kappa"}, Dir: "/tmp/run"}
	req, err := encodeCommand("task-1", cmd)
	require.NoError(t, err)

	id, got, err := decodeCommand(req)
	require.NoError(t, err)
	require.Equal(t, "task-1", id)
	require.Equal(t, cmd, got)

	res, err := encodeResult("task-1", executor.Result{ExitCode: 2, Stdout: "o", Stderr: "e", Duration: 1500 * time.Millisecond})
	require.NoError(t, err)
	back := decodeResult("level07", res)
	require.Equal(t, 2, back.ExitCode)
	require.Equal(t, "level07", back.Label)
	require.Equal(t, 1500*time.Millisecond, back.Duration)
}

func TestDecodeCommandRejectsEmptyArgv(t *testing.T) {
	req, err := encodeCommand("task-1", executor.Command{Label: "level1"})
	require.NoError(t, err)
	_, _, err = decodeCommand(req)
	require.Error(t, err)
}

func TestClientRun(t *testing.T) {
	requireShell(t)
	workdir := t.TempDir()
	dialer := startWorker(t, workdir, 2)

	client, err := Dial("passthrough:///bufnet", dialer)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Check(ctx))

	// a relative directory resolves against the worker's workdir
	res, err := client.Run(ctx, executor.Command{
		Label: "level1",
		Argv:  []string{"sh", "-c", "pwd; echo warn >&2; exit 4"},
		Dir:   ".",
	})
	require.NoError(t, err)
	require.Equal(t, "level1", res.Label)
	require.Equal(t, 4, res.ExitCode)
	require.Equal(t, "warn\n", res.Stderr)
	gotDir, err := filepath.EvalSymlinks(res.Stdout[:len(res.Stdout)-1])
	require.NoError(t, err)
	wantDir, err := filepath.EvalSymlinks(workdir)
	require.NoError(t, err)
	require.Equal(t, wantDir, gotDir)
}

func TestClientRunStartFailure(t *testing.T) {
	dialer := startWorker(t, t.TempDir(), 1)
	client, err := Dial("passthrough:///bufnet", dialer)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = client.Run(ctx, executor.Command{Label: "level1", Argv: []string{"/nonexistent/kasim4"}})
	require.Error(t, err)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestExecutorRunExpandsWorkerHome(t *testing.T) {
	requireShell(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "bin"), 0o755))
	script := "#!/bin/sh\necho simulated \"$@\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "bin", "kasim4"), []byte(script), 0o755))

	dialer := startWorker(t, t.TempDir(), 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ex, err := New(ctx, []string{"passthrough:///w1"}, 1, dialer)
	require.NoError(t, err)
	defer ex.Close()

	results, err := ex.Run(ctx, []executor.Command{{
		Label: "level1",
		Argv:  []string{"~/bin/kasim4", "-i", "model_level1.kappa"},
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 0, results[0].ExitCode)
	require.Equal(t, "simulated -i model_level1.kappa\n", results[0].Stdout)
}

func TestExecutorRun(t *testing.T) {
	requireShell(t)

	dialer := startWorker(t, t.TempDir(), 2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ex, err := New(ctx, []string{"passthrough:///w1", "passthrough:///w2"}, 2, dialer)
	require.NoError(t, err)
	defer ex.Close()
	require.Equal(t, "cluster", ex.Name())
	require.Equal(t, 4, ex.Slots())

	var cmds []executor.Command
	for _, label := range []string{"level1", "level2", "level3", "level4", "level5"} {
		cmds = append(cmds, executor.Command{Label: label, Argv: []string{"sh", "-c", "echo " + label}})
	}
	results, err := ex.Run(ctx, cmds)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, res := range results {
		require.Equal(t, cmds[i].Label, res.Label)
		require.Equal(t, cmds[i].Label+"\n", res.Stdout)
	}

	out, err := executor.Map(ctx, ex, []int{1, 2, 3}, func(ctx context.Context, v int) (int, error) {
		return v * 10, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{10, 20, 30}, out)
}

func TestNewRequiresWorkers(t *testing.T) {
	_, err := New(context.Background(), nil, 1)
	require.Error(t, err)
}

func TestNewUnreachableWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	failing := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return nil, net.ErrClosed
	})
	_, err := New(ctx, []string{"passthrough:///down"}, 1, failing)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not ready")
}
