//go:build unix

package cmd

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebsworthy/arcset/internal/channel"
	"github.com/bebsworthy/arcset/internal/config"
	"github.com/bebsworthy/arcset/internal/generator"
	"github.com/bebsworthy/arcset/internal/graph"
)

// testEnv points the configuration at a private channel and returns its
// options
func testEnv(t *testing.T) channel.Options {
	t.Helper()

	dir := t.TempDir()
	name := "test-" + uuid.NewString()
	t.Setenv("ARCSET_CHANNEL_DIR", dir)
	t.Setenv("ARCSET_CHANNEL_NAME", name)
	t.Setenv("ARCSET_CHANNEL_WAIT_MAX_INTERVAL", "10ms")
	t.Setenv("ARCSET_LOGGING_LEVEL", "error")
	t.Setenv("ARCSET_CONFIG", "")

	cfg := config.DefaultConfig()
	cfg.Channel.Dir = dir
	cfg.Channel.Name = name
	cfg.Channel.WaitMaxInterval = 10 * time.Millisecond
	return channel.OptionsFromConfig(cfg.Channel)
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func assertNoObjects(t *testing.T, opts channel.Options) {
	t.Helper()

	entries, err := os.ReadDir(opts.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerate_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"not an edge", []string{"generate", "abc"}},
		{"negative id", []string{"generate", "1-2", "-1-2"}},
		{"trailing garbage", []string{"generate", "1-2x"}},
		{"missing destination", []string{"generate", "1-"}},
		{"out of range", []string{"generate", "1-4294967296"}},
		{"no edges", []string{"generate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testEnv(t)

			code, stdout, stderr := run(tt.args...)
			assert.Equal(t, 2, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, "arcset generate: ")
			assert.Contains(t, stderr, "Usage: arcset generate EDGE...")

			// Nothing was created or opened
			assertNoObjects(t, opts)
		})
	}
}

func TestSupervise_RejectsArguments(t *testing.T) {
	opts := testEnv(t)

	code, _, stderr := run("supervise", "1-2")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `arcset supervise: unexpected argument "1-2"`)
	assertNoObjects(t, opts)
}

func TestUnknownFlag(t *testing.T) {
	testEnv(t)

	code, _, stderr := run("supervise", "--no-such-flag")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "no-such-flag")
}

func TestGenerate_NoSupervisor(t *testing.T) {
	opts := testEnv(t)

	code, stdout, stderr := run("generate", "1-2", "2-1")
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "arcset generate: ")
	assert.Contains(t, stderr, "no such file or directory")
	assert.NotContains(t, stderr, "Usage:")
	assertNoObjects(t, opts)
}

func TestSupervise_ChannelExists(t *testing.T) {
	opts := testEnv(t)

	crashed, err := channel.Create(opts)
	require.NoError(t, err)
	require.NoError(t, crashed.Detach())

	code, _, stderr := run("supervise")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "arcset supervise: ")
	assert.Contains(t, stderr, "file exists")

	// The existing objects belong to someone else and are left alone
	entries, err := os.ReadDir(opts.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	code, stdout, _ := run("cleanup")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Removed 4 of 4 objects")
	assertNoObjects(t, opts)
}

func TestCleanup_NothingToRemove(t *testing.T) {
	testEnv(t)

	code, stdout, stderr := run("cleanup")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Removed 0 of 4 objects")
	assert.Contains(t, stdout, "(4 not present)")
	assert.Empty(t, stderr)
}

func TestVersion(t *testing.T) {
	testEnv(t)

	code, stdout, _ := run("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Segment layout: v1")
}

// TestSupervise_AcyclicGraph runs the supervise command against in-process
// generators for 1-2 2-3 and checks it ends on its own with every object
// removed.
func TestSupervise_AcyclicGraph(t *testing.T) {
	opts := testEnv(t)

	type result struct {
		code   int
		stdout string
		stderr string
	}
	done := make(chan result, 1)
	go func() {
		code, stdout, stderr := run("supervise")
		done <- result{code, stdout, stderr}
	}()

	var worker *channel.Channel
	require.Eventually(t, func() bool {
		var err error
		worker, err = channel.Attach(opts)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)
	defer worker.Detach()

	edges, err := graph.ParseEdges([]string{"1-2", "2-3"})
	require.NoError(t, err)

	genDone := make(chan error, 1)
	go func() {
		_, err := generator.New(graph.New(edges), worker, generator.Options{}).Run(t.Context())
		genDone <- err
	}()

	var res result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("supervise did not finish")
	}

	assert.Equal(t, 0, res.code, res.stderr)
	assert.True(t, strings.HasSuffix(res.stdout, "[arcset] The graph is acyclic!\n"), res.stdout)
	for _, line := range strings.Split(strings.TrimRight(res.stdout, "\n"), "\n") {
		assert.True(t, strings.HasPrefix(line, "[arcset] "), line)
	}

	select {
	case err := <-genDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("generator did not stop")
	}

	assertNoObjects(t, opts)
}
