package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/task-tracker-cli/internal/handler"
	"github.com/BuzzLyutic/task-tracker-cli/internal/model"
	"github.com/BuzzLyutic/task-tracker-cli/internal/testutil"
)

type cli struct {
	t    *testing.T
	path string
}

type result struct {
	code   int
	stdout string
	stderr string
}

// newCLI runs every invocation from a fresh working directory with no config files.
func newCLI(t *testing.T) *cli {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, key := range []string{"TASK_CLI_FILE", "TASK_CLI_LOG_LEVEL", "TASK_CLI_LOCK_TIMEOUT", "TASK_CLI_ON_CORRUPT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	dir := t.TempDir()
	t.Chdir(dir)
	return &cli{t: t, path: filepath.Join(dir, "tasks.json")}
}

func (c *cli) run(args ...string) result {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestE2E_FullWorkflow(t *testing.T) {
	c := newCLI(t)

	res := c.run("add", "Buy groceries")
	require.Equal(t, handler.ExitOK, res.code, res.stderr)
	assert.Equal(t, "Task added successfully (ID: 1)\n", res.stdout)

	res = c.run("add", "Walk the dog")
	assert.Equal(t, "Task added successfully (ID: 2)\n", res.stdout)

	res = c.run("mark-done", "1")
	require.Equal(t, handler.ExitOK, res.code)
	assert.Equal(t, "Task marked as done.\n", res.stdout)

	res = c.run("list", "done")
	require.Equal(t, handler.ExitOK, res.code)
	assert.Contains(t, res.stdout, "[1] Buy groceries")
	assert.Contains(t, res.stdout, "Status: done")
	assert.NotContains(t, res.stdout, "Walk the dog")

	res = c.run("delete", "1")
	assert.Equal(t, "Task deleted successfully.\n", res.stdout)
	res = c.run("delete", "2")
	assert.Equal(t, handler.ExitOK, res.code)

	res = c.run("list")
	assert.Equal(t, handler.ExitOK, res.code)
	assert.Equal(t, "No tasks found.\n", res.stdout)
	assert.Equal(t, "[]", string(testutil.ReadRaw(t, c.path)))
}

func TestE2E_UpdateMissingOnEmptyStore(t *testing.T) {
	c := newCLI(t)

	res := c.run("update", "99", "x")

	assert.Equal(t, handler.ExitNotFound, res.code)
	assert.Equal(t, "Error: task with ID 99 not found\n", res.stderr)
	assert.Empty(t, res.stdout)
	assert.NoFileExists(t, c.path)
	assert.NoFileExists(t, c.path+".lock")
}

func TestE2E_IDSpaceExhausted(t *testing.T) {
	c := newCLI(t)
	testutil.WriteRaw(t, c.path, []byte(`[{"id": 9223372036854775807, "description": "last", "status": "todo",`+
		` "createdAt": "2024-01-01T00:00:00.000Z", "updatedAt": "2024-01-01T00:00:00.000Z"}]`))
	before := testutil.ReadRaw(t, c.path)

	res := c.run("add", "y")

	assert.Equal(t, handler.ExitFailure, res.code)
	assert.Contains(t, res.stderr, "no task ids left")
	assert.Empty(t, res.stdout)
	assert.Equal(t, before, testutil.ReadRaw(t, c.path))

	res = c.run("list")
	assert.Contains(t, res.stdout, "[9223372036854775807] last")
}

func TestE2E_InvalidStatusFilter(t *testing.T) {
	c := newCLI(t)

	res := c.run("list", "bogus-status")

	assert.Equal(t, handler.ExitValidation, res.code)
	for _, name := range model.StatusNames() {
		assert.Contains(t, res.stderr, name)
	}
}

func TestE2E_IDsNeverReused(t *testing.T) {
	c := newCLI(t)

	for i := 0; i < 3; i++ {
		require.Equal(t, handler.ExitOK, c.run("add", "task").code)
	}
	require.Equal(t, handler.ExitOK, c.run("delete", "3").code)
	require.Equal(t, handler.ExitOK, c.run("delete", "1").code)

	res := c.run("add", "after delete")
	assert.Equal(t, "Task added successfully (ID: 3)\n", res.stdout, "max id was 2 after deleting 3")

	require.Equal(t, handler.ExitOK, c.run("delete", "2").code)
	res = c.run("add", "again")
	assert.Equal(t, "Task added successfully (ID: 4)\n", res.stdout)
}

func TestE2E_UpdateKeepsCreatedAt(t *testing.T) {
	c := newCLI(t)
	require.Equal(t, handler.ExitOK, c.run("add", "draft").code)
	before := testutil.LoadTasks(t, c.path)[0]

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, handler.ExitOK, c.run("update", "1", "final").code)

	after := testutil.LoadTasks(t, c.path)[0]
	assert.Equal(t, "final", after.Description)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	assert.Equal(t, model.StatusTodo, after.Status)
}

func TestE2E_FailedDeleteLeavesFileUntouched(t *testing.T) {
	c := newCLI(t)
	testutil.SeedTasks(t, c.path, 2)
	before := testutil.ReadRaw(t, c.path)

	res := c.run("delete", "42")

	assert.Equal(t, handler.ExitNotFound, res.code)
	assert.Equal(t, before, testutil.ReadRaw(t, c.path))
}

func TestE2E_StoredFormat(t *testing.T) {
	c := newCLI(t)
	require.Equal(t, handler.ExitOK, c.run("add", "Buy <milk> & eggs").code)

	raw := string(testutil.ReadRaw(t, c.path))

	assert.True(t, strings.HasPrefix(raw, "[\n  {\n    \"id\": 1,\n    \"description\": \"Buy <milk> & eggs\",\n    \"status\": \"todo\",\n"), raw)
	assert.False(t, strings.HasSuffix(raw, "\n"))
	assert.Regexp(t, `"createdAt": "\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z"`, raw)
}

func TestE2E_HelpAndUnknownCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no arguments", args: nil},
		{name: "short help", args: []string{"-h"}},
		{name: "long help", args: []string{"--help"}},
		{name: "help command", args: []string{"help"}},
		{name: "unknown command", args: []string{"frobnicate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCLI(t)

			res := c.run(tt.args...)

			assert.Equal(t, handler.ExitOK, res.code)
			assert.Contains(t, res.stdout, "Usage:")
			assert.Empty(t, res.stderr)
			assert.NoFileExists(t, c.path)
		})
	}
}

func TestE2E_FlagsAndConfig(t *testing.T) {
	c := newCLI(t)
	other := filepath.Join(t.TempDir(), "elsewhere.json")

	res := c.run("--file", other, "--json", "add", "routed")
	require.Equal(t, handler.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"description": "routed"`)
	assert.FileExists(t, other)
	assert.NoFileExists(t, c.path)

	res = c.run("--log-level", "chatty", "list")
	assert.Equal(t, handler.ExitValidation, res.code)
	assert.Contains(t, res.stderr, "invalid log level")
}

func TestE2E_CorruptFilePolicy(t *testing.T) {
	c := newCLI(t)
	testutil.WriteRaw(t, c.path, []byte("not json at all"))

	res := c.run("add", "x")
	assert.Equal(t, handler.ExitFailure, res.code)
	assert.Contains(t, res.stderr, "refusing to modify it")
	assert.Equal(t, "not json at all", string(testutil.ReadRaw(t, c.path)))

	res = c.run("list")
	assert.Equal(t, handler.ExitOK, res.code)
	assert.Equal(t, "No tasks found.\n", res.stdout)
	assert.Contains(t, res.stderr, "task file unreadable", "warning goes to stderr")

	res = c.run("--on-corrupt", "reset", "add", "x")
	assert.Equal(t, handler.ExitOK, res.code)
	assert.Equal(t, "Task added successfully (ID: 1)\n", res.stdout)
}
