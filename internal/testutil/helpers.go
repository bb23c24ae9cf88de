package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BuzzLyutic/task-tracker-cli/internal/model"
	"github.com/BuzzLyutic/task-tracker-cli/internal/repo"
)

// BaseTime is the fixed clock reading used by seeded tasks.
var BaseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SetupTaskFile возвращает путь к файлу задач во временной директории.
// The file itself is not created.
func SetupTaskFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tasks.json")
}

// SetupRepo создает FileRepo поверх временного файла
func SetupRepo(t *testing.T) (*repo.FileRepo, string) {
	t.Helper()

	path := SetupTaskFile(t)
	r, err := repo.NewFileRepo(path, repo.WithLockTimeout(10*time.Second))
	if err != nil {
		t.Fatalf("Failed to create repo: %v", err)
	}
	return r, path
}

// SeedTasks записывает count задач со статусом todo и возвращает их id
func SeedTasks(t *testing.T, path string, count int) []int64 {
	t.Helper()

	tasks := make([]model.Task, 0, count)
	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		ts := BaseTime.Add(time.Duration(i) * time.Minute)
		tasks = append(tasks, model.Task{
			ID:          int64(i + 1),
			Description: fmt.Sprintf("Task %d", i+1),
			Status:      model.StatusTodo,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		})
		ids = append(ids, int64(i+1))
	}
	WriteTasks(t, path, tasks)
	return ids
}

// WriteTasks writes tasks in the stored format.
func WriteTasks(t *testing.T, path string, tasks []model.Task) {
	t.Helper()

	data, err := repo.Encode(tasks)
	if err != nil {
		t.Fatalf("Failed to encode tasks: %v", err)
	}
	WriteRaw(t, path, data)
}

// WriteRaw writes arbitrary bytes as the task file.
func WriteRaw(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write task file: %v", err)
	}
}

// ReadRaw returns the task file bytes.
func ReadRaw(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read task file: %v", err)
	}
	return data
}

// LoadTasks reads the task file through a fresh FileRepo.
func LoadTasks(t *testing.T, path string) []model.Task {
	t.Helper()

	r, err := repo.NewFileRepo(path)
	if err != nil {
		t.Fatalf("Failed to create repo: %v", err)
	}
	tasks, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load tasks: %v", err)
	}
	return tasks
}
