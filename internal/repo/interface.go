package repo

import (
	"context"

	"github.com/BuzzLyutic/task-tracker-cli/internal/model"
)

// TaskRepository определяет интерфейс для работы с хранилищем задач.
// The whole collection is read and written at once.
type TaskRepository interface {
	Load(ctx context.Context) ([]model.Task, error)
	Save(ctx context.Context, tasks []model.Task) error
	// Lock takes an exclusive lock on the store; callers must invoke the returned unlock.
	Lock(ctx context.Context) (unlock func() error, err error)
}
