package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-tracker-cli/internal/model"
	"github.com/BuzzLyutic/task-tracker-cli/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
	// ErrIDsExhausted means the largest stored id has no successor.
	ErrIDsExhausted = errors.New("no task ids left: the largest id is already the maximum")
)

// ValidationError describes rejected input. It matches ErrValidation under errors.Is.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CorruptPolicy decides what a mutating command does when the task file cannot be loaded.
type CorruptPolicy string

const (
	// CorruptRefuse fails the command and leaves the file untouched.
	CorruptRefuse CorruptPolicy = "refuse"
	// CorruptReset starts from an empty list, overwriting the file on save.
	CorruptReset CorruptPolicy = "reset"
)

// ParseCorruptPolicy validates a policy name.
func ParseCorruptPolicy(s string) (CorruptPolicy, error) {
	switch p := CorruptPolicy(s); p {
	case CorruptRefuse, CorruptReset:
		return p, nil
	default:
		return "", fmt.Errorf("invalid corrupt-file policy %q, must be one of: %s, %s", s, CorruptRefuse, CorruptReset)
	}
}

type Stats struct {
	Total    int                  `json:"total"`
	ByStatus map[model.Status]int `json:"by_status"`
}

type TaskService struct {
	repo   repo.TaskRepository
	logger *zap.Logger
	now    func() time.Time
	policy CorruptPolicy
}

type Option func(*TaskService)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

func WithCorruptPolicy(p CorruptPolicy) Option {
	return func(s *TaskService) { s.policy = p }
}

func NewTaskService(repo repo.TaskRepository, logger *zap.Logger, opts ...Option) *TaskService {
	s := &TaskService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		policy: CorruptRefuse,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextID returns 1 for an empty collection, otherwise one past the largest id.
func NextID(tasks []model.Task) (int64, error) {
	var maxID int64
	for _, t := range tasks {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	if maxID == math.MaxInt64 {
		return 0, ErrIDsExhausted
	}
	return maxID + 1, nil
}

// ParseID parses a base-10 task id.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: "id", Msg: fmt.Sprintf("invalid task ID %q", s)}
	}
	return id, nil
}

func (s *TaskService) Add(ctx context.Context, description string) (model.Task, error) {
	if err := validateDescription(description, "task description is required"); err != nil { // Валидация до обращения к хранилищу
		return model.Task{}, err
	}

	var created model.Task
	err := s.mutate(ctx, func(tasks []model.Task) ([]model.Task, error) {
		id, err := NextID(tasks)
		if err != nil {
			return nil, err
		}
		now := s.timestamp()
		created = model.Task{
			ID:          id,
			Description: description,
			Status:      model.StatusTodo,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return append(tasks, created), nil
	})
	if err != nil {
		return model.Task{}, err
	}

	s.logger.Debug("task added", zap.Int64("task_id", created.ID))
	return created, nil
}

func (s *TaskService) Update(ctx context.Context, id int64, description string) (model.Task, error) {
	if err := validateDescription(description, "new description is required"); err != nil {
		return model.Task{}, err
	}

	var updated model.Task
	err := s.mutate(ctx, func(tasks []model.Task) ([]model.Task, error) {
		i := indexOf(tasks, id)
		if i < 0 {
			return nil, notFound(id)
		}
		tasks[i].Description = description
		tasks[i].UpdatedAt = s.timestamp()
		updated = tasks[i]
		return tasks, nil
	})
	if err != nil {
		return model.Task{}, err
	}

	s.logger.Debug("task updated", zap.Int64("task_id", id))
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(tasks []model.Task) ([]model.Task, error) {
		kept := make([]model.Task, 0, len(tasks))
		for _, t := range tasks {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(tasks) {
			return nil, notFound(id)
		}
		return kept, nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("task deleted", zap.Int64("task_id", id))
	return nil
}

func (s *TaskService) SetStatus(ctx context.Context, id int64, status model.Status) (model.Task, error) {
	if !status.Valid() {
		return model.Task{}, &ValidationError{Field: "status", Msg: (&model.StatusError{Value: status.String()}).Error()}
	}

	var updated model.Task
	err := s.mutate(ctx, func(tasks []model.Task) ([]model.Task, error) {
		i := indexOf(tasks, id)
		if i < 0 {
			return nil, notFound(id)
		}
		tasks[i].Status = status
		tasks[i].UpdatedAt = s.timestamp()
		updated = tasks[i]
		return tasks, nil
	})
	if err != nil {
		return model.Task{}, err
	}

	s.logger.Debug("task status changed", zap.Int64("task_id", id), zap.Stringer("status", status))
	return updated, nil
}

// ParseStatusFilter turns an optional status argument into a filter. Empty means no filter.
func ParseStatusFilter(raw string) (model.TaskFilter, error) {
	if raw == "" {
		return model.TaskFilter{}, nil
	}
	st, err := model.ParseStatus(raw)
	if err != nil {
		return model.TaskFilter{}, &ValidationError{
			Field: "status",
			Msg:   "invalid status filter. Use: " + strings.Join(model.StatusNames(), ", "),
		}
	}
	return model.TaskFilter{Status: &st}, nil
}

// List returns the tasks passing filter in stored order. It never writes.
func (s *TaskService) List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, &ValidationError{Field: "status", Msg: "invalid status filter. Use: " + strings.Join(model.StatusNames(), ", ")}
	}

	tasks, err := s.load(ctx, false)
	if err != nil {
		return nil, err
	}

	result := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if filter.Matches(t) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *TaskService) Get(ctx context.Context, id int64) (model.Task, error) {
	tasks, err := s.load(ctx, false)
	if err != nil {
		return model.Task{}, err
	}
	i := indexOf(tasks, id)
	if i < 0 {
		return model.Task{}, notFound(id)
	}
	return tasks[i], nil
}

func (s *TaskService) GetStats(ctx context.Context) (Stats, error) {
	tasks, err := s.load(ctx, false)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByStatus: make(map[model.Status]int, len(model.Statuses()))}
	for _, st := range model.Statuses() {
		stats.ByStatus[st] = 0
	}
	for _, t := range tasks {
		stats.ByStatus[t.Status]++
		stats.Total++
	}
	return stats, nil
}

// mutate runs one load -> change -> save cycle under the store lock.
// When change fails nothing is written. A change rejected by an unlocked read is
// reported without taking the lock, so failed commands leave the directory untouched.
func (s *TaskService) mutate(ctx context.Context, change func([]model.Task) ([]model.Task, error)) error {
	current, err := s.load(ctx, true)
	if err != nil {
		return err
	}
	if _, err := change(current); err != nil {
		return err
	}

	unlock, err := s.repo.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			s.logger.Warn("failed to release task file lock", zap.Error(uerr))
		}
	}()

	tasks, err := s.load(ctx, true)
	if err != nil {
		return err
	}

	tasks, err = change(tasks)
	if err != nil {
		return err
	}
	return s.repo.Save(ctx, tasks)
}

// load applies the corrupt-file policy. Reads always degrade to an empty list;
// writes degrade only under CorruptReset.
func (s *TaskService) load(ctx context.Context, mutating bool) ([]model.Task, error) {
	tasks, err := s.repo.Load(ctx)
	if err == nil {
		return tasks, nil
	}

	var loadErr *repo.LoadError
	if !errors.As(err, &loadErr) {
		return nil, err
	}
	if mutating && s.policy != CorruptReset {
		return nil, err
	}

	s.logger.Warn("task file unreadable, continuing with an empty list",
		zap.String("path", loadErr.Path),
		zap.Error(loadErr.Err),
	)
	return []model.Task{}, nil
}

func (s *TaskService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func validateDescription(description, msg string) error {
	if strings.TrimSpace(description) == "" {
		return &ValidationError{Field: "description", Msg: msg}
	}
	return nil
}

func indexOf(tasks []model.Task, id int64) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(id int64) error {
	return fmt.Errorf("task with ID %d %w", id, repo.ErrorNotFound)
}
