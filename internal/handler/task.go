package handler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-tracker-cli/internal/model"
	"github.com/BuzzLyutic/task-tracker-cli/internal/repo"
	"github.com/BuzzLyutic/task-tracker-cli/internal/service"
	"github.com/BuzzLyutic/task-tracker-cli/pkg/respond"
)

// Exit codes returned by Dispatch.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitNotFound   = 3
)

type TaskHandler struct {
	service *service.TaskService
	logger  *zap.Logger
	out     io.Writer
	errOut  io.Writer
	asJSON  bool
}

func NewTaskHandler(srv *service.TaskService, logger *zap.Logger, out, errOut io.Writer) *TaskHandler {
	return &TaskHandler{
		service: srv,
		logger:  logger,
		out:     out,
		errOut:  errOut,
	}
}

// SetJSON switches results to JSON output.
func (h *TaskHandler) SetJSON(on bool) {
	h.asJSON = on
}

// Dispatch runs one command and returns the process exit code.
// Unknown commands print usage and succeed.
func (h *TaskHandler) Dispatch(ctx context.Context, command string, args []string) int {
	var err error
	switch command {
	case "add":
		err = h.Add(ctx, args)
	case "update":
		err = h.Update(ctx, args)
	case "delete":
		err = h.Delete(ctx, args)
	case "mark-in-progress":
		err = h.MarkInProgress(ctx, args)
	case "mark-done":
		err = h.MarkDone(ctx, args)
	case "list":
		err = h.List(ctx, args)
	case "show":
		err = h.Show(ctx, args)
	case "stats":
		err = h.Stats(ctx, args)
	default:
		PrintUsage(h.out)
		return ExitOK
	}

	if err != nil {
		return h.handleErrors(err)
	}
	return ExitOK
}

func (h *TaskHandler) Add(ctx context.Context, args []string) error {
	task, err := h.service.Add(ctx, arg(args, 0))
	if err != nil {
		return err
	}

	if h.asJSON {
		return respond.JSON(h.out, task)
	}
	respond.Text(h.out, "Task added successfully (ID: %d)", task.ID)
	return nil
}

func (h *TaskHandler) Update(ctx context.Context, args []string) error {
	id, err := service.ParseID(arg(args, 0))
	if err != nil {
		return err
	}

	task, err := h.service.Update(ctx, id, arg(args, 1))
	if err != nil {
		return err
	}

	if h.asJSON {
		return respond.JSON(h.out, task)
	}
	respond.Text(h.out, "Task updated successfully.")
	return nil
}

func (h *TaskHandler) Delete(ctx context.Context, args []string) error {
	id, err := service.ParseID(arg(args, 0))
	if err != nil {
		return err
	}

	if err := h.service.Delete(ctx, id); err != nil {
		return err
	}

	if h.asJSON {
		return respond.JSON(h.out, map[string]int64{"deleted": id})
	}
	respond.Text(h.out, "Task deleted successfully.")
	return nil
}

func (h *TaskHandler) MarkInProgress(ctx context.Context, args []string) error {
	return h.mark(ctx, args, model.StatusInProgress)
}

func (h *TaskHandler) MarkDone(ctx context.Context, args []string) error {
	return h.mark(ctx, args, model.StatusDone)
}

func (h *TaskHandler) mark(ctx context.Context, args []string, status model.Status) error {
	id, err := service.ParseID(arg(args, 0))
	if err != nil {
		return err
	}

	task, err := h.service.SetStatus(ctx, id, status)
	if err != nil {
		return err
	}

	if h.asJSON {
		return respond.JSON(h.out, task)
	}
	respond.Text(h.out, "Task marked as %s.", status)
	return nil
}

func (h *TaskHandler) List(ctx context.Context, args []string) error {
	filter, err := service.ParseStatusFilter(arg(args, 0))
	if err != nil {
		return err
	}

	tasks, err := h.service.List(ctx, filter)
	if err != nil {
		return err
	}

	if h.asJSON {
		return respond.JSON(h.out, tasks)
	}
	if len(tasks) == 0 {
		respond.Text(h.out, "No tasks found.")
		return nil
	}

	respond.Text(h.out, "Tasks:")
	respond.Text(h.out, "-----")
	for _, t := range tasks {
		writeTask(h.out, t)
	}
	return nil
}

func (h *TaskHandler) Show(ctx context.Context, args []string) error {
	id, err := service.ParseID(arg(args, 0))
	if err != nil {
		return err
	}

	task, err := h.service.Get(ctx, id)
	if err != nil {
		return err
	}

	if h.asJSON {
		return respond.JSON(h.out, task)
	}
	writeTask(h.out, task)
	respond.Text(h.out, "   Updated: %s", model.FormatTime(task.UpdatedAt))
	return nil
}

func (h *TaskHandler) Stats(ctx context.Context, _ []string) error {
	stats, err := h.service.GetStats(ctx)
	if err != nil {
		return err
	}

	if h.asJSON {
		return respond.JSON(h.out, stats)
	}
	for _, st := range model.Statuses() {
		respond.Text(h.out, "%-12s %d", st.String()+":", stats.ByStatus[st])
	}
	respond.Text(h.out, "%-12s %d", "total:", stats.Total)
	return nil
}

func writeTask(w io.Writer, t model.Task) {
	respond.Text(w, "[%d] %s", t.ID, t.Description)
	respond.Text(w, "   Status: %s | Created: %s", t.Status, t.CreatedAt.Format("2006-01-02"))
}

func (h *TaskHandler) handleErrors(err error) int {
	var loadErr *repo.LoadError
	var saveErr *repo.SaveError

	switch {
	case errors.Is(err, service.ErrValidation):
		respond.Error(h.errOut, err.Error())
		return ExitValidation
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(h.errOut, err.Error())
		return ExitNotFound
	case errors.As(err, &loadErr):
		h.logger.Error("task file unreadable", zap.String("path", loadErr.Path), zap.Error(loadErr.Err))
		respond.Error(h.errOut, fmt.Sprintf("%v; refusing to modify it (set on_corrupt = \"reset\" to start over)", err))
		return ExitFailure
	case errors.As(err, &saveErr):
		h.logger.Error("task file write failed", zap.String("path", saveErr.Path), zap.Error(saveErr.Err))
		respond.Error(h.errOut, err.Error())
		return ExitFailure
	default:
		h.logger.Error("command failed", zap.Error(err))
		respond.Error(h.errOut, err.Error())
		return ExitFailure
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// PrintUsage writes the command summary.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, `Task Tracker CLI

Usage:
  task-cli [flags] <command> [arguments]

Commands:
  add "<description>"             Add a new task
  update <id> "<description>"     Update a task description
  delete <id>                     Delete a task
  mark-in-progress <id>           Mark a task as in progress
  mark-done <id>                  Mark a task as done
  list [status]                   List tasks (optional filter: todo, in-progress, done)
  show <id>                       Show one task
  stats                           Count tasks per status

Flags:
  --file <path>                   Task file (default: tasks.json in the working directory)
  --json                          Print results as JSON
  --log-level <level>             debug, info, warn or error (default: warn)
  --lock-timeout <seconds>        How long to wait for another invocation's lock
  --on-corrupt <policy>           refuse or reset when the task file is unreadable
  -h, --help                      Show this help message

Examples:
  task-cli add "Buy groceries"
  task-cli list
  task-cli list done
  task-cli mark-done 1
`)
}
