package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BuzzLyutic/task-tracker-cli/internal/config"
	"github.com/BuzzLyutic/task-tracker-cli/internal/handler"
	"github.com/BuzzLyutic/task-tracker-cli/internal/repo"
	"github.com/BuzzLyutic/task-tracker-cli/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one CLI invocation and returns its exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("task-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { handler.PrintUsage(stderr) }
	help := fs.Bool("help", false, "Show help")
	fs.BoolVar(help, "h", false, "Show help")
	asJSON := fs.Bool("json", false, "Print results as JSON")

	// Загрузка конфигурации
	cfg, err := config.Load(fs, args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return handler.ExitValidation
	}

	command := ""
	rest := fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}
	if *help || command == "" || command == "help" {
		handler.PrintUsage(stdout)
		return handler.ExitOK
	}

	// Подключаем логгер
	logger := newLogger(cfg.Level(), stderr)
	defer logger.Sync()

	taskRepo, err := repo.NewFileRepo(cfg.TasksFile, repo.WithLockTimeout(cfg.LockTimeout()))
	if err != nil {
		logger.Error("failed to initialize task store", zap.Error(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return handler.ExitFailure
	}
	logger.Debug("using task file", zap.String("path", taskRepo.Path()))

	taskService := service.NewTaskService(taskRepo, logger, service.WithCorruptPolicy(cfg.CorruptPolicy()))
	taskHandler := handler.NewTaskHandler(taskService, logger, stdout, stderr)
	taskHandler.SetJSON(*asJSON)

	return taskHandler.Dispatch(ctx, command, rest)
}

// newLogger builds a console logger on w so diagnostics never mix with results on stdout.
func newLogger(level zapcore.Level, w io.Writer) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}
