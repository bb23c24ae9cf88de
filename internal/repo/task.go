package repo

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/BuzzLyutic/task-tracker-cli/internal/model"
)

var ErrorNotFound = errors.New("not found")

//go:embed tasks.schema.json
var schemaJSON []byte

const schemaURL = "https://github.com/BuzzLyutic/task-tracker-cli/tasks.schema.json"

// newFileMode is applied to a task file Save creates; existing files keep their mode.
const newFileMode fs.FileMode = 0o644

const (
	// DefaultLockRetry is how often Lock polls a held lock.
	DefaultLockRetry = 20 * time.Millisecond
	// DefaultLockTimeout bounds how long Lock waits.
	DefaultLockTimeout = 5 * time.Second
)

// LoadError reports a task file that exists but cannot be read or understood.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SaveError reports a failed write of the task file.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

type FileRepo struct { // Репозиторий поверх одного JSON-файла
	path        string
	lockPath    string
	lockRetry   time.Duration
	lockTimeout time.Duration
	schema      *jsonschema.Schema
}

type Option func(*FileRepo)

func WithLockTimeout(d time.Duration) Option {
	return func(r *FileRepo) { r.lockTimeout = d }
}

func WithLockRetry(d time.Duration) Option {
	return func(r *FileRepo) { r.lockRetry = d }
}

func NewFileRepo(path string, opts ...Option) (*FileRepo, error) { // Конструктор
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile task file schema: %w", err)
	}
	r := &FileRepo{
		path:        path,
		lockPath:    path + ".lock",
		lockRetry:   DefaultLockRetry,
		lockTimeout: DefaultLockTimeout,
		schema:      schema,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(schemaURL)
}

// Path returns the backing file.
func (r *FileRepo) Path() string {
	return r.path
}

// Load reads the whole collection. A missing or blank file is an empty collection.
func (r *FileRepo) Load(ctx context.Context) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Task{}, nil
	}
	if err != nil {
		return nil, &LoadError{Path: r.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.Task{}, nil
	}

	if err := r.validate(data); err != nil {
		return nil, &LoadError{Path: r.path, Err: err}
	}

	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, &LoadError{Path: r.path, Err: err}
	}
	if err := checkUniqueIDs(tasks); err != nil {
		return nil, &LoadError{Path: r.path, Err: err}
	}
	return tasks, nil
}

func (r *FileRepo) validate(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if dec.More() {
		return errors.New("parse: trailing data after task list")
	}
	if err := r.schema.Validate(doc); err != nil {
		return flattenSchemaError(err)
	}
	return nil
}

// flattenSchemaError keeps the first leaf cause so the message names the offending field.
func flattenSchemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return errors.New(ve.Message)
	}
	return fmt.Errorf("%s: %s", ve.InstanceLocation, ve.Message)
}

func checkUniqueIDs(tasks []model.Task) error {
	seen := make(map[int64]struct{}, len(tasks))
	for _, t := range tasks {
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate task id %d", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// Save replaces the file contents with tasks. The write goes to a temp file first and is
// renamed over the original.
func (r *FileRepo) Save(ctx context.Context, tasks []model.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(tasks)
	if err != nil {
		return &SaveError{Path: r.path, Err: err}
	}

	_, statErr := os.Stat(r.path)
	created := errors.Is(statErr, fs.ErrNotExist)

	if err := atomic.WriteFile(r.path, bytes.NewReader(data)); err != nil {
		return &SaveError{Path: r.path, Err: err}
	}
	// atomic.WriteFile creates its temp file 0600
	if created {
		if err := os.Chmod(r.path, newFileMode); err != nil {
			return &SaveError{Path: r.path, Err: err}
		}
	}
	return nil
}

// Encode renders tasks the way they are stored: a two-space indented array with no
// trailing newline, matching JSON.stringify(tasks, null, 2) so files written by other tools round-trip.
func Encode(tasks []model.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []model.Task{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tasks); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// unescapeLineSeparators writes U+2028 and U+2029 raw. encoding/json always escapes
// them; JSON.stringify does not, and both forms are valid JSON.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		switch esc := data[i : min(i+6, len(data))]; string(esc) {
		case `\u2028`:
			out = append(out, "\u2028"...)
			i += 5
		case `\u2029`:
			out = append(out, "\u2029"...)
			i += 5
		default:
			// any other escape pair is copied whole so an escaped backslash is never split
			out = append(out, data[i], data[i+1])
			i++
		}
	}
	return out
}

// Lock takes an advisory lock on a sibling ".lock" file, polling until the lock
// timeout expires or ctx is done.
func (r *FileRepo) Lock(ctx context.Context) (func() error, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	fl := flock.New(r.lockPath)
	locked, err := fl.TryLockContext(ctx, r.lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", r.lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: held by another process", r.lockPath)
	}
	return fl.Unlock, nil
}
