package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the on-disk timestamp format: ISO-8601, UTC, millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Status is the lifecycle stage of a task.
type Status uint8

const (
	StatusTodo Status = iota
	StatusInProgress
	StatusDone
)

var statusNames = [...]string{
	StatusTodo:       "todo",
	StatusInProgress: "in-progress",
	StatusDone:       "done",
}

// Statuses returns every valid status in canonical order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusDone}
}

// StatusNames returns the textual form of every valid status.
func StatusNames() []string {
	names := make([]string, len(statusNames))
	copy(names, statusNames[:])
	return names
}

// StatusError reports a status value outside the closed set.
type StatusError struct {
	Value string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid status %q, must be one of: %s", e.Value, strings.Join(StatusNames(), ", "))
}

// ParseStatus converts text into a Status.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	return 0, &StatusError{Value: s}
}

func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, &StatusError{Value: s.String()}
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Task struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// taskJSON is the wire shape of a Task. Pointers distinguish absent fields from zero values.
type taskJSON struct {
	ID          int64   `json:"id"`
	Description *string `json:"description"`
	Status      *Status `json:"status"`
	CreatedAt   *string `json:"createdAt"`
	UpdatedAt   *string `json:"updatedAt"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	created := FormatTime(t.CreatedAt)
	updated := FormatTime(t.UpdatedAt)
	status := t.Status

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(taskJSON{
		ID:          t.ID,
		Description: &t.Description,
		Status:      &status,
		CreatedAt:   &created,
		UpdatedAt:   &updated,
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var raw taskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.Description == nil:
		return errors.New("missing description")
	case raw.Status == nil:
		return errors.New("missing status")
	case raw.CreatedAt == nil:
		return errors.New("missing createdAt")
	case raw.UpdatedAt == nil:
		return errors.New("missing updatedAt")
	}

	created, err := ParseTime(*raw.CreatedAt)
	if err != nil {
		return fmt.Errorf("createdAt: %w", err)
	}
	updated, err := ParseTime(*raw.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updatedAt: %w", err)
	}

	*t = Task{
		ID:          raw.ID,
		Description: *raw.Description,
		Status:      *raw.Status,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
	return nil
}

// FormatTime renders a timestamp in TimeLayout.
func FormatTime(ts time.Time) string {
	return ts.UTC().Format(TimeLayout)
}

// ParseTime accepts any RFC 3339 timestamp and normalizes it to UTC.
func ParseTime(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

type TaskFilter struct {
	Status *Status
}

// Matches reports whether the task passes the filter. An empty filter matches everything.
func (f TaskFilter) Matches(t Task) bool {
	return f.Status == nil || t.Status == *f.Status
}
