package runs

import (
	"encoding/json"
	"time"
)

type Run struct {
	ID string `json:"id" bson:"-"`

	Task    string `json:"task"    bson:"task"`
	Machine string `json:"machine" bson:"machine"`
	Attempt int    `json:"attempt" bson:"attempt"`

	// OOMRetryMachine, when set, names the preset a run is retried on
	// after the task process is killed for memory.
	OOMRetryMachine string `json:"oom_retry_machine,omitempty" bson:"oom_retry_machine"`

	Status    Status `json:"status"               bson:"status"`
	ErrorCode string `json:"error_code,omitempty" bson:"error_code"`

	CreatedAt  time.Time `json:"created_at"            bson:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"  bson:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" bson:"finished_at"`
}

type Status int

const (
	// StatusPending is set when the run has been created or requeued
	StatusPending = Status(iota) + 1

	// StatusExecuting is set when the task process has started
	StatusExecuting

	// StatusWaitingForStreams is the gate phase before a terminal status
	StatusWaitingForStreams

	// StatusCompleted is terminal success
	StatusCompleted

	// StatusFailed is terminal failure reported by the task
	StatusFailed

	// StatusCrashed is terminal failure of the task process itself
	StatusCrashed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusExecuting:
		return "EXECUTING"
	case StatusWaitingForStreams:
		return "WAITING_FOR_STREAMS"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	case StatusCrashed:
		return "CRASHED"
	default:
		return "UNKNOWN"
	}
}

func StatusFromString(s string) Status {
	switch s {
	case "PENDING":
		return StatusPending
	case "EXECUTING":
		return StatusExecuting
	case "WAITING_FOR_STREAMS":
		return StatusWaitingForStreams
	case "COMPLETED":
		return StatusCompleted
	case "FAILED":
		return StatusFailed
	case "CRASHED":
		return StatusCrashed
	default:
		return Status(0)
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(raw []byte) error {
	var name string
	err := json.Unmarshal(raw, &name)
	if err != nil {
		return err
	}

	*s = StatusFromString(name)
	return nil
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCrashed
}

// ErrorCodeOOMKilled is surfaced when the task process is killed by
// the machine's memory limit.
const ErrorCodeOOMKilled = "TASK_PROCESS_OOM_KILLED"

// Failure describes why a finishing run did not succeed.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Crash   bool   `json:"crash,omitempty"`
}
