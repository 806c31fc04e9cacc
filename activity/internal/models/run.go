package models

import (
	"strings"
	"time"
)

// Run and task statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// RunIDPrefix prefixes generated sync run ids.
const RunIDPrefix = "synctask-"

// SyncRun is the persisted outcome of one sync invocation.
type SyncRun struct {
	RunID     string     `json:"run_id"`
	TaskName  string     `json:"task_name"`
	Status    string     `json:"status"`
	Result    *RunResult `json:"result"`
	StartedAt time.Time  `json:"started_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsSuccess compares status case-insensitively.
func (r *SyncRun) IsSuccess() bool {
	return strings.EqualFold(r.Status, StatusSuccess)
}

// FailedRequest is one page request that could not be completed.
type FailedRequest struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// FailedRecord is one upstream record that failed, or was persisted with a warning.
type FailedRecord struct {
	ID     string   `json:"id"`
	Kind   string   `json:"kind"`
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// SubWindowResult summarizes one day-aligned sub-window.
type SubWindowResult struct {
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Fetched        int             `json:"fetched"`
	Created        int             `json:"created"`
	Updated        int             `json:"updated"`
	FailedRequests []FailedRequest `json:"failed_requests,omitempty"`
	FailedRecords  []FailedRecord  `json:"failed_records,omitempty"`
	Warnings       []FailedRecord  `json:"warnings,omitempty"`
}

// RunResult aggregates a whole sync invocation.
type RunResult struct {
	RunID             string            `json:"run_id"`
	TaskName          string            `json:"task_name"`
	Start             time.Time         `json:"start"`
	End               time.Time         `json:"end"`
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
	Created           int               `json:"created"`
	Updated           int               `json:"updated"`
	FailedRequests    int               `json:"failed_requests"`
	FailedRecords     int               `json:"failed_records"`
	Warnings          int               `json:"warnings"`
	HasFailedRequests bool              `json:"has_failed_requests"`
	HasFailedRecords  bool              `json:"has_failed_records"`
	Details           []SubWindowResult `json:"details"`
}

// Status is success only when no request and no record failed.
func (r *RunResult) Status() string {
	if r.HasFailedRequests || r.HasFailedRecords {
		return StatusFailure
	}
	return StatusSuccess
}

// TaskResult records one job executed by the worker.
type TaskResult struct {
	TaskID      string         `json:"task_id"`
	TaskName    string         `json:"task_name"`
	Status      string         `json:"status"`
	Args        map[string]any `json:"args,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	DateCreated time.Time      `json:"date_created"`
	DateDone    *time.Time     `json:"date_done,omitempty"`
}
