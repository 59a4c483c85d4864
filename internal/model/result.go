package model

import (
	"time"
)

// Status is the overall outcome of a request.
type Status string

const (
	StatusSucceed Status = "Succeed"
	StatusPartial Status = "Partial"
	StatusFailed  Status = "Failed"
)

// SubtitleStatus describes how subtitle extraction went for one item.
type SubtitleStatus string

const (
	SubtitleNone         SubtitleStatus = "none"
	SubtitleOK           SubtitleStatus = "ok"
	SubtitleRateLimited  SubtitleStatus = "rate_limited"
	SubtitleNotAvailable SubtitleStatus = "not_available"
	SubtitleFailed       SubtitleStatus = "failed"
)

// Degraded reports a non terminal problem with subtitles.
func (s SubtitleStatus) Degraded() bool {
	switch s {
	case "", SubtitleNone, SubtitleOK:
		return false
	default:
		return true
	}
}

// File is an artifact produced by the acquisition tool.
type File struct {
	Path              string `json:"path"`
	NormalizedLocator string `json:"normalizedLocator"`
	MimeType          string `json:"mimeType,omitempty"`
	SizeBytes         int64  `json:"sizeBytes,omitempty"`
}

// ItemResult is the immutable outcome of one Job. Degraded marks an
// artifact produced despite a post-processing problem.
type ItemResult struct {
	Index           *int           `json:"index,omitempty"`
	URL             string         `json:"url"`
	ExitCode        int            `json:"exitCode"`
	Success         bool           `json:"success"`
	Files           []File         `json:"files"`
	DurationMs      int64          `json:"durationMs"`
	StdoutTail      string         `json:"stdout_tail"`
	StderrTail      string         `json:"stderr_tail"`
	DiagnosticNotes []string       `json:"diagnostic_notes,omitempty"`
	SubtitleStatus  SubtitleStatus `json:"subtitleStatus,omitempty"`
	Degraded        bool           `json:"degraded,omitempty"`
	ErrorTag        string         `json:"errorTag,omitempty"`
	Error           string         `json:"error,omitempty"`
	Command         []string       `json:"command,omitempty"`
}

// Payload is the aggregate report delivered for a whole request.
type Payload struct {
	RequestID   string       `json:"requestId"`
	Plugin      string       `json:"plugin,omitempty"`
	Status      Status       `json:"status"`
	StartedAt   time.Time    `json:"startedAt"`
	FinishedAt  time.Time    `json:"finishedAt"`
	Items       []ItemResult `json:"items"`
	SummaryText string       `json:"summaryText"`
}

// DeriveStatus applies the precedence Failed > Partial > Succeed.
func DeriveStatus(items []ItemResult) Status {
	succeeded := 0
	degraded := false
	for _, it := range items {
		if it.Success {
			succeeded++
		}
		if it.Degraded || it.SubtitleStatus.Degraded() {
			degraded = true
		}
	}
	switch {
	case succeeded == 0:
		return StatusFailed
	case succeeded < len(items) || degraded:
		return StatusPartial
	default:
		return StatusSucceed
	}
}
