// Package publisher announces finished crawl runs to downstream consumers.
package publisher

import (
	"context"
	"sort"
	"time"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

// EventRunCompleted is the event type attribute of RunCompleted messages.
const EventRunCompleted = "run.completed"

// Publisher sends one payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunCompleted describes a finished run and where its output went.
type RunCompleted struct {
	Event          string         `json:"event"`
	RunID          string         `json:"run_id"`
	Keywords       string         `json:"search_keyword"`
	Location       string         `json:"search_location"`
	StartedAt      string         `json:"started_at"`
	FinishedAt     string         `json:"finished_at"`
	Jobs           int            `json:"total_jobs"`
	Companies      int            `json:"total_companies"`
	Failures       int            `json:"total_failures"`
	FailureReasons map[string]int `json:"failure_reasons"`
	Files          []string       `json:"files"`
	Exports        []string       `json:"exports,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// NewRunCompleted summarizes res. runErr is the error Engine.Run returned.
func NewRunCompleted(res *crawler.Result, finishedAt time.Time, files, exports []string, runErr error) RunCompleted {
	ev := RunCompleted{
		Event:          EventRunCompleted,
		RunID:          res.RunID,
		Keywords:       res.Query.Keywords,
		Location:       res.Query.Location,
		StartedAt:      record.FormatTime(res.StartedAt),
		FinishedAt:     record.FormatTime(finishedAt),
		Jobs:           len(res.Jobs),
		Companies:      len(res.Companies),
		Failures:       res.Report.TotalFailures,
		FailureReasons: res.Report.FailureReasons,
		Files:          append([]string(nil), files...),
		Exports:        append([]string(nil), exports...),
	}
	if ev.FailureReasons == nil {
		ev.FailureReasons = map[string]int{}
	}
	if ev.Files == nil {
		ev.Files = []string{}
	}
	sort.Strings(ev.Files)
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	return ev
}
