// Package summary is the deploy task's outbound event sink: phase
// headings, action lines, free-form paragraphs, and a final status table.
// Console serializes every append and the final print with a mutex, so it
// is safe to call from several goroutines.
package summary

import (
	"fmt"
	"io"
	"sync"

	"github.com/aquasecurity/table"
	"github.com/go-logr/logr"
)

// Status is the terminal classification the orchestrator assigns once a
// task finishes.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusTimedOut Status = "timed_out"
	StatusFailure  Status = "failure"
)

// Row is one resource's line in the final summary table.
type Row struct {
	Kind    string
	Name    string
	State   string
	Message string
}

// Sink is the abstract outbound contract described by the spec: three
// append operations plus a terminal print.
type Sink interface {
	PhaseHeading(text string)
	AddAction(text string)
	AddParagraph(text string)
	PrintSummary(status Status, rows []Row)
}

// Console is the default Sink: every append is mirrored to a structured
// logger as it happens, and PrintSummary renders a final table with
// aquasecurity/table.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	log    logr.Logger
	events []string
}

func NewConsole(out io.Writer, log logr.Logger) *Console {
	return &Console{out: out, log: log}
}

func (c *Console) PhaseHeading(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "== "+text+" ==")
	c.log.Info(text, "phase", true)
}

func (c *Console) AddAction(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "-> "+text)
	c.log.Info(text, "action", true)
}

func (c *Console) AddParagraph(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, text)
	c.log.Info(text, "paragraph", true)
}

func (c *Console) PrintSummary(status Status, rows []Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.events {
		fmt.Fprintln(c.out, e)
	}

	t := table.New(c.out)
	t.SetHeaders("KIND", "NAME", "STATE", "MESSAGE")
	for _, row := range rows {
		t.AddRow(row.Kind, row.Name, row.State, row.Message)
	}
	t.Render()

	fmt.Fprintf(c.out, "\nresult: %s\n", status)
	c.log.Info("deploy finished", "status", string(status))
}
