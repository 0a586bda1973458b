package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"datacenter/internal/api"
	pkgstrings "datacenter/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable renders a table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatJSON renders indented JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML renders YAML
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidateOutputFormat validates that the given format string is a supported output format.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, json, yaml)", format)
	}
}

// Printer renders orchestrator results for humans or scripts.
type Printer struct {
	out       io.Writer
	format    OutputFormat
	noHeaders bool
}

// NewPrinter creates a printer. An empty format means table.
func NewPrinter(out io.Writer, format OutputFormat, noHeaders bool) *Printer {
	if format == "" {
		format = OutputFormatTable
	}
	return &Printer{out: out, format: format, noHeaders: noHeaders}
}

func (p *Printer) newTable(headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	if !p.noHeaders {
		row := make(table.Row, len(headers))
		for i, h := range headers {
			row[i] = text.FgHiCyan.Sprint(h)
		}
		t.AppendHeader(row)
	}
	return t
}

// structured writes v as JSON or YAML. It reports false in table mode.
func (p *Printer) structured(v any) (bool, error) {
	switch p.format {
	case OutputFormatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case OutputFormatYAML:
		// Round-trip through JSON so the json tags decide the field names.
		data, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(p.out)
		defer enc.Close()
		return true, enc.Encode(generic)
	}
	return false, nil
}

// State colors a worker state.
func State(s api.WorkerState) string {
	switch s {
	case api.StateConnected:
		return text.FgGreen.Sprint(s)
	case api.StateDegraded, api.StateStarting:
		return text.FgYellow.Sprint(s)
	case api.StateFailed:
		return text.FgRed.Sprint(s)
	default:
		return text.FgHiBlack.Sprint(s)
	}
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Truncate(time.Second).String() + " ago"
}

// Sources prints the list-sources view.
func (p *Printer) Sources(infos []api.SourceInfo) error {
	if ok, err := p.structured(infos); ok {
		return err
	}
	t := p.newTable("NAME", "TYPE", "STATE", "RESOURCES", "TOOLS", "PID", "HEARTBEAT", "ERROR")
	for _, s := range infos {
		state := State(s.State)
		if !s.Enabled {
			state = text.FgHiBlack.Sprint("disabled")
		}
		pid := "-"
		if s.Pid > 0 {
			pid = fmt.Sprint(s.Pid)
		}
		t.AppendRow(table.Row{s.Name, s.Type, state, s.Resources, s.Tools, pid, since(s.LastHeartbeat), pkgstrings.Truncate(s.LastError, 60)})
	}
	t.Render()
	return nil
}

// StartResults prints the outcome of starting workers.
func (p *Printer) StartResults(results map[string]api.StartResult) error {
	names := sortedKeys(results)
	if p.format != OutputFormatTable {
		type row struct {
			Source string          `json:"source"`
			State  api.WorkerState `json:"state"`
			Error  string          `json:"error,omitempty"`
		}
		rows := make([]row, 0, len(names))
		for _, n := range names {
			r := results[n]
			rows = append(rows, row{Source: n, State: r.State, Error: errString(r.Err)})
		}
		_, err := p.structured(rows)
		return err
	}
	t := p.newTable("SOURCE", "STATE", "ERROR")
	for _, n := range names {
		r := results[n]
		t.AppendRow(table.Row{n, State(r.State), pkgstrings.Truncate(errString(r.Err), 80)})
	}
	t.Render()
	return nil
}

// Health prints health check results.
func (p *Printer) Health(statuses map[string]api.HealthStatus) error {
	names := sortedKeys(statuses)
	if p.format != OutputFormatTable {
		rows := make([]api.HealthStatus, 0, len(names))
		for _, n := range names {
			rows = append(rows, statuses[n])
		}
		_, err := p.structured(rows)
		return err
	}
	t := p.newTable("SOURCE", "STATE", "HEALTHY", "LATENCY", "FAILURES", "ERROR")
	for _, n := range names {
		s := statuses[n]
		healthy := text.FgRed.Sprint("no")
		if s.Healthy {
			healthy = text.FgGreen.Sprint("yes")
		}
		t.AppendRow(table.Row{n, State(s.State), healthy, s.Latency.Round(time.Millisecond), s.ConsecutiveFailures, pkgstrings.Truncate(s.Error, 60)})
	}
	t.Render()
	return nil
}

// Resources prints the resources of one source.
func (p *Printer) Resources(resources []api.Resource) error {
	if ok, err := p.structured(resources); ok {
		return err
	}
	t := p.newTable("NAME", "URI", "MIME TYPE", "DESCRIPTION")
	for _, r := range resources {
		t.AppendRow(table.Row{r.Name, r.URI, r.MIMEType, pkgstrings.Truncate(r.Description, 60)})
	}
	t.Render()
	return nil
}

// Tools prints the tools of one source.
func (p *Printer) Tools(tools []api.Tool) error {
	if ok, err := p.structured(tools); ok {
		return err
	}
	t := p.newTable("NAME", "DESCRIPTION")
	for _, tl := range tools {
		t.AppendRow(table.Row{tl.Name, pkgstrings.Truncate(tl.Description, 80)})
	}
	t.Render()
	return nil
}

// ToolOutput prints a tool result. Table mode prints the text content.
func (p *Printer) ToolOutput(out *api.ToolOutput) error {
	if ok, err := p.structured(out); ok {
		return err
	}
	_, err := fmt.Fprintln(p.out, prettyJSON(out.Text))
	return err
}

// ResourceContents prints the result of a resource read.
func (p *Printer) ResourceContents(contents []api.ResourceContent) error {
	if ok, err := p.structured(contents); ok {
		return err
	}
	for _, c := range contents {
		fmt.Fprintf(p.out, "%s %s\n", text.FgHiBlue.Sprint("#"), c.URI)
		fmt.Fprintln(p.out, prettyJSON(c.Text))
	}
	return nil
}

// CallResults prints the per-target outcome of a cross-source call.
func (p *Printer) CallResults(results map[string]api.CallResult) error {
	names := sortedKeys(results)
	if p.format != OutputFormatTable {
		type row struct {
			Source   string          `json:"source"`
			OK       bool            `json:"ok"`
			Output   *api.ToolOutput `json:"output,omitempty"`
			Error    string          `json:"error,omitempty"`
			Duration string          `json:"duration"`
		}
		rows := make([]row, 0, len(names))
		for _, n := range names {
			r := results[n]
			rows = append(rows, row{Source: n, OK: r.OK(), Output: r.Output, Error: errString(r.Err), Duration: r.Duration.String()})
		}
		_, err := p.structured(rows)
		return err
	}
	t := p.newTable("SOURCE", "RESULT", "DURATION", "OUTPUT")
	for _, n := range names {
		r := results[n]
		if r.OK() {
			t.AppendRow(table.Row{n, text.FgGreen.Sprint("ok"), r.Duration.Round(time.Millisecond), pkgstrings.Truncate(r.Output.Text, 80)})
		} else {
			t.AppendRow(table.Row{n, text.FgRed.Sprint("error"), r.Duration.Round(time.Millisecond), pkgstrings.Truncate(errString(r.Err), 80)})
		}
	}
	t.Render()
	return nil
}

func prettyJSON(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s
	}
	return string(b)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SourceCheck is one row of the validate command.
type SourceCheck struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Enabled    bool   `json:"enabled"`
	Connection string `json:"connection"`
	Port       int    `json:"port,omitempty"`
	Resources  int    `json:"resources"`
	Tools      int    `json:"tools"`
	Error      string `json:"error,omitempty"`
}

// Checks prints the validate view.
func (p *Printer) Checks(checks []SourceCheck) error {
	if ok, err := p.structured(checks); ok {
		return err
	}
	t := p.newTable("NAME", "TYPE", "ENABLED", "CONNECTION", "PORT", "RESOURCES", "TOOLS", "ERROR")
	for _, c := range checks {
		port := "-"
		if c.Port > 0 {
			port = fmt.Sprint(c.Port)
		}
		t.AppendRow(table.Row{c.Name, c.Type, c.Enabled, c.Connection, port, c.Resources, c.Tools, pkgstrings.Truncate(c.Error, 60)})
	}
	t.Render()
	return nil
}
