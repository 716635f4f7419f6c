package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"finpal/internal/orchestrator"
	"finpal/internal/tools"
	pkgstrings "finpal/pkg/strings"
)

// Options configures a Printer.
type Options struct {
	Format    OutputFormat
	NoHeaders bool
	Quiet     bool
}

// Printer writes command results to out.
type Printer struct {
	out  io.Writer
	opts Options
}

// NewPrinter creates a printer. An empty format means table.
func NewPrinter(out io.Writer, opts Options) *Printer {
	if opts.Format == "" {
		opts.Format = OutputFormatTable
	}
	return &Printer{out: out, opts: opts}
}

// Format returns the output format in use.
func (p *Printer) Format() OutputFormat { return p.opts.Format }

// Tools prints the aggregated tool list.
func (p *Printer) Tools(list []tools.Tool) error {
	if p.opts.Format != OutputFormatTable {
		if list == nil {
			list = []tools.Tool{}
		}
		return p.structured(list)
	}
	if len(list) == 0 {
		fmt.Fprintf(p.out, "%s\n", text.FgYellow.Sprint("No tools available"))
		return nil
	}

	t := p.table()
	p.header(t, "NAME", "PROVIDER", "DESCRIPTION")
	for _, tool := range list {
		t.AppendRow(table.Row{tool.Name, tool.Provider, pkgstrings.Truncate(tool.Description, pkgstrings.DescriptionWidth)})
	}
	t.Render()
	p.total(len(list), "tools")
	return nil
}

// Providers prints provider status.
func (p *Printer) Providers(list []orchestrator.ProviderStatus) error {
	if p.opts.Format != OutputFormatTable {
		if list == nil {
			list = []orchestrator.ProviderStatus{}
		}
		return p.structured(list)
	}
	if len(list) == 0 {
		fmt.Fprintf(p.out, "%s\n", text.FgYellow.Sprint("No providers configured"))
		return nil
	}

	t := p.table()
	p.header(t, "NAME", "PRIORITY", "OUTCOME", "STATE", "PID", "TOOLS", "ERROR")
	for _, status := range list {
		pid := "-"
		if status.PID > 0 {
			pid = strconv.Itoa(status.PID)
		}
		t.AppendRow(table.Row{
			status.Name,
			string(status.Priority),
			ColorOutcome(status.Outcome),
			string(status.State),
			pid,
			status.Tools,
			pkgstrings.Truncate(status.LastError, pkgstrings.DescriptionWidth),
		})
	}
	t.Render()
	return nil
}

// Result prints a tool result. Tables print the text only.
func (p *Printer) Result(res *tools.Result) error {
	if p.opts.Format != OutputFormatTable {
		return p.structured(res)
	}
	fmt.Fprintln(p.out, res.Text)
	return nil
}

// Value prints any value in the structured formats, or with %v for tables.
func (p *Printer) Value(v interface{}) error {
	if p.opts.Format != OutputFormatTable {
		return p.structured(v)
	}
	fmt.Fprintf(p.out, "%v\n", v)
	return nil
}

func (p *Printer) structured(v interface{}) error {
	switch p.opts.Format {
	case OutputFormatYAML:
		// Round trip through JSON so the json tags name the fields.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func (p *Printer) table() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	return t
}

func (p *Printer) header(t table.Writer, names ...string) {
	if p.opts.NoHeaders {
		return
	}
	row := make(table.Row, 0, len(names))
	for _, name := range names {
		row = append(row, text.FgHiCyan.Sprint(name))
	}
	t.AppendHeader(row)
}

func (p *Printer) total(n int, noun string) {
	if p.opts.Quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s %s\n",
		text.FgHiBlue.Sprint("Total:"),
		text.FgHiWhite.Sprint(n),
		text.FgHiBlue.Sprint(noun))
}

// ColorOutcome colors a provider outcome for terminals.
func ColorOutcome(outcome orchestrator.Outcome) string {
	switch outcome {
	case orchestrator.OutcomeReady:
		return text.FgGreen.Sprint(string(outcome))
	case orchestrator.OutcomeFailed:
		return text.FgRed.Sprint(string(outcome))
	case orchestrator.OutcomeCancelled:
		return text.FgYellow.Sprint(string(outcome))
	default:
		return text.FgHiBlack.Sprint(string(outcome))
	}
}
