package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"datacenter/internal/api"
	"datacenter/internal/orchestrator"
	"datacenter/pkg/logging"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"
)

// commandTimeout bounds a single REPL command.
const commandTimeout = 5 * time.Minute

// ErrExit is returned by Execute for the exit command.
var ErrExit = errors.New("exit")

// Backend is the part of the orchestrator the REPL drives.
type Backend interface {
	ListSources() []api.SourceInfo
	HealthCheck(ctx context.Context, names ...string) map[string]api.HealthStatus
	ListResources(name string) ([]api.Resource, error)
	ListTools(name string) ([]api.Tool, error)
	ReadResource(ctx context.Context, name, uri string) ([]api.ResourceContent, error)
	CallTool(ctx context.Context, name, tool string, args map[string]any) (*api.ToolOutput, error)
	CrossSourceCall(ctx context.Context, q orchestrator.CrossSourceQuery) (map[string]api.CallResult, error)
}

type command struct {
	usage   string
	help    string
	minArgs int
	run     func(ctx context.Context, args []string, rest string) error
}

// REPL is the interactive shell of the serve command.
type REPL struct {
	backend  Backend
	printer  *Printer
	out      io.Writer
	reload   func(ctx context.Context) error
	commands map[string]*command
	aliases  map[string]string
}

// NewREPL creates a shell over backend. reload may be nil when the data
// center was not started from a file.
func NewREPL(backend Backend, out io.Writer, reload func(ctx context.Context) error) *REPL {
	r := &REPL{
		backend: backend,
		printer: NewPrinter(out, OutputFormatTable, false),
		out:     out,
		reload:  reload,
		aliases: map[string]string{"ls": "sources", "quit": "exit", "?": "help"},
	}
	r.registerCommands()
	return r
}

func (r *REPL) registerCommands() {
	r.commands = map[string]*command{
		"help": {usage: "help", help: "Show this help", run: func(context.Context, []string, string) error {
			r.printHelp()
			return nil
		}},
		"sources": {usage: "sources", help: "List data sources and worker states", run: func(context.Context, []string, string) error {
			return r.printer.Sources(r.backend.ListSources())
		}},
		"health": {usage: "health [name...]", help: "Check worker health now", run: func(ctx context.Context, args []string, _ string) error {
			return r.printer.Health(r.backend.HealthCheck(ctx, args...))
		}},
		"resources": {usage: "resources <source>", help: "List resources of a source", minArgs: 1, run: func(_ context.Context, args []string, _ string) error {
			res, err := r.backend.ListResources(args[0])
			if err != nil {
				return err
			}
			return r.printer.Resources(res)
		}},
		"tools": {usage: "tools <source>", help: "List tools of a source", minArgs: 1, run: func(_ context.Context, args []string, _ string) error {
			tools, err := r.backend.ListTools(args[0])
			if err != nil {
				return err
			}
			return r.printer.Tools(tools)
		}},
		"read": {usage: "read <source> <uri>", help: "Read a resource", minArgs: 2, run: func(ctx context.Context, args []string, _ string) error {
			contents, err := r.backend.ReadResource(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return r.printer.ResourceContents(contents)
		}},
		"call": {usage: "call <source> <tool> [json-args]", help: "Call a tool on one source", minArgs: 2, run: func(ctx context.Context, args []string, rest string) error {
			toolArgs, err := ParseArgs(rest)
			if err != nil {
				return err
			}
			out, err := r.backend.CallTool(ctx, args[0], args[1], toolArgs)
			if err != nil {
				return err
			}
			return r.printer.ToolOutput(out)
		}},
		"cross": {usage: "cross [--first] <tool> <sources|all> [json-args]", help: "Call a tool on several sources", minArgs: 2, run: r.cross},
		"reload": {usage: "reload", help: "Reload the configuration file", run: func(ctx context.Context, _ []string, _ string) error {
			if r.reload == nil {
				return errors.New("no configuration file to reload")
			}
			return r.reload(ctx)
		}},
		"exit": {usage: "exit", help: "Stop all workers and leave", run: func(context.Context, []string, string) error {
			return ErrExit
		}},
	}
}

func (r *REPL) cross(ctx context.Context, args []string, rest string) error {
	q := orchestrator.CrossSourceQuery{Strategy: api.CollectAll}
	if args[0] == "--first" {
		q.Strategy = api.FirstSuccess
		args = args[1:]
		if len(args) < 2 {
			return fmt.Errorf("usage: %s", r.commands["cross"].usage)
		}
	}
	q.Tool = args[0]
	if args[1] != "all" {
		q.Targets = strings.Split(args[1], ",")
	}
	toolArgs, err := ParseArgs(rest)
	if err != nil {
		return err
	}
	q.Args = toolArgs

	results, err := r.backend.CrossSourceCall(ctx, q)
	if err != nil {
		return err
	}
	return r.printer.CallResults(results)
}

// Execute runs one command line.
func (r *REPL) Execute(ctx context.Context, line string) error {
	name, tail := cut(line)
	if name == "" {
		return nil
	}
	if alias, ok := r.aliases[name]; ok {
		name = alias
	}
	cmd, ok := r.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, type help for a list", name)
	}

	// Everything after the fixed positional arguments is passed verbatim so
	// JSON arguments may contain spaces.
	args, rest := splitArgs(tail, positional(name, tail))
	if len(args) < cmd.minArgs {
		return fmt.Errorf("usage: %s", cmd.usage)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return cmd.run(ctx, args, rest)
}

// positional returns how many leading words of tail are plain arguments.
func positional(name, tail string) int {
	switch name {
	case "call":
		return 2
	case "cross":
		if first, _ := cut(tail); first == "--first" {
			return 3
		}
		return 2
	default:
		return -1
	}
}

func cut(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// splitArgs splits n words off s and returns them with the remainder. A
// negative n splits every word.
func splitArgs(s string, n int) ([]string, string) {
	if n < 0 {
		return strings.Fields(s), ""
	}
	var args []string
	for len(args) < n {
		var word string
		word, s = cut(s)
		if word == "" {
			break
		}
		args = append(args, word)
	}
	return args, s
}

func (r *REPL) printHelp() {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := r.commands[name]
		fmt.Fprintf(r.out, "  %-48s %s\n", text.FgHiCyan.Sprint(cmd.usage), cmd.help)
	}
}

func (r *REPL) completer() *readline.PrefixCompleter {
	sources := readline.PcItemDynamic(func(string) []string {
		var names []string
		for _, s := range r.backend.ListSources() {
			names = append(names, s.Name)
		}
		return names
	})

	var items []readline.PrefixCompleterInterface
	for name := range r.commands {
		switch name {
		case "resources", "tools", "read", "call", "health":
			items = append(items, readline.PcItem(name, sources))
		default:
			items = append(items, readline.PcItem(name))
		}
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands until exit, EOF or ctx ends.
func (r *REPL) Run(ctx context.Context) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".datacenter_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          text.FgHiBlue.Sprint("datacenter") + " » ",
		HistoryFile:     historyFile,
		AutoComplete:    r.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	fmt.Fprintln(r.out, "Type help for a list of commands.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF or closed by ctx.
			return nil
		}

		if err := r.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			logging.Debug("REPL", "Command %q failed: %v", line, err)
			fmt.Fprintf(r.out, "%s %v\n", text.FgRed.Sprint("Error:"), err)
		}
	}
}
