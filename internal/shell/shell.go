// Package shell implements the interactive SQL prompt of coinlake.
//
// Lines starting with a backslash are meta commands; everything else is
// sent to the engine as SQL and the result printed as a table.
//
//	\load <name> <bucket>/<key> <format>   load an object and register it
//	\table <name> <path> [version]         register a stored table
//	\dt                                    list registered tables
//	\q                                     quit
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/coinlake/internal/dataset"
	"github.com/xtxerr/coinlake/internal/engine"
	"github.com/xtxerr/coinlake/internal/logging"
)

// DefaultMaxRows is how many rows a result prints by default.
const DefaultMaxRows = 100

// Session is the engine surface the shell drives.
type Session interface {
	LoadObject(ctx context.Context, format engine.Format, bucket, key string) (*dataset.Dataset, error)
	Register(ctx context.Context, ds *dataset.Dataset, name string) error
	Tables(ctx context.Context) ([]string, error)
	Query(ctx context.Context, sql string) (*dataset.Dataset, error)
}

// TableReader reads stored tables. *tablestore.Store implements it.
type TableReader interface {
	Read(ctx context.Context, path string) (*dataset.Dataset, error)
	ReadVersion(ctx context.Context, path string, version int64) (*dataset.Dataset, error)
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shell) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxRows limits how many rows each result prints. <= 0 prints all.
func WithMaxRows(n int) Option {
	return func(s *Shell) {
		s.maxRows = n
	}
}

// WithTables enables \table.
func WithTables(t TableReader) Option {
	return func(s *Shell) {
		s.tables = t
	}
}

// Shell is a line-oriented SQL prompt over one engine session.
type Shell struct {
	session Session
	tables  TableReader
	logger  *slog.Logger
	maxRows int

	// known is the completion cache of registered table names.
	known []string
	quit  bool
}

// New creates a shell over session.
func New(session Session, opts ...Option) *Shell {
	s := &Shell{
		session: session,
		logger:  logging.Component("shell"),
		maxRows: DefaultMaxRows,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs one line and writes its output, including errors, to w.
// It reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string, w io.Writer) bool {
	line = strings.TrimSpace(line)
	line = strings.TrimSpace(strings.TrimSuffix(line, ";"))
	if line == "" {
		return false
	}

	var err error
	switch fields := strings.Fields(line); strings.ToLower(fields[0]) {
	case `\q`, `\quit`, "exit", "quit":
		return true
	case `\?`, `\h`, `\help`, "help":
		fmt.Fprint(w, helpText)
	case `\dt`, `\tables`:
		err = s.listTables(ctx, w)
	case `\load`:
		err = s.load(ctx, fields[1:], w)
	case `\table`:
		err = s.registerTable(ctx, fields[1:], w)
	default:
		if strings.HasPrefix(fields[0], `\`) {
			err = fmt.Errorf("unknown command %s (try \\?)", fields[0])
			break
		}
		err = s.query(ctx, line, w)
	}

	if err != nil {
		s.logger.Debug("command failed", "line", line, "error", err)
		fmt.Fprintf(w, "error: %v\n", err)
	}
	return false
}

const helpText = `Commands:
  \load <name> <bucket>/<key> <format>  load an object and register it as <name>
  \table <name> <path> [version]        register a stored table as <name>
  \dt                                   list registered tables
  \q                                    quit
Anything else is executed as SQL.
`

func (s *Shell) query(ctx context.Context, sql string, w io.Writer) error {
	ds, err := s.session.Query(ctx, sql)
	if err != nil {
		return err
	}
	return Render(w, ds, s.maxRows)
}

func (s *Shell) listTables(ctx context.Context, w io.Writer) error {
	names, err := s.session.Tables(ctx)
	if err != nil {
		return err
	}
	s.known = names
	if len(names) == 0 {
		fmt.Fprintln(w, "no tables registered")
		return nil
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
	return nil
}

func (s *Shell) load(ctx context.Context, args []string, w io.Writer) error {
	if len(args) != 3 {
		return fmt.Errorf(`usage: \load <name> <bucket>/<key> <format>`)
	}
	name := args[0]
	bucket, key, ok := strings.Cut(args[1], "/")
	if !ok || bucket == "" || key == "" {
		return fmt.Errorf("object %q: want <bucket>/<key>", args[1])
	}
	format, err := engine.ParseFormat(args[2])
	if err != nil {
		return err
	}

	ds, err := s.session.LoadObject(ctx, format, bucket, key)
	if err != nil {
		return err
	}
	if err := s.session.Register(ctx, ds, name); err != nil {
		return err
	}
	s.remember(name)
	fmt.Fprintf(w, "loaded %d rows into %s\n", ds.Len(), name)
	return nil
}

func (s *Shell) registerTable(ctx context.Context, args []string, w io.Writer) error {
	if s.tables == nil {
		return fmt.Errorf("table store not available")
	}
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf(`usage: \table <name> <path> [version]`)
	}

	var (
		ds  *dataset.Dataset
		err error
	)
	if len(args) == 3 {
		v, perr := strconv.ParseInt(args[2], 10, 64)
		if perr != nil || v < 0 {
			return fmt.Errorf("version %q: want a non-negative integer", args[2])
		}
		ds, err = s.tables.ReadVersion(ctx, args[1], v)
	} else {
		ds, err = s.tables.Read(ctx, args[1])
	}
	if err != nil {
		return err
	}

	if err := s.session.Register(ctx, ds, args[0]); err != nil {
		return err
	}
	s.remember(args[0])
	fmt.Fprintf(w, "registered %s (%d rows)\n", args[0], ds.Len())
	return nil
}

func (s *Shell) remember(name string) {
	for _, n := range s.known {
		if n == name {
			return
		}
	}
	s.known = append(s.known, name)
	sort.Strings(s.known)
}

// Run reads commands from in until \q or end of input. When in is a
// terminal the prompt has history and completion; otherwise lines are
// read plainly, which is what scripts and tests get.
func (s *Shell) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.runInteractive(ctx, out)
		return nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Execute(ctx, scanner.Text(), out) {
			return nil
		}
	}
	return scanner.Err()
}

func (s *Shell) runInteractive(ctx context.Context, out io.Writer) {
	if names, err := s.session.Tables(ctx); err == nil {
		s.known = names
	}

	p := prompt.New(
		func(line string) {
			s.quit = s.Execute(ctx, line, out)
		},
		s.complete,
		prompt.OptionTitle("coinlake"),
		prompt.OptionPrefix("coinlake> "),
		prompt.OptionPrefixTextColor(prompt.Cyan),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			return s.quit || ctx.Err() != nil
		}),
	)
	p.Run()
}

var keywords = []string{
	"SELECT", "FROM", "WHERE", "GROUP BY", "ORDER BY", "LIMIT", "JOIN",
	"LEFT JOIN", "ON", "AS", "AND", "OR", "NOT", "COUNT", "SUM", "AVG",
	"MIN", "MAX", "DISTINCT", "DESCRIBE", "HAVING", "UNION ALL",
}

var metaCommands = []prompt.Suggest{
	{Text: `\load`, Description: "load an object"},
	{Text: `\table`, Description: "register a stored table"},
	{Text: `\dt`, Description: "list tables"},
	{Text: `\q`, Description: "quit"},
	{Text: `\?`, Description: "help"},
}

func (s *Shell) complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if word == "" {
		return nil
	}
	if strings.HasPrefix(word, `\`) {
		return prompt.FilterHasPrefix(metaCommands, word, true)
	}
	return prompt.FilterHasPrefix(s.suggestions(), word, true)
}

func (s *Shell) suggestions() []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(s.known)+len(keywords))
	for _, n := range s.known {
		out = append(out, prompt.Suggest{Text: n, Description: "table"})
	}
	for _, k := range keywords {
		out = append(out, prompt.Suggest{Text: k})
	}
	return out
}
