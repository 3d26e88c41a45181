// Package repl implements the interactive shell: it reads
// semicolon-terminated statements, dispatches database-management
// statements (CREATE DATABASE, SHOW DATABASES, USE) to the engine
// directly, and everything else to the current database's query
// executor, rendering results as a table.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Limbo-corps/LimboDB/internal/engine"
	"github.com/Limbo-corps/LimboDB/internal/logging"
	"github.com/Limbo-corps/LimboDB/internal/render"
)

const prompt = "limbodb> "

// Shell reads statements from in, dispatches them against eng, and
// writes prompts/results/errors to out.
type Shell struct {
	eng *engine.Engine
	in  io.Reader
	out io.Writer
	log *logging.Logger
}

// New constructs a Shell over the given engine and I/O streams.
func New(eng *engine.Engine, in io.Reader, out io.Writer) *Shell {
	return &Shell{eng: eng, in: in, out: out, log: logging.GetLogger("repl")}
}

// Run reads semicolon-terminated statements until EOF or an "exit"/"quit"
// statement. It never exits because a statement failed: errors are
// printed and the loop continues. Interactive prompts are written to
// out before each statement is read.
func (s *Shell) Run() error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var pending strings.Builder
	fmt.Fprint(s.out, prompt)

	for scanner.Scan() {
		pending.WriteString(scanner.Text())
		pending.WriteByte('\n')

		for {
			stmt, rest, found := splitStatement(pending.String())
			if !found {
				break
			}
			pending.Reset()
			pending.WriteString(rest)

			trimmed := strings.TrimSpace(stmt)
			if trimmed == "" {
				continue
			}
			if s.dispatch(trimmed) {
				return nil
			}
		}
		fmt.Fprint(s.out, prompt)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// dispatch runs one statement and returns true if the shell should stop.
func (s *Shell) dispatch(stmt string) bool {
	upper := strings.ToUpper(stmt)
	switch {
	case upper == "EXIT" || upper == "QUIT":
		return true
	case strings.HasPrefix(upper, "CREATE DATABASE"):
		s.execCreateDatabase(stmt)
	case upper == "SHOW DATABASES":
		s.execShowDatabases()
	case strings.HasPrefix(upper, "USE"):
		s.execUse(stmt)
	default:
		s.execQuery(stmt)
	}
	return false
}

func (s *Shell) execCreateDatabase(stmt string) {
	name := strings.TrimSpace(stmt[len("CREATE DATABASE"):])
	if name == "" {
		s.printError(fmt.Errorf("parse error: missing database name"))
		return
	}
	if err := s.eng.CreateDatabase(name); err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintf(s.out, "database %q created\n", name)
}

func (s *Shell) execShowDatabases() {
	names, err := s.eng.ListDatabases()
	if err != nil {
		s.printError(err)
		return
	}
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	render.Table(s.out, []string{"database"}, rows)
}

func (s *Shell) execUse(stmt string) {
	name := strings.TrimSpace(stmt[len("USE"):])
	if name == "" {
		s.printError(fmt.Errorf("parse error: missing database name"))
		return
	}
	if _, err := s.eng.Use(name); err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintf(s.out, "using database %q\n", name)
}

func (s *Shell) execQuery(stmt string) {
	db := s.eng.Current()
	if db == nil {
		s.printError(fmt.Errorf("no database selected: run USE <name> first"))
		return
	}
	result, err := db.Executor.Execute(stmt)
	if err != nil {
		s.printError(err)
		return
	}
	if len(result.Columns) > 0 {
		render.Table(s.out, result.Columns, result.Rows)
	}
	if result.Message != "" {
		fmt.Fprintln(s.out, result.Message)
	}
}

func (s *Shell) printError(err error) {
	s.log.Warn("statement failed", "error", err)
	fmt.Fprintf(s.out, "error: %v\n", err)
}

// splitStatement looks for the first top-level semicolon in buf and
// returns the statement before it and the remainder after it. "exit"
// and "quit" don't require a trailing semicolon.
func splitStatement(buf string) (stmt, rest string, found bool) {
	trimmed := strings.TrimSpace(buf)
	upper := strings.ToUpper(trimmed)
	if upper == "EXIT" || upper == "QUIT" {
		return trimmed, "", true
	}

	if idx := strings.Index(buf, ";"); idx >= 0 {
		return buf[:idx], buf[idx+1:], true
	}
	return "", buf, false
}
