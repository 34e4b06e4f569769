package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/query"
	"github.com/dshills/geostorm/internal/script"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive session over the workspace",
	RunE:  runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("ls"),
	readline.PcItem("get"),
	readline.PcItem("select"),

	readline.PcItem("run"),
	readline.PcItem("undo"),
	readline.PcItem("redo"),
	readline.PcItem("history"),

	readline.PcItem("journal"),
	readline.PcItem("export"),
	readline.PcItem("info"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// repl drives an interactive session over one open workspace.
type repl struct {
	sess *session
	rl   *readline.Instance
}

func runRepl(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	r := &repl{sess: sess}
	if err := r.open(); err != nil {
		return err
	}
	defer r.close()

	for {
		err := r.step()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			fmt.Fprintln(os.Stdout, err.Error())
		}
	}
}

func (r *repl) open() (err error) {
	r.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "⌖ ",
		HistoryFile:     ".geostorm_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	r.rl.CaptureExitSignal()
	return
}

func (r *repl) close() error {
	if r.rl != nil {
		_ = r.rl.Close()
		r.rl = nil
	}
	return nil
}

// step reads one line and dispatches it.
func (r *repl) step() error {
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	cmd := line
	arg := ""
	if ws := strings.IndexAny(line, " \t"); ws > 0 {
		cmd = line[:ws]
		arg = strings.TrimSpace(line[ws:])
	}

	switch cmd {
	case "help":
		return r.commandHelp()
	case "ls":
		return r.commandList()
	case "get":
		return r.commandGet(arg)
	case "select":
		return r.commandSelect(arg)
	case "run":
		return r.commandRun(arg)
	case "undo":
		return r.commandUndo()
	case "redo":
		return r.commandRedo()
	case "history":
		return r.commandHistory()
	case "journal":
		return r.commandJournal(arg)
	case "export":
		return r.sess.export()
	case "info":
		return r.commandInfo()
	case "exit", "quit":
		return io.EOF
	default:
		fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		return nil
	}
}

func (r *repl) commandHelp() error {
	fmt.Print(`commands:
  ls                          list collections
  get <collection> <id>       print one feature as GeoJSON
  select <collection> <expr>  ids of features matching an expression
  run <script.json>           apply an edit script
  undo | redo                 step transaction history
  history                     list undoable transactions
  journal [from [to]]         list journal entries
  export                      write collections back to GeoJSON files
  info                        engine and journal counters
  exit                        leave
`)
	return nil
}

func (r *repl) commandList() error {
	for _, name := range r.sess.eng.Collections() {
		c, err := r.sess.st.Collection(name)
		if err != nil {
			return err
		}
		fmt.Printf("%-20s %6d feature(s)\n", name, c.Count())
	}
	return nil
}

func (r *repl) commandGet(arg string) error {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return fmt.Errorf("usage: get <collection> <id>")
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad id %q: %w", fields[1], err)
	}
	f, err := r.sess.eng.Get(fields[0], feature.ID(id))
	if err != nil {
		return err
	}
	gf := geojson.NewFeature(f.Geometry)
	gf.ID = int64(f.ID)
	gf.Properties = geojson.Properties(f.Attributes.ToProperties())
	out, err := json.MarshalIndent(gf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (r *repl) commandSelect(arg string) error {
	coll, expr, ok := strings.Cut(arg, " ")
	if !ok {
		return fmt.Errorf("usage: select <collection> <expression>")
	}
	q, err := query.Compile(strings.TrimSpace(expr))
	if err != nil {
		return err
	}
	sel, err := r.sess.eng.Select(coll, q.Predicate())
	if err != nil {
		return err
	}
	ids := sel.IDs(coll)
	fmt.Printf("%d match(es)", len(ids))
	if len(ids) > 0 {
		fmt.Print(":")
		for _, id := range ids {
			fmt.Printf(" %d", id)
		}
	}
	fmt.Println()
	return nil
}

func (r *repl) commandRun(arg string) error {
	if arg == "" {
		return fmt.Errorf("usage: run <script.json>")
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return err
	}
	s, err := script.Parse(data)
	if err != nil {
		return err
	}
	res, err := script.NewRunner(r.sess.eng, script.WithLogger(r.sess.log)).
		Run(context.Background(), s)
	for _, rec := range res.Records {
		fmt.Printf("committed seq %d %q\n", rec.Seq, rec.Label)
	}
	return err
}

func (r *repl) commandUndo() error {
	rec, err := r.sess.eng.Undo(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("undone seq %d %q\n", rec.Seq, rec.Label)
	return nil
}

func (r *repl) commandRedo() error {
	rec, err := r.sess.eng.Redo(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("redone seq %d %q\n", rec.Seq, rec.Label)
	return nil
}

func (r *repl) commandHistory() error {
	infos := r.sess.eng.UndoInfo()
	if len(infos) == 0 {
		fmt.Println("nothing to undo")
		return nil
	}
	for _, in := range infos {
		fmt.Printf("seq %-6d %-8s %2d directive(s)  %q\n",
			in.Seq, in.Status, in.Directives, in.Label)
	}
	return nil
}

func (r *repl) commandJournal(arg string) error {
	var from, to uint64
	fields := strings.Fields(arg)
	if len(fields) > 0 {
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad from %q: %w", fields[0], err)
		}
		from = v
	}
	if len(fields) > 1 {
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad to %q: %w", fields[1], err)
		}
		to = v
	}
	sums, err := r.sess.jrn.Summaries(from, to)
	if err != nil {
		return err
	}
	for _, s := range sums {
		fmt.Printf("seq %-6d %-8s %2d directive(s)  %q\n", s.Seq, s.Status, s.Directives, s.Label)
	}
	return nil
}

func (r *repl) commandInfo() error {
	es := r.sess.eng.Stats()
	js := r.sess.jrn.Stats()
	fmt.Printf("applied %d  rejected %d  undone %d  redone %d\n",
		es.Applied, es.Rejected, es.Undone, es.Redone)
	fmt.Printf("undo depth %d  redo depth %d\n", es.UndoDepth, es.RedoDepth)
	fmt.Printf("journal last seq %d  appended %d  cached %d\n",
		js.LastSeq, js.Appended, js.Cached)
	return nil
}
