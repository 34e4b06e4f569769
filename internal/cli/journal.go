package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List committed transactions from the journal",
	RunE:  runJournal,
}

func init() {
	journalCmd.Flags().Uint64("from", 0, "first sequence number to list")
	journalCmd.Flags().Uint64("to", 0, "last sequence number to list (0 = end)")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	sess, err := openReadSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")
	sums, err := sess.jrn.Summaries(from, to)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Println("journal is empty")
		return nil
	}

	for _, s := range sums {
		line := fmt.Sprintf("seq %-6d %-8s %2d directive(s), %d feature(s)",
			s.Seq, s.Status, s.Directives, s.Touched)
		if s.Parent != 0 {
			line += fmt.Sprintf("  chained from %d", s.Parent)
		}
		if s.Label != "" {
			line += fmt.Sprintf("  %q", s.Label)
		}
		fmt.Println(line)
	}
	return nil
}
