package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/geostorm/internal/script"
)

var applyCmd = &cobra.Command{
	Use:   "apply <script.json>",
	Short: "Run an edit script against the workspace",
	Long: "Apply parses a JSON edit script, commits its operation blocks as\n" +
		"journaled transactions, and writes the collections back to their\n" +
		"GeoJSON files.",
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().Bool("no-export", false, "commit and journal but leave the GeoJSON files untouched")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	s, err := script.Parse(data)
	if err != nil {
		return err
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	res, err := script.NewRunner(sess.eng, script.WithLogger(sess.log)).Run(ctx, s)
	for _, rec := range res.Records {
		fmt.Printf("committed seq %d  %q  (%d directives)\n", rec.Seq, rec.Label, len(rec.Outcomes()))
	}
	if len(res.Created) > 0 {
		names := make([]string, 0, len(res.Created))
		for name := range res.Created {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("created %s = %d\n", name, res.Created[name])
		}
	}
	if err != nil {
		return fmt.Errorf("script failed after %d blocks: %w", len(res.Records), err)
	}

	if skip, _ := cmd.Flags().GetBool("no-export"); skip {
		return nil
	}
	return sess.export()
}
