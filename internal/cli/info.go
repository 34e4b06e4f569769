package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/geostorm/internal/engine/store"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show workspace collections and journal state",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	sess, err := openReadSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	st := store.NewStore()
	if _, err := sess.ws.LoadInto(st); err != nil {
		return err
	}

	fmt.Printf("workspace %q (%s)\n", sess.ws.Manifest.Name, sess.ws.Dir)
	for _, spec := range sess.ws.Manifest.Collections {
		c, err := st.Collection(spec.Name)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("  %-20s %6d feature(s)  %s", spec.Name, c.Count(), spec.Path)
		if b, ok := spec.OrbBound(); ok {
			line += fmt.Sprintf("  bound [%g %g %g %g]", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
		}
		fmt.Println(line)
	}

	jstats := sess.jrn.Stats()
	entries, err := sess.jrn.Count()
	if err != nil {
		return err
	}
	fmt.Printf("journal %s\n", sess.jrn.Dir())
	fmt.Printf("  %d entry(ies), last seq %d\n", entries, jstats.LastSeq)
	return nil
}
