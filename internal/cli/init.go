package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/geostorm/internal/workspace"
)

var initCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Create a new workspace manifest in the workspace directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringArray("collection", nil, "collection to register, as name=path.geojson (repeatable)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ws, err := workspace.Init(cfg.Workspace, args[0])
	if err != nil {
		return err
	}

	specs, _ := cmd.Flags().GetStringArray("collection")
	for _, spec := range specs {
		name, path, ok := splitSpec(spec)
		if !ok {
			return fmt.Errorf("bad --collection %q, want name=path.geojson", spec)
		}
		if err := ws.AddCollection(name, path, nil); err != nil {
			return err
		}
	}
	if len(specs) > 0 {
		if err := ws.Save(); err != nil {
			return err
		}
	}

	fmt.Printf("initialized workspace %q in %s (%d collections)\n",
		args[0], cfg.Workspace, len(ws.Manifest.Collections))
	return nil
}

func splitSpec(s string) (name, path string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], i > 0 && i < len(s)-1
		}
	}
	return "", "", false
}
