package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/dshills/geostorm/internal/config"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/store"
	"github.com/dshills/geostorm/internal/logx"
	"github.com/dshills/geostorm/internal/query"
	"github.com/dshills/geostorm/internal/workspace"
)

var selectCmd = &cobra.Command{
	Use:   "select <collection> [expression]",
	Short: "Print features matching an attribute expression as GeoJSON",
	Long: "Select evaluates an attribute expression (for example\n" +
		"  lanes >= 2 && kind == 'road'\n" +
		") or a bounding box over one collection and prints the matching\n" +
		"features as a GeoJSON FeatureCollection.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runSelect,
}

func init() {
	selectCmd.Flags().String("bound", "", "bounding box minx,miny,maxx,maxy instead of an expression")
	selectCmd.Flags().Bool("count", false, "print only the number of matches")
	rootCmd.AddCommand(selectCmd)
}

// openStore loads the workspace collections without journal or engine,
// for read-only commands.
func openStore(cmd *cobra.Command) (config.Config, *store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logx.New(cfg.SlogLevel())
	ws, err := workspace.Load(cfg.Workspace, workspace.WithLogger(log))
	if err != nil {
		return config.Config{}, nil, err
	}
	st := store.NewStore()
	if _, err := ws.LoadInto(st); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, st, nil
}

func runSelect(cmd *cobra.Command, args []string) error {
	coll := args[0]
	boundArg, _ := cmd.Flags().GetString("bound")
	if (len(args) == 2) == (boundArg != "") {
		return fmt.Errorf("select needs an expression or --bound, not both")
	}

	_, st, err := openStore(cmd)
	if err != nil {
		return err
	}

	var sel feature.SelectionSet
	if boundArg != "" {
		b, err := parseBound(boundArg)
		if err != nil {
			return err
		}
		sel, err = st.SelectInBound(b, coll)
		if err != nil {
			return err
		}
	} else {
		q, err := query.Compile(args[1])
		if err != nil {
			return err
		}
		sel, err = st.Select(coll, q.Predicate())
		if err != nil {
			return err
		}
	}

	if countOnly, _ := cmd.Flags().GetBool("count"); countOnly {
		fmt.Println(sel.Count())
		return nil
	}

	c, err := st.Collection(coll)
	if err != nil {
		return err
	}
	fc := geojson.NewFeatureCollection()
	for _, id := range sel.IDs(coll) {
		f, err := c.Get(id)
		if err != nil {
			return err
		}
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = int64(f.ID)
		gf.Properties = geojson.Properties(f.Attributes.ToProperties())
		fc.Append(gf)
	}
	out, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func parseBound(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bad bound %q, want minx,miny,maxx,maxy", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bad bound %q: %w", s, err)
		}
		vals[i] = v
	}
	return orb.Bound{
		Min: orb.Point{vals[0], vals[1]},
		Max: orb.Point{vals[2], vals[3]},
	}, nil
}
