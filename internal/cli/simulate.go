package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklayout/pkg/simulate"
)

type simulateOpts struct {
	json  bool // print the result as JSON
	drain int  // show only this drain's trace; -1 for the last
}

// simulateCommand replays a scenario and prints the callback trace and the
// final geometry.
func (c *CLI) simulateCommand() *cobra.Command {
	var opts simulateOpts

	cmd := &cobra.Command{
		Use:   "simulate [manifest]",
		Short: "Replay a scenario and print the sizing and layout order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSimulate(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	cmd.Flags().IntVar(&opts.drain, "drain", 0, "show only this drain (-1 for the last)")

	return cmd
}

func (c *CLI) runSimulate(ctx context.Context, path string, opts simulateOpts) error {
	logger := loggerFromContext(ctx)
	p := newProgress(logger)

	m, err := loadManifest(path)
	if err != nil {
		return err
	}
	logger.Infof("Loaded %s: %d views, %d steps", m.Settings.Name, len(m.Views), len(m.Steps))

	res, err := c.newRunner().Execute(ctx, m)
	if err != nil {
		return err
	}
	p.done("Replayed " + m.Settings.Name)

	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(res, opts.drain)
	return nil
}

func printResult(res *simulate.Result, drain int) {
	if drain < 0 {
		drain = res.LastDrain()
	}

	fmt.Println(StyleTitle.Render(res.Name))
	if len(res.Trace) == 0 {
		printInfo("No callbacks ran")
	} else {
		fmt.Println(traceTable(res.Trace, drain))
	}
	fmt.Println(boxTable(res.Boxes))
	printStats(res.Stats)
}
