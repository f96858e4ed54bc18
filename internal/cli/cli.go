// Package cli implements the stacklayout command-line interface.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklayout/pkg/buildinfo"
	"github.com/matzehuels/stacklayout/pkg/cache"
	"github.com/matzehuels/stacklayout/pkg/manifest"
	"github.com/matzehuels/stacklayout/pkg/observability"
	"github.com/matzehuels/stacklayout/pkg/simulate"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display.
	appName = "stacklayout"

	// defaultAddr is where serve listens unless --addr is given.
	defaultAddr = "127.0.0.1:8080"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Stacklayout schedules and visualizes view tree layout passes",
		Long: `Stacklayout replays view tree scenarios through a layout coordinator that
batches invalidations into ordered drains: children are measured before their
parents, parents are arranged before their children.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			hooks := &logHooks{logger: c.Logger}
			observability.SetCoordinatorHooks(hooks)
			observability.SetThreadHooks(hooks)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.simulateCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a scenario runner for CLI use.
func (c *CLI) newRunner() *simulate.Runner {
	return simulate.NewRunner(c.Logger)
}

// newCache returns the diagram cache, or a no-op cache if noCache is set.
func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NullCache{}, nil
	}
	dir, err := cache.DefaultDir()
	if err != nil {
		return nil, err
	}
	return cache.NewFileCache(dir)
}

// loadManifest reads the scenario file given on the command line.
func loadManifest(path string) (*manifest.Manifest, error) {
	return manifest.Load(path)
}
