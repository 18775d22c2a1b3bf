package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/mdata/internal/config"
	"github.com/zjrosen/mdata/internal/log"
)

func init() {
	// Query the terminal background before any Bubble Tea program starts so
	// the OSC 11 reply cannot race the inspector's input loop.
	_ = lipgloss.HasDarkBackground()
}

var version = "dev"

// app carries the state shared by the commands of one invocation.
type app struct {
	cfgFile string
	debug   bool
	backend string

	cfg     config.Config
	cfgPath string

	logCleanup func()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "mdata",
		Short: "Inspect and edit records through a reactive record layer",
		Long: `mdata loads entity types from a YAML schema file and reads and writes
their records through a configurable store (memory, SQLite or HTTP).

Records are printed as JSON. References between types can be populated,
and 'mdata watch' follows changes made to a SQLite store by other processes.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.teardown() },
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: .mdata/config.yaml, then ~/.config/mdata/config.yaml)")
	root.PersistentFlags().StringVar(&a.backend, "store", "",
		"store backend: memory, sqlite or http (overrides config)")
	root.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false,
		"write debug logs (to log.path, default .mdata/debug.log)")

	root.AddCommand(
		newInitCmd(a),
		newTypesCmd(a),
		newTypesDefineCmd(a),
		newTypesRemoveCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newPopulateCmd(a),
		newWatchCmd(a),
	)
	return root
}

// setup loads configuration and starts logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	if a.backend != "" {
		v.Set("store.backend", a.backend)
	}

	cfg, used, err := config.Load(v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	a.cfgPath = used

	if a.debug || cfg.Log.Path != "" {
		logPath := cfg.Log.Path
		if logPath == "" {
			logPath = ".mdata/debug.log"
		}
		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		a.logCleanup = cleanup
		level := log.ParseLevel(cfg.Log.Level)
		if a.debug {
			level = log.LevelDebug
		}
		log.SetMinLevel(level)
		log.Info(log.CatConfig, "mdata starting", "command", cmd.Name(), "config", used, "backend", cfg.Store.Backend)
	}
	return nil
}

func (a *app) teardown() {
	if a.logCleanup != nil {
		a.logCleanup()
		a.logCleanup = nil
	}
}

// Execute runs the root command
func Execute() error {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) error {
	return executeContext(context.Background(), args, stdout, stderr)
}

func executeContext(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
}
