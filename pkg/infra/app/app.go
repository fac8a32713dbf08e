// Package app builds the cobra command behind each chunkflow binary.
//
// Options are read from a YAML file, then from environment variables, then
// from flags; later sources win. Every flag has a matching environment
// variable: with the prefix "chunkflow" the flag --postgres.host is also
// read from CHUNKFLOW_POSTGRES_HOST.
//
//	app.NewApp(
//	    app.WithName("chunkflow-api"),
//	    app.WithOptions(opts),
//	    app.WithEnvPrefix("chunkflow"),
//	    app.WithRunFunc(run),
//	).Run()
package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kart-io/chunkflow/pkg/infra/app/cliflag"
)

const flagConfig = "config"

// App is a runnable command with its option set.
type App struct {
	name        string
	description string
	envPrefix   string
	options     CliOptions
	runFunc     RunFunc

	cmd *cobra.Command
	fss cliflag.NamedFlagSets
	v   *viper.Viper
}

// RunFunc runs the application once options are complete and valid.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// WithName sets the command name, which is also the config file name.
func WithName(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

// WithDescription sets the long description shown by --help.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions sets the option set loaded before run.
func WithOptions(opts CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithEnvPrefix sets the environment variable prefix. Defaults to the
// command name.
func WithEnvPrefix(prefix string) Option {
	return func(a *App) {
		a.envPrefix = prefix
	}
}

// WithRunFunc sets the run function.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// NewApp creates the application and its command.
func NewApp(opts ...Option) *App {
	a := &App{
		name: filepath.Base(os.Args[0]),
		v:    viper.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.envPrefix == "" {
		a.envPrefix = a.name
	}

	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:          a.name,
		Long:         a.description,
		RunE:         a.runCommand,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	global := a.fss.FlagSet("global")
	global.StringP(flagConfig, "c", "", "Path to the YAML config file.")
	version.AddFlags(global)
	global.BoolP("help", "h", false, "Help for "+a.name+".")

	if a.options != nil {
		opts := a.options.Flags()
		for _, name := range opts.Order {
			a.fss.FlagSet(name).AddFlagSet(opts.FlagSets[name])
		}
	}
	for _, name := range a.fss.Order {
		cmd.Flags().AddFlagSet(a.fss.FlagSets[name])
	}

	cmd.SetUsageFunc(func(c *cobra.Command) error {
		a.printUsage(c.OutOrStderr())
		return nil
	})
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		if a.description != "" {
			fmt.Fprintf(c.OutOrStdout(), "%s\n\n", a.description)
		}
		a.printUsage(c.OutOrStdout())
	})

	a.cmd = cmd
}

// printUsage prints flags grouped by section, in registration order.
func (a *App) printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage:\n  %s [flags]\n", a.name)
	for _, name := range a.fss.Order {
		fs := a.fss.FlagSets[name]
		if !fs.HasFlags() {
			continue
		}
		fmt.Fprintf(w, "\n%s flags:\n\n%s", name, fs.FlagUsages())
	}
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	version.PrintAndExitIfRequested()

	if err := a.loadConfig(cmd); err != nil {
		return err
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc != nil {
		return a.runFunc()
	}
	return nil
}

// Execute runs the command with args instead of os.Args.
func (a *App) Execute(args []string) error {
	a.cmd.SetArgs(args)
	return a.cmd.Execute()
}

// Run executes the command and exits non-zero on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}
