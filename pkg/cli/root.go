package cli

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/arena/pkg/config"
	"github.com/platinummonkey/arena/pkg/observability"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
}

// Env carries what commands need from the process: where to print, how to
// report progress, and how to reach the database.
type Env struct {
	Out io.Writer
	// Log reports operator-facing progress.
	Log *logrus.Logger
	// Logger is handed to library calls that log structured records.
	Logger *observability.Logger
	Config *config.Config
	// OpenDB returns the shared database handle. The caller owns closing it.
	OpenDB func(ctx context.Context) (*sql.DB, error)
}

func (e *Env) db(ctx context.Context) (*sql.DB, error) {
	if e.OpenDB == nil {
		return nil, errors.New("no database configured")
	}
	return e.OpenDB(ctx)
}

// flagSet returns an empty flag set for one invocation of a command. Flag
// variables must not outlive a run, or values leak into the next one.
func (e *Env) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.Out)
	return fs
}

func (e *Env) config() (*config.Config, error) {
	if e.Config == nil {
		return nil, errors.New("no configuration loaded")
	}
	return e.Config, nil
}

// NewRootCommand creates the root command
func NewRootCommand(env *Env) *Command {
	if env.Log == nil {
		env.Log = logrus.New()
		env.Log.SetOutput(io.Discard)
	}
	if env.Logger == nil {
		env.Logger = observability.NewNopLogger()
	}

	root := &Command{
		Name:        "arena-admin",
		Description: "Arena access-control administration",
		Subcommands: make(map[string]*Command),
	}

	root.Subcommands["migrate"] = newMigrateCommand(env)
	root.Subcommands["seed"] = newSeedCommand(env)
	root.Subcommands["catalog"] = newCatalogCommand(env)
	root.Subcommands["token"] = newTokenCommand(env)
	root.Subcommands["check"] = newCheckCommand(env)
	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		c.usage(out)
		return nil
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:])
	}

	c.usage(out)
	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) {
	fmt.Fprintf(out, "Usage: %s <command> [flags]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
}
