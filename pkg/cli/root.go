package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/platinummonkey/ehrops/pkg/engine"
)

// Opener builds an engine for a single command. The returned func releases
// whatever the engine holds open.
type Opener func(ctx context.Context) (*engine.Engine, func(), error)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

type app struct {
	open Opener
	out  io.Writer
}

// NewRootCommand creates the root command
func NewRootCommand(open Opener, out io.Writer) *Command {
	a := &app{open: open, out: out}
	root := &Command{
		Name:        "ehrops",
		Description: "ehrops - authorization and access-control operator CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("ehrops", flag.ContinueOnError),
	}

	for _, cmd := range []*Command{
		a.newSeedCommand(),
		a.newBootstrapAdminCommand(),
		a.newRolesCommand(),
		a.newPermissionsCommand(),
		a.newCheckCommand(),
		a.newRestrictionsCommand(),
		a.newSimulateCommand(),
		a.newInviteCommand(),
		a.newRevokeCommand(),
		a.newSweepCommand(),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(out io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.usage(out)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(out, "  %-16s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

func (a *app) command(name, description string) *Command {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return &Command{Name: name, Description: description, Flags: fs}
}

// withEngine opens an engine, runs fn and releases the engine
func (a *app) withEngine(fn func(ctx context.Context, e *engine.Engine) error) error {
	ctx := context.Background()
	e, closeFn, err := a.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer closeFn()
	return fn(ctx, e)
}

func (a *app) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(a.out, string(data))
	return nil
}

// optionalID turns the zero value of an ID flag into nil
func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
