package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"nexustodo/internal/app"
	"nexustodo/internal/backend/nexusapi"
	"nexustodo/internal/config"
	"nexustodo/internal/exitcode"
)

func init() {
	Register(&RegisterCmd{})
}

// RegisterCmd implements the register command.
type RegisterCmd struct {
	force bool
}

func (c *RegisterCmd) Name() string      { return "register" }
func (c *RegisterCmd) Aliases() []string { return nil }
func (c *RegisterCmd) Synopsis() string  { return "Register this device and print its identity" }
func (c *RegisterCmd) Usage() string     { return "nexustodo register [--force]" }
func (c *RegisterCmd) NeedsApp() bool    { return true }

func (c *RegisterCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "")
}

func (c *RegisterCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	register := a.EnsureRegistered
	if c.force {
		register = a.Register
	}
	id, err := register(ctx)
	if err != nil {
		fmt.Fprintf(errOut, "error: device error: %s\n", nexusapi.Message(err))
		return exitcode.DeviceError
	}

	fmt.Fprintf(out, "device: %s\n", id.DeviceID)
	fmt.Fprintf(out, "user:   %s\n", id.UserID)
	return exitcode.Success
}
