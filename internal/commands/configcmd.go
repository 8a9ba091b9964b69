package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"nexustodo/internal/app"
	"nexustodo/internal/config"
	"nexustodo/internal/exitcode"
)

func init() {
	Register(&ConfigCmd{})
}

// ConfigCmd implements the config command: show the effective settings or
// set the service addresses.
type ConfigCmd struct{}

func (c *ConfigCmd) Name() string      { return "config" }
func (c *ConfigCmd) Aliases() []string { return nil }
func (c *ConfigCmd) Synopsis() string  { return "Show or change settings" }
func (c *ConfigCmd) Usage() string {
	return "nexustodo config [show | set <base_url|agent_base_url|token|review_time> <value>]"
}
func (c *ConfigCmd) NeedsApp() bool { return true }

func (c *ConfigCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ConfigCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	if len(args) == 0 || args[0] == "show" {
		return c.show(cfg, a, out)
	}
	if args[0] != "set" {
		fmt.Fprintf(errOut, "error: unknown config action: %s\n", args[0])
		return exitcode.UserError
	}
	if len(args) < 2 {
		fmt.Fprintln(errOut, "error: setting name required")
		return exitcode.UserError
	}

	key := args[1]
	value := strings.TrimSpace(strings.Join(args[2:], " "))

	var apply func(*config.Settings)
	switch key {
	case "base_url":
		apply = func(s *config.Settings) { s.BaseURL = value }
	case "agent_base_url":
		apply = func(s *config.Settings) { s.AgentBaseURL = value }
	case "token":
		apply = func(s *config.Settings) { s.Token = value }
	case "review_time":
		apply = func(s *config.Settings) { s.ReviewTime = value }
	default:
		fmt.Fprintf(errOut, "error: unknown setting: %s\n", key)
		return exitcode.UserError
	}

	before := cfg.Settings
	if err := cfg.Update(apply); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	// A discovered agent address belongs to the old service address.
	if before.BaseURL != cfg.Settings.BaseURL || before.AgentBaseURL != cfg.Settings.AgentBaseURL {
		a.Resolver.Forget(ctx)
	}
	return printOK(cfg.Quiet, out)
}

func (c *ConfigCmd) show(cfg *config.Config, a *app.App, out io.Writer) int {
	s := cfg.Settings
	agent := a.Resolver.AgentBase()
	switch {
	case a.Resolver.Explicit():
		agent += " (configured)"
	case a.Resolver.Discovered() != "":
		agent += " (discovered)"
	default:
		agent += " (derived)"
	}
	id := a.Identity()

	fmt.Fprintf(out, "config:      %s\n", cfg.Path())
	fmt.Fprintf(out, "base_url:    %s\n", s.BaseURL)
	fmt.Fprintf(out, "agent:       %s\n", agent)
	if s.BridgeURL != "" {
		fmt.Fprintf(out, "bridge_url:  %s\n", s.BridgeURL)
	}
	fmt.Fprintf(out, "timeout:     %s\n", s.Timeout)
	fmt.Fprintf(out, "review_time: %s\n", s.ReviewTime)
	fmt.Fprintf(out, "device:      %s\n", orNone(id.DeviceID))
	fmt.Fprintf(out, "user:        %s\n", orNone(id.UserID))
	return exitcode.Success
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
