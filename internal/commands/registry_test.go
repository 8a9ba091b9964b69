package commands_test

import (
	"context"
	"flag"
	"io"
	"testing"

	"nexustodo/internal/app"
	"nexustodo/internal/commands"
	"nexustodo/internal/config"
)

type stubCmd struct {
	name    string
	aliases []string
}

func (c *stubCmd) Name() string                   { return c.name }
func (c *stubCmd) Aliases() []string              { return c.aliases }
func (c *stubCmd) Synopsis() string               { return "" }
func (c *stubCmd) Usage() string                  { return "" }
func (c *stubCmd) NeedsApp() bool                 { return false }
func (c *stubCmd) RegisterFlags(fs *flag.FlagSet) {}
func (c *stubCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	return 0
}

func TestRegistry(t *testing.T) {
	r := commands.NewRegistry()
	if err := r.Register(&stubCmd{name: "list", aliases: []string{"ls"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&stubCmd{name: "add"}); err != nil {
		t.Fatal(err)
	}

	if err := r.Register(&stubCmd{name: "links", aliases: []string{"ls"}}); err == nil {
		t.Error("expected alias clash")
	}
	if _, ok := r.Find("links"); ok {
		t.Error("rejected command must not be partially registered")
	}

	cmd, ok := r.Find("ls")
	if !ok || cmd.Name() != "list" {
		t.Errorf("expected alias to find list, got %v %v", cmd, ok)
	}

	all := r.All()
	if len(all) != 2 || all[0].Name() != "add" || all[1].Name() != "list" {
		t.Errorf("unexpected commands %v", all)
	}
}

func TestDefaultRegistry_Aliases(t *testing.T) {
	for alias, name := range map[string]string{"ls": "list", "sync": "list", "create": "add", "delete": "rm", "ask": "chat"} {
		cmd, ok := commands.DefaultRegistry.Find(alias)
		if !ok || cmd.Name() != name {
			t.Errorf("alias %s: expected %s", alias, name)
		}
	}
}
