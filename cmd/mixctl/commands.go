package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flight-control/mixerd/internal/auth"
	"github.com/flight-control/mixerd/internal/cli"
	"github.com/flight-control/mixerd/internal/client"
	"github.com/flight-control/mixerd/internal/mixer"
	"github.com/flight-control/mixerd/internal/ui"
)

// Globals are flags shared by every command.
type Globals struct {
	URL     string        `help:"Daemon base URL" default:"http://127.0.0.1:8080" env:"MIXCTL_URL"`
	Token   string        `help:"Bearer token for the daemon" env:"MIXCTL_TOKEN"`
	Timeout time.Duration `help:"Request timeout" default:"5s"`

	Out io.Writer `kong:"-"`
}

func (g *Globals) client() *client.Client {
	return client.New(g.URL, g.Token)
}

func (g *Globals) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.Timeout)
}

// CheckCmd parses a mixer file against the daemon limits.
type CheckCmd struct {
	File       string `arg:"" type:"existingfile" help:"Mixer definition file"`
	MaxMixers  int    `help:"Mixer limit" default:"64"`
	MaxOutputs int    `help:"Output limit" default:"16"`
	Policy     string `help:"Load policy: abort or skip" default:"abort" enum:"abort,skip"`
}

func (c *CheckCmd) Run(g *Globals) error {
	buf, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	policy, err := mixer.ParsePolicy(c.Policy)
	if err != nil {
		return err
	}

	group := mixer.NewGroup(mixer.Limits{MaxMixers: c.MaxMixers, MaxOutputs: c.MaxOutputs})
	rep, err := mixer.LoadWith(buf, group, policy)
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	for _, e := range rep.Errors {
		cli.PrintWarning(fmt.Sprintf("%s: skipped: %v", c.File, e))
	}

	fmt.Fprintln(g.Out, cli.TitleStyle.Render(c.File))
	fmt.Fprint(g.Out, cli.RenderMixerTable(cli.MixerRows(group.Mixers())))
	fmt.Fprintln(g.Out)
	cli.PrintKeyValue(g.Out, "Mixers:", group.Len())
	cli.PrintKeyValue(g.Out, "Outputs:", group.OutputCount())
	if rep.Skipped > 0 {
		cli.PrintKeyValue(g.Out, "Skipped:", rep.Skipped)
	}
	return nil
}

// EncodeCmd prints base64 add-simple records, one per line.
type EncodeCmd struct {
	File string `arg:"" type:"existingfile" help:"Mixer definition file"`
}

func (c *EncodeCmd) Run(g *Globals) error {
	buf, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	ms, err := mixer.Parse(buf)
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	for i := range ms {
		s, ok := ms[i].AsSimple()
		if !ok {
			fmt.Fprintf(g.Out, "# output %d: %s mixer has no record\n", i, ms[i].Kind())
			continue
		}
		fmt.Fprintln(g.Out, base64.StdEncoding.EncodeToString(mixer.EncodeSimple(s)))
	}
	return nil
}

// DecodeCmd prints a base64 add-simple record in text form.
type DecodeCmd struct {
	Record string `arg:"" help:"Base64 add-simple record"`
}

func (c *DecodeCmd) Run(g *Globals) error {
	rec, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Record))
	if err != nil {
		return fmt.Errorf("record is not valid base64: %w", err)
	}
	s, err := mixer.DecodeSimple(rec)
	if err != nil {
		return err
	}
	return mixer.Format(g.Out, []mixer.Mixer{mixer.Simple(s)})
}

// TokenCmd mints an HS256 token accepted by a daemon sharing the secret.
type TokenCmd struct {
	Secret  string        `help:"HS256 secret" required:"" env:"MIXERD_AUTH_SECRET"`
	Subject string        `help:"Token subject" default:"operator"`
	Scope   []string      `help:"Granted scopes" default:"read" enum:"read,control,telemetry"`
	TTL     time.Duration `name:"ttl" help:"Token lifetime; zero never expires" default:"24h"`
}

func (c *TokenCmd) Run(g *Globals) error {
	token, err := auth.IssueToken(c.Secret, c.Subject, auth.DefaultRoles(c.Scope), c.Scope, c.TTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(g.Out, token)
	return nil
}

// CallCmd calls any JSON-RPC method and prints the result as JSON.
type CallCmd struct {
	Method string   `arg:"" help:"Method name, e.g. status"`
	Params []string `arg:"" optional:"" help:"String parameters"`
}

func (c *CallCmd) Run(g *Globals) error {
	ctx, cancel := g.context()
	defer cancel()

	var result json.RawMessage
	if err := g.client().Call(ctx, c.Method, c.Params, &result); err != nil {
		return err
	}
	if text, ok := asString(result); ok {
		fmt.Fprint(g.Out, text)
		if !strings.HasSuffix(text, "\n") {
			fmt.Fprintln(g.Out)
		}
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(g.Out, pretty.String())
	return nil
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// LoadCmd sends a mixer file with load_buffer, optionally resetting first.
type LoadCmd struct {
	File  string `arg:"" type:"existingfile" help:"Mixer definition file"`
	Reset bool   `help:"Reset the daemon's mixer group first"`
}

func (c *LoadCmd) Run(g *Globals) error {
	buf, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	// Catch syntax errors locally before touching the daemon.
	if _, err := mixer.Parse(buf); err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}

	ctx, cancel := g.context()
	defer cancel()
	cl := g.client()
	if c.Reset {
		if err := cl.Call(ctx, "reset", nil, nil); err != nil {
			return err
		}
	}
	rep, err := cl.LoadBuffer(ctx, string(buf))
	if err != nil {
		return err
	}
	for _, e := range rep.Errors {
		cli.PrintWarning("skipped: " + e)
	}
	n, err := cl.OutputCount(ctx)
	if err != nil {
		return err
	}
	cli.PrintKeyValue(g.Out, "Loaded:", rep.Loaded)
	cli.PrintKeyValue(g.Out, "Outputs:", n)
	return nil
}

// WatchCmd polls mix and shows the outputs live.
type WatchCmd struct {
	Interval time.Duration `help:"Poll interval" default:"200ms"`
}

func (c *WatchCmd) Run(g *Globals) error {
	cl := g.client()
	model := ui.NewModel(g.URL, cl.Mix, c.Interval)
	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
