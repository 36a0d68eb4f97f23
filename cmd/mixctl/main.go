package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/flight-control/mixerd/internal/cli"
)

var (
	version = "0.1.0"
)

type versionFlag bool

// BeforeApply prints the version and exits before any command runs.
func (v versionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	cli.PrintVersion(vars["version"])
	app.Exit(0)
	return nil
}

// CLI defines the command-line interface
type CLI struct {
	Globals

	Version versionFlag `short:"v" help:"Show version information"`

	Check  CheckCmd  `cmd:"" help:"Parse a mixer file and print its outputs"`
	Encode EncodeCmd `cmd:"" help:"Print the add-simple record of each simple mixer in a file"`
	Decode DecodeCmd `cmd:"" help:"Print an add-simple record as mixer text"`
	Token  TokenCmd  `cmd:"" help:"Mint an HS256 API token"`
	Call   CallCmd   `cmd:"" help:"Call a JSON-RPC method on the daemon"`
	Load   LoadCmd   `cmd:"" help:"Send a mixer file to the daemon"`
	Watch  WatchCmd  `cmd:"" help:"Show live mixer outputs"`
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("mixctl"),
		kong.Description("Operator tool for mixer files and the mixerd daemon"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	cliArgs.Globals.Out = os.Stdout
	if err := ctx.Run(&cliArgs.Globals); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}
