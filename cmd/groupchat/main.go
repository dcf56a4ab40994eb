// Command groupchat serves and runs multi-agent group chat workflows.
//
// Usage:
//
//	groupchat serve --config groupchat.yaml
//	groupchat run --workflow research "Create a report on renewable energy"
//	groupchat version
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP API and the WebSocket bridge."`
	Run     RunCmd     `cmd:"" help:"Run one session in the terminal."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Override the configured log level (debug, info, warn, error)."`
	Provider string `help:"Override the model provider (openai, azure, anthropic, mock)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("groupchat version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("groupchat"),
		kong.Description("Multi-agent group chat with rule based hand-offs"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
