package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hupe1980/groupchat/config"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/groupchat"
	"github.com/hupe1980/groupchat/server"
)

// RunCmd runs one session in the terminal.
type RunCmd struct {
	Message  []string `arg:"" optional:"" help:"Initial message of the session."`
	Workflow string   `short:"w" help:"Override the configured workflow."`
	NoInput  bool     `name:"no-input" help:"Never ask for operator input; hand-backs end the session."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cli, func(cfg *config.Config) {
		if c.Workflow != "" {
			cfg.Workflow = c.Workflow
		}
	})
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return runSession(ctx, a.chats[cfg.Workflow], strings.Join(c.Message, " "), !c.NoInput, os.Stdin, os.Stdout)
}

// runSession streams the session to out, reading operator input from in
// when interactive, and prints the outcome.
func runSession(ctx context.Context, chat server.Chat, message string, interactive bool, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	if message == "" {
		fmt.Fprint(out, "Enter your request: ")
		if scanner.Scan() {
			message = scanner.Text()
		}
		if strings.TrimSpace(message) == "" {
			return errors.New("no message given")
		}
	}

	res, err := chat.Run(ctx, message, func(o *groupchat.RunOptions) {
		o.OnEvent = func(ev core.Event) error {
			_, err := fmt.Fprintln(out, server.FormatEvent(ev))
			return err
		}
		if interactive {
			o.Human = func(context.Context, []core.Event) (string, error) {
				fmt.Fprintln(out, server.HumanPrompt)
				if !scanner.Scan() {
					if err := scanner.Err(); err != nil {
						return "", err
					}
					return "exit", nil
				}
				return scanner.Text(), nil
			}
		}
	})
	if err != nil {
		return fmt.Errorf("session %s: %w", res.SessionID, err)
	}
	return printResult(out, res)
}

func printResult(out io.Writer, res groupchat.Result) error {
	fmt.Fprintf(out, "\nSession %s ended: %s after %d rounds\n", res.SessionID, res.Reason, res.Rounds)
	if !res.Completed() {
		fmt.Fprintln(out, "Report generation did not complete successfully.")
		return nil
	}

	if report, ok := res.Context["final_report"].(string); ok && report != "" {
		fmt.Fprintf(out, "\n===== FINAL REPORT =====\n%s\n", report)
	}
	vars, err := json.MarshalIndent(res.Context, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n===== CONTEXT VARIABLES =====\n%s\n", vars)
	fmt.Fprintf(out, "\n===== SPEAKER ORDER =====\n%s\n", strings.Join(res.SpeakerOrder, "\n"))
	return nil
}
