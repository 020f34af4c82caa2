package commands

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
)

// NewSteerCmd creates the steer command.
func NewSteerCmd() *cobra.Command {
	var repl bool

	cmd := &cobra.Command{
		Use:   "steer [text]",
		Short: "Steer the music or edit the focus policy with natural language",
		Long: `Send a natural-language instruction to the intent classifier.

Steering instructions change the music during a running session; block
and unblock instructions edit the focus policy and take effect
immediately.

Examples:
  flowtone steer "more energy, faster"
  flowtone steer "block reddit"
  flowtone steer --repl`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if repl {
				return runSteerREPL()
			}
			if len(args) == 0 {
				return errors.New("give an instruction or use --repl")
			}
			return steerOnce(strings.Join(args, " "))
		},
	}

	cmd.Flags().BoolVar(&repl, "repl", false, "interactive steering loop")

	return cmd
}

func steerOnce(text string) error {
	formatter := GetFormatter()
	container := GetContainer()
	if container == nil {
		return errors.New("application not initialized")
	}

	intent, err := container.Steering().Handle(context.Background(), text)
	if err != nil {
		if errors.Is(err, flowerrors.ErrNoActiveSession) {
			return errors.New("no active session; music steering needs a running session")
		}
		return err
	}

	formatter.Success("Applied (%s)", intent.Kind)
	return nil
}

func runSteerREPL() error {
	formatter := GetFormatter()

	rl, err := readline.New("steer> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	formatter.Info("Type instructions, or exit to leave.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := steerOnce(line); err != nil {
			formatter.Error("%s", err.Error())
		}
	}
}
