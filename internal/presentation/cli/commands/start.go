package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/flowtonehq/flowtone/internal/application"
	appsession "github.com/flowtonehq/flowtone/internal/application/session"
	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
	"github.com/flowtonehq/flowtone/internal/domain/session"
	"github.com/flowtonehq/flowtone/internal/presentation/cli/output"
)

// startFlags holds the flags for the start command.
type startFlags struct {
	DurationMinutes int
	FreePlay        bool
	BPM             int
	NoMonitor       bool
}

var startOpts startFlags

// NewStartCmd creates the start command for running a session.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a focus session",
		Long: `Start a focus session and drop into the interactive session console.

A wave session follows the intensity curve for the given duration. A
free-play session runs until cancelled, with the tempo under your
control.

Console commands:
  status          - Show session status
  pause / resume  - Pause or resume the session
  steer <text>    - Steer the music with natural language
  override <text> - Apply a musical override directly
  clear           - Clear the musical override
  bpm <n>         - Set the tempo (free-play only)
  cancel, quit    - End the session and exit

Examples:
  # A 25 minute wave session
  flowtone start

  # A 50 minute wave session
  flowtone start --duration 50

  # Free play at 120 BPM
  flowtone start --free-play --bpm 120`,
		Args: cobra.NoArgs,
		RunE: runStart,
	}

	cmd.Flags().IntVarP(&startOpts.DurationMinutes, "duration", "d", 0,
		"session duration in minutes (default from config)")
	cmd.Flags().BoolVar(&startOpts.FreePlay, "free-play", false,
		"run an untimed free-play session")
	cmd.Flags().IntVar(&startOpts.BPM, "bpm", 0,
		"free-play tempo (default from config)")
	cmd.Flags().BoolVar(&startOpts.NoMonitor, "no-monitor", false,
		"disable foreground-context monitoring")

	return cmd
}

// runStart starts the session and runs the interactive console.
func runStart(cmd *cobra.Command, args []string) error {
	formatter := GetFormatter()
	container := GetContainer()
	if container == nil {
		return errors.New("application not initialized")
	}

	cfg := container.Config()
	coord := container.Coordinator()
	ctx := context.Background()

	durationSeconds := cfg.Session.DefaultDurationSeconds
	if startOpts.DurationMinutes > 0 {
		durationSeconds = startOpts.DurationMinutes * 60
	}
	bpm := cfg.Session.FreePlayBPM
	if startOpts.BPM > 0 {
		bpm = startOpts.BPM
	}

	spinner := output.NewSpinner("Connecting to music backend...")
	spinner.Start()

	var err error
	if startOpts.FreePlay {
		err = coord.StartFreePlay(ctx, bpm)
	} else {
		err = coord.Start(ctx, durationSeconds)
	}
	spinner.Stop()
	if err != nil {
		return err
	}

	if !startOpts.NoMonitor {
		if err := container.StartMonitoring(ctx); err != nil {
			formatter.Warning("Focus monitoring disabled: %v", err)
		}
	}

	if startOpts.FreePlay {
		formatter.Header("Free Play")
		formatter.Item("Tempo", fmt.Sprintf("%d BPM", bpm))
	} else {
		formatter.Header("Focus Session")
		formatter.Item("Duration", output.Duration(durationSeconds))
	}
	formatter.Println("")
	formatter.Info("Type a command and press Enter. Type help for commands.")
	formatter.Println("")

	rl, err := readline.New("flowtone> ")
	if err != nil {
		return fmt.Errorf("could not create console: %w", err)
	}
	defer rl.Close()

	return runConsole(ctx, container, rl, formatter)
}

// runConsole reads and dispatches console commands until the session ends.
func runConsole(ctx context.Context, container *application.Container, rl *readline.Instance, formatter *output.Formatter) error {
	coord := container.Coordinator()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if coord.Status().State == session.StateCompleted {
				formatter.Success("Session complete")
				return nil
			}
			continue
		}

		command, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToLower(command) {
		case "help":
			printConsoleHelp(formatter)

		case "status":
			printStatus(formatter, coord.Status())

		case "pause":
			if err := coord.Pause(ctx); err != nil {
				formatter.Error("%s", err.Error())
			} else {
				formatter.Success("Paused")
			}

		case "resume":
			if err := coord.Resume(ctx); err != nil {
				formatter.Error("%s", err.Error())
			} else {
				formatter.Success("Resumed")
			}

		case "steer":
			if rest == "" {
				formatter.Error("usage: steer <text>")
				continue
			}
			intent, err := container.Steering().Handle(ctx, rest)
			if err != nil {
				formatter.Error("%s", err.Error())
				continue
			}
			formatter.Success("Applied (%s)", intent.Kind)

		case "override":
			if rest == "" {
				formatter.Error("usage: override <text>")
				continue
			}
			if err := coord.SetOverride(ctx, rest); err != nil {
				formatter.Error("%s", err.Error())
			} else {
				formatter.Success("Override set")
			}

		case "clear":
			if err := coord.ClearOverride(ctx); err != nil {
				formatter.Error("%s", err.Error())
			} else {
				formatter.Success("Override cleared")
			}

		case "bpm":
			value, err := strconv.Atoi(rest)
			if err != nil {
				formatter.Error("usage: bpm <number>")
				continue
			}
			if err := coord.SetFreePlayBPM(ctx, value); err != nil {
				formatter.Error("%s", err.Error())
			} else {
				formatter.Success("Tempo set to %d BPM", value)
			}

		case "cancel", "quit", "exit":
			if err := coord.Cancel(ctx); err != nil && !errors.Is(err, flowerrors.ErrNoActiveSession) {
				formatter.Warning("%s", err.Error())
			}
			formatter.Success("Session ended")
			return nil

		default:
			formatter.Error("unknown command %q, type help", command)
		}

		if coord.Status().State == session.StateCompleted {
			formatter.Success("Session complete")
			return nil
		}
	}

	_ = coord.Cancel(ctx)
	return nil
}

func printConsoleHelp(formatter *output.Formatter) {
	formatter.Println("Commands:")
	formatter.BulletItem("status          - show session status")
	formatter.BulletItem("pause / resume  - pause or resume the session")
	formatter.BulletItem("steer <text>    - steer the music with natural language")
	formatter.BulletItem("override <text> - apply a musical override directly")
	formatter.BulletItem("clear           - clear the musical override")
	formatter.BulletItem("bpm <n>         - set tempo (free-play only)")
	formatter.BulletItem("cancel / quit   - end the session and exit")
}

// printStatus renders a coordinator status snapshot.
func printStatus(formatter *output.Formatter, status appsession.Status) {
	if formatter.Format() == output.FormatJSON {
		formatter.JSON(status)
		return
	}

	formatter.Item("State", string(status.State))
	formatter.Item("Mode", string(status.Mode))
	formatter.Item("Connection", string(status.Connection.Status))

	if status.Mode == session.ModeWave {
		total := status.ElapsedSeconds + status.RemainingSeconds
		fraction := 0.0
		if total > 0 {
			fraction = float64(status.ElapsedSeconds) / float64(total)
		}
		formatter.Item("Progress", fmt.Sprintf("%s %s / %s",
			output.ProgressBar(fraction, 30),
			output.Duration(status.ElapsedSeconds),
			output.Duration(total)))
		formatter.Item("Intensity", fmt.Sprintf("%.2f", status.Intensity))
	} else {
		formatter.Item("Elapsed", output.Duration(status.ElapsedSeconds))
	}

	if status.Suspended {
		formatter.Item("Focus", "suspended (return to an allowed context to resume)")
	}
	if status.Override != "" {
		formatter.Item("Override", status.Override)
	}
	if status.RoutedLabel != "" {
		formatter.Item("Profile", status.RoutedLabel)
	}
}
