package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"device-rpc/internal/tracker"
)

func newPulseCommand(opts *options) *cobra.Command {
	pulse := &cobra.Command{
		Use:   "pulse",
		Short: "hardware pulse trains",
	}
	pulse.AddCommand(
		newPulseStartCommand(opts),
		newPulseStopCommand(opts),
		newPulseStatusCommand(opts),
	)
	return pulse
}

func newPulseStartCommand(opts *options) *cobra.Command {
	var (
		width    int
		pause    int
		interval time.Duration
		detach   bool
	)
	cmd := &cobra.Command{
		Use:   "start <channel> <pin> <count>",
		Short: "start a pulse train and follow it to completion",
		Long: `Configures the channel on pin, starts count pulses and polls the device
until the train finishes. Interrupting the command stops the train.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseInts(args...)
			if err != nil {
				return err
			}
			channel, pin, count := n[0], n[1], n[2]
			if count <= 0 {
				return fmt.Errorf("count must be positive, got %d", count)
			}

			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				out := cmd.OutOrStdout()
				t := tracker.New(s.client, s.logger)

				if err := checkStatus(out, "pulseBegin", t.Begin(ctx, channel, pin)); err != nil {
					return err
				}
				if _, st := t.Start(ctx, channel, width, pause, count); !st.OK() {
					return checkStatus(out, "generatePulsesAsync", st)
				}
				fmt.Fprintln(out, green("channel %d: %d pulses started on pin %d", channel, count, pin))
				if detach {
					return nil
				}
				return follow(ctx, out, t, channel, interval)
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 2, "pulse width in ms")
	cmd.Flags().IntVar(&pause, "pause", 2, "pause between pulses in ms")
	cmd.Flags().DurationVar(&interval, "interval", 120*time.Millisecond, "poll interval")
	cmd.Flags().BoolVar(&detach, "detach", false, "return right after starting")
	return cmd
}

// follow polls channel until it finishes. A canceled ctx stops the train.
func follow(ctx context.Context, out io.Writer, t *tracker.Tracker, channel int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent, total := 0, 0
	interrupted := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, st := t.Stop(stopCtx, channel)
		fmt.Fprintln(out)
		fmt.Fprintln(out, yellow("interrupted: channel %d stopped after about %d of %d pulses", channel, sent, total))
		if err := checkStatus(out, "stopPulse", st); err != nil {
			return err
		}
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return interrupted()
		case <-ticker.C:
			update, st := t.Poll(ctx, channel)
			if !st.OK() {
				if ctx.Err() != nil {
					return interrupted()
				}
				fmt.Fprintln(out)
				return checkStatus(out, "poll", st)
			}
			total = update.Channel.TotalUnits
			sent = total - update.Channel.RemainingUnits
			renderProgress(out, update)
			if update.Finished {
				fmt.Fprintln(out)
				fmt.Fprintln(out, green("channel %d: done", channel))
				return nil
			}
		}
	}
}

func renderProgress(out io.Writer, u tracker.Update) {
	const barWidth = 30
	filled := int(u.Progress * barWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	fmt.Fprintf(out, "\r[%s] %3.0f%% %d/%d", bar, u.Progress*100,
		u.Channel.TotalUnits-u.Channel.RemainingUnits, u.Channel.TotalUnits)
}

func newPulseStopCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <channel>",
		Short: "stop a running pulse train",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseInts(args[0])
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := checkStatus(cmd.OutOrStdout(), "stopPulse", s.client.StopPulse(ctx, n[0])); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), green("channel %d stopped", n[0]))
				return nil
			})
		},
	}
}

func newPulseStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <channel>",
		Short: "show whether a channel is pulsing and how many pulses remain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseInts(args[0])
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				out := cmd.OutOrStdout()
				remaining, st := s.client.GetRemainingPulses(ctx, n[0])
				if err := checkStatus(out, "getRemainingPulses", st); err != nil {
					return err
				}
				pulsing, st := s.client.IsPulsing(ctx, n[0])
				if err := checkStatus(out, "isPulsing", st); err != nil {
					return err
				}

				state := yellow("idle")
				if pulsing {
					state = green("pulsing")
				}
				fmt.Fprintf(out, "channel %d: %s, %d remaining\n", n[0], state, remaining)
				return nil
			})
		},
	}
}
