package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"device-rpc/internal/rpc"
)

func parsePinMode(s string) (rpc.PinModeValue, error) {
	switch strings.ToLower(s) {
	case "input", "in":
		return rpc.Input, nil
	case "output", "out":
		return rpc.Output, nil
	case "input_pullup", "pullup":
		return rpc.InputPullup, nil
	default:
		return 0, fmt.Errorf("unknown pin mode %q (want input, output or input_pullup)", s)
	}
}

func parseInts(args ...string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", a)
		}
		out[i] = v
	}
	return out, nil
}

func newPinCommand(opts *options) *cobra.Command {
	pin := &cobra.Command{
		Use:   "pin",
		Short: "digital GPIO access",
	}

	pin.AddCommand(&cobra.Command{
		Use:   "mode <pin> <input|output|input_pullup>",
		Short: "configure a pin direction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseInts(args[0])
			if err != nil {
				return err
			}
			mode, err := parsePinMode(args[1])
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := checkStatus(cmd.OutOrStdout(), "pinMode", s.client.PinMode(ctx, n[0], mode)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), green("pin %d set to %s", n[0], args[1]))
				return nil
			})
		},
	})

	pin.AddCommand(&cobra.Command{
		Use:   "read <pin>",
		Short: "read a digital level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseInts(args[0])
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				value, st := s.client.DigitalRead(ctx, n[0])
				if err := checkStatus(cmd.OutOrStdout(), "digitalRead", st); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pin %d: %d\n", n[0], value)
				return nil
			})
		},
	})

	pin.AddCommand(&cobra.Command{
		Use:   "write <pin> <0|1>",
		Short: "drive a digital level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseInts(args...)
			if err != nil {
				return err
			}
			if n[1] != 0 && n[1] != 1 {
				return fmt.Errorf("value must be 0 or 1, got %d", n[1])
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := checkStatus(cmd.OutOrStdout(), "digitalWrite", s.client.DigitalWrite(ctx, n[0], n[1])); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), green("pin %d = %d", n[0], n[1]))
				return nil
			})
		},
	})

	return pin
}

func newAnalogCommand(opts *options) *cobra.Command {
	analog := &cobra.Command{
		Use:   "analog",
		Short: "ADC access",
	}

	analog.AddCommand(&cobra.Command{
		Use:   "read <pin>",
		Short: "read a raw ADC value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseInts(args[0])
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				value, st := s.client.AnalogRead(ctx, n[0])
				if err := checkStatus(cmd.OutOrStdout(), "analogRead", st); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pin %d: %d\n", n[0], value)
				return nil
			})
		},
	})

	return analog
}
