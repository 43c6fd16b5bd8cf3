package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"device-rpc/internal/discovery"
	"device-rpc/internal/discovery/serial"
	"device-rpc/internal/discovery/tcp"
	"device-rpc/internal/rpc"
)

func newPortsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "list serial ports and reachable TCP devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			manager := discovery.NewManager(logger)
			manager.Register(serial.NewScanner(logger))
			if len(cfg.Discovery.TCPHosts) > 0 {
				manager.Register(tcp.NewScanner(tcp.Config{
					Hosts:       cfg.Discovery.TCPHosts,
					Port:        cfg.Discovery.TCPPort,
					ConnTimeout: cfg.Discovery.TCPTimeout,
					Parallel:    cfg.Discovery.TCPParallel,
				}, logger))
			}

			candidates := manager.ScanAll(cmd.Context())
			printCandidates(cmd, candidates)
			return nil
		},
	}
}

func printCandidates(cmd *cobra.Command, candidates []discovery.Candidate) {
	out := cmd.OutOrStdout()
	if len(candidates) == 0 {
		fmt.Fprintln(out, yellow("no ports found"))
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bold("ADDRESS\tTRANSPORT\tBRIDGE\tDESCRIPTION"))
	for _, c := range candidates {
		address := c.Address
		if c.Likely {
			address = green("%s", address)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", address, c.Transport, c.Bridge, c.Description)
	}
	tw.Flush()
}

// parseParams decodes the optional params argument of call. Numbers are
// kept as written.
func parseParams(args []string) (rpc.Params, error) {
	if len(args) == 0 || args[0] == "" {
		return rpc.Params{}, nil
	}
	dec := json.NewDecoder(bytes.NewBufferString(args[0]))
	dec.UseNumber()

	var params rpc.Params
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	if params == nil {
		params = rpc.Params{}
	}
	return params, nil
}

func newCallCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "call <method> [params-json]",
		Short:   "send one raw call and print the reply",
		Example: `  rpcctl call digitalWrite '{"pin":2,"value":1}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			if _, known := rpc.Lookup(args[0]); !known {
				fmt.Fprintln(cmd.ErrOrStderr(), yellow("warning: %s is not in the method catalog", args[0]))
			}

			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				resp := s.client.CallRaw(ctx, args[0], params)
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"result":  resp.Code,
					"message": resp.Message,
					"data":    resp.Data,
				}); err != nil {
					return err
				}
				return resp.Status().Err()
			})
		},
	}
}

func newInfoCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "print uptime, free heap and chip id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				out := cmd.OutOrStdout()

				millis, st := s.client.GetMillis(ctx)
				if err := checkStatus(out, "millis", st); err != nil {
					return err
				}
				heap, st := s.client.GetFreeMem(ctx)
				if err := checkStatus(out, "freeMem", st); err != nil {
					return err
				}
				chip, st := s.client.GetChipID(ctx)
				if err := checkStatus(out, "chipID", st); err != nil {
					return err
				}

				fmt.Fprintf(out, "%s %d ms\n", bold("uptime:   "), millis)
				fmt.Fprintf(out, "%s %d bytes\n", bold("free heap:"), heap)
				fmt.Fprintf(out, "%s %012X\n", bold("chip id:  "), chip)
				return nil
			})
		},
	}
}

func newMethodsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "list the firmware method catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METHOD\tPARAMS\tRETURNS\tBLOCKING")
			for _, m := range rpc.Catalog() {
				blocking := ""
				if m.Blocking {
					blocking = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, strings.Join(m.Params, ", "), m.Returns, blocking)
			}
			return tw.Flush()
		},
	}
}
