package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/pingproxy/internal/config"
	"github.com/hazz-dev/pingproxy/internal/probe"
	"github.com/hazz-dev/pingproxy/internal/routeros"
)

func pingCmd() *cobra.Command {
	var req routeros.Request
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Ping a target from a router once and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, envFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			client := routeros.New(cfg.Router, newLogger(cfg.Log, os.Stderr))
			return runPing(cmd.Context(), cmd.OutOrStdout(), client, req)
		},
	}
	cmd.Flags().StringVar(&req.Router, "router", "", "router address (required)")
	cmd.Flags().StringVar(&req.Target, "target", "", "address to ping (required)")
	cmd.Flags().StringVar(&req.PPPUser, "ppp-user", "", "PPPoE user to report connection info for")
	cmd.MarkFlagRequired("router")
	cmd.MarkFlagRequired("target")
	return cmd
}

func runPing(ctx context.Context, out io.Writer, p routeros.Prober, req routeros.Request) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var result probe.Result
	reply, err := p.Probe(ctx, req)
	var connErr *routeros.ConnectError
	switch {
	case errors.As(err, &connErr):
		result = probe.Failed(req.Target, err)
	case err != nil:
		return fmt.Errorf("probing %s from %s: %w", req.Target, req.Router, err)
	default:
		result = probe.Normalize(reply.Records, routeros.ProbeCount, req.Target)
		result.ConnectionInfo = reply.Connection
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSTATUS\tLOSS\tLATENCY\tMESSAGE")
	loss, latency := "—", "—"
	if result.PacketLossPercent != nil {
		loss = fmt.Sprintf("%.1f%%", *result.PacketLossPercent)
	}
	if result.LatencyMillis != nil {
		latency = fmt.Sprintf("%dms", *result.LatencyMillis)
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		result.TargetAddress,
		result.Status,
		loss,
		latency,
		result.Message,
	)
	w.Flush()

	if info := result.ConnectionInfo; info != nil {
		uptime := "—"
		if info.Uptime != nil {
			uptime = *info.Uptime
		}
		fmt.Fprintf(out, "\nPPPoE %s: running=%t uptime=%s link-downs=%d rx=%d tx=%d\n",
			req.PPPUser, info.Running, uptime, info.LinkDowns, info.RxBytes, info.TxBytes)
	}

	if result.Status != probe.StatusOnline {
		return fmt.Errorf("target %s is %s", req.Target, result.Status)
	}
	return nil
}
