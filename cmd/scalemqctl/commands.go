package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/oriys/scalemq/internal/controlapi"
)

func dial() (*grpc.ClientConn, error) {
	cc, err := grpc.NewClient(controlAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", controlAddr, err)
	}
	return cc, nil
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Print queue depth and capacity for every socket scalemqd is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := dial()
			if err != nil {
				return err
			}
			defer cc.Close()

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			client := controlapi.NewClient(cc)
			out, err := client.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			sockets := out.Fields["sockets"].GetStructValue()
			if sockets == nil || len(sockets.Fields) == 0 {
				fmt.Println("no sockets registered")
				return nil
			}

			ids := make([]string, 0, len(sockets.Fields))
			for id := range sockets.Fields {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SOCKET\tSEND LEN\tSEND CAP\tRECV LEN\tRECV CAP")
			for _, id := range ids {
				entry := sockets.Fields[id].GetStructValue()
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
					id,
					int(entry.Fields["send_len"].GetNumberValue()),
					int(entry.Fields["send_capacity"].GetNumberValue()),
					int(entry.Fields["recv_len"].GetNumberValue()),
					int(entry.Fields["recv_capacity"].GetNumberValue()),
				)
			}
			return w.Flush()
		},
	}
}

func tailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Stream SOCKET_ERROR and PIPE_REM events as they occur",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := dial()
			if err != nil {
				return err
			}
			defer cc.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			client := controlapi.NewClient(cc)
			stream, err := client.WatchEvents(ctx)
			if err != nil {
				return fmt.Errorf("watch events: %w", err)
			}

			for {
				msg, err := stream.Recv()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("watch events recv: %w", err)
				}
				fmt.Printf("%-12s socket=%s endpoint=%s pipe=%s\n",
					msg.Fields["event_type"].GetStringValue(),
					msg.Fields["socket_id"].GetStringValue(),
					msg.Fields["endpoint_id"].GetStringValue(),
					msg.Fields["pipe_id"].GetStringValue(),
				)
			}
		},
	}
}

func benchCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure control-plane round-trip latency by repeatedly calling Stats",
		Long:  "Bench drives load against the control API itself, not the messaging data path — sockets publish over their own wire transports, which scalemqctl doesn't join.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := dial()
			if err != nil {
				return err
			}
			defer cc.Close()

			client := controlapi.NewClient(cc)

			deadline := time.Now().Add(duration)
			var calls int
			var totalLatency time.Duration

			for time.Now().Before(deadline) {
				ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
				start := time.Now()
				_, err := client.Stats(ctx)
				elapsed := time.Since(start)
				cancel()
				if err != nil {
					return fmt.Errorf("stats call %d: %w", calls, err)
				}
				calls++
				totalLatency += elapsed
			}

			if calls == 0 {
				fmt.Println("no calls completed")
				return nil
			}
			avg := totalLatency / time.Duration(calls)
			fmt.Printf("calls=%d avg_latency=%s rate=%.1f/s\n", calls, avg, float64(calls)/duration.Seconds())
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to drive load")
	return cmd
}
