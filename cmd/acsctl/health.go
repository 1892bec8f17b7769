package main

import (
	"fmt"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newHealthCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query the server's overall health via the standard gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
			if err != nil {
				return err
			}
			fmt.Println(resp.Status)
			return nil
		},
	}
}
