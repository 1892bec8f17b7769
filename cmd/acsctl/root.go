package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	acsgrpc "github.com/mvaleed/acs/internal/transport/grpc"
)

// Exit codes per spec §6.
const (
	exitSuccess         = 0
	exitOther           = 1
	exitInvalidArgument = 2
	exitNotFound        = 3
	exitConflict        = 4
	exitUnavailable     = 5
)

// exitCodeFromError maps a gRPC status error from the command surface
// onto spec §6's exit codes. ok is false for errors that carry no gRPC
// status (e.g. dial failures) — those fall through to exitOther in the
// caller. DeadlineExceeded and Canceled statuses, including a client-side
// deadline, map to exitUnavailable.
func exitCodeFromError(err error) (int, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return exitOther, false
	}
	switch st.Code() {
	case codes.OK:
		return exitSuccess, true
	case codes.InvalidArgument:
		return exitInvalidArgument, true
	case codes.NotFound:
		return exitNotFound, true
	case codes.AlreadyExists:
		return exitConflict, true
	case codes.Unavailable:
		return exitUnavailable, true
	case codes.DeadlineExceeded, codes.Canceled:
		return exitUnavailable, true
	default:
		return exitOther, true
	}
}

// cliOptions carries the root command's persistent flags.
type cliOptions struct {
	addr    string
	timeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "acsctl",
		Short:         "Command-line client for the access-control service's command surface",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "localhost:9090", "acs gRPC server address")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-command deadline")

	root.AddCommand(
		newCreateUserCommand(opts),
		newCreateGroupCommand(opts),
		newCreateRoleCommand(opts),
		newGetCommand(opts),
		newUpdateUserCommand(opts),
		newUpdateGroupCommand(opts),
		newUpdateRoleCommand(opts),
		newDeleteCommand(opts),
		newEdgeCommands(opts)...,
	)
	root.AddCommand(
		newAddPermissionCommand(opts),
		newRemovePermissionCommand(opts),
		newCheckCommand(opts),
		newHealthCommand(opts),
	)

	return root
}

// dial opens an insecure gRPC connection to opts.addr. The CLI is a
// trusted-network operator tool (spec §1 treats transport auth as an
// external collaborator), so it does not negotiate TLS itself; operators
// pointing it at a public endpoint terminate TLS in front of it.
func dial(opts *cliOptions) (*grpc.ClientConn, *acsgrpc.CommandServiceClient, error) {
	conn, err := grpc.NewClient(opts.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return conn, acsgrpc.NewCommandServiceClient(conn), nil
}

func withTimeout(opts *cliOptions) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opts.timeout)
}
