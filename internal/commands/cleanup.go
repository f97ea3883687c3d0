package commands

import (
	"github.com/spf13/cobra"

	"github.com/cloudshell-cp/aws/internal/log"
	"github.com/cloudshell-cp/aws/internal/prepare"
)

// Cleanup returns the cleanup command.
func Cleanup(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove blackhole routes and reservation subnets",
		Long: `Cleanup deletes blackhole routes from every route table of the
reservation VPC. In Shared and Single mode it also deletes the subnets
tagged with the reservation id and their security groups.

Example:
  cpaws cleanup -c cpaws.yaml --reservation-id 1234`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, r, err := startRun(cmd, opts, "cleanup")
			if err != nil {
				return err
			}
			defer r.finish(ctx)

			err = r.strategy().Cleanup(ctx, prepare.CleanupRequest{
				Reservation:  r.reservation,
				Model:        r.model,
				Cancellation: r.token,
			})
			if err != nil {
				log.Error(ctx, "cleanup failed", log.Err(err))
			}
			return err
		},
	}
}
