package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudshell-cp/aws/internal/log"
	"github.com/cloudshell-cp/aws/internal/models"
	"github.com/cloudshell-cp/aws/internal/prepare"
)

// PrepareSubnets returns the prepare-subnets command.
func PrepareSubnets(opts *rootOptions) *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "prepare-subnets",
		Short: "Create or claim the subnets of a reservation",
		Long: `Prepare-subnets reads a CloudShell driver request and creates or claims
one subnet per prepareSubnet action in the reservation VPC.

The VPC is chosen by the configured VPC mode:
  - Dynamic, Static: the VPC tagged with the reservation id
  - Shared: the configured shared VPC
  - Single: the configured management VPC

The driver response with one result per action is written to stdout.

Example:
  cpaws prepare-subnets -c cpaws.yaml --reservation-id 1234 --request request.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if requestPath != "" && requestPath != "-" {
				f, err := os.Open(requestPath)
				if err != nil {
					return fmt.Errorf("opening request: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runPrepareSubnets(cmd, opts, in)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "Path to the driver request JSON, stdin when empty")

	return cmd
}

func runPrepareSubnets(cmd *cobra.Command, opts *rootOptions, in io.Reader) error {
	actions, err := models.DecodePrepareSubnetActions(in)
	if err != nil {
		return err
	}

	ctx, r, err := startRun(cmd, opts, "prepare-subnets")
	if err != nil {
		return err
	}
	defer r.finish(ctx)

	results, err := r.strategy().Prepare(ctx, prepare.Request{
		Reservation:  r.reservation,
		Model:        r.model,
		Actions:      actions,
		Cancellation: r.token,
	})
	if err != nil {
		log.Error(ctx, "prepare subnets failed", log.Err(err))
		return err
	}
	return models.EncodeResults(cmd.OutOrStdout(), results)
}
