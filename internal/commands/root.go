// Package commands defines the cpaws CLI.
//
// Every command loads the YAML config, sets up logging, tracing and metrics
// for the run, and then hands over to the prepare package. Results are
// written to stdout, logs go to stderr.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/cloudshell-cp/aws/internal/models"
)

// rootOptions are the persistent flags shared by all subcommands.
type rootOptions struct {
	configPath  string
	reservation models.Reservation
}

// Root returns the root command for the cpaws CLI.
func Root() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "cpaws",
		Short:         "Prepare CloudShell reservation subnets on AWS EC2",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&opts.reservation.ID, "reservation-id", "", "CloudShell reservation id")
	flags.StringVar(&opts.reservation.Owner, "owner", "", "Reservation owner")
	flags.StringVar(&opts.reservation.Blueprint, "blueprint", "", "Reservation blueprint")
	flags.StringVar(&opts.reservation.Domain, "domain", "", "Reservation domain")

	cmd.AddCommand(PrepareSubnets(opts))
	cmd.AddCommand(Cleanup(opts))
	cmd.AddCommand(Version())

	return cmd
}
