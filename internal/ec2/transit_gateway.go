package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

var (
	ErrTransitGatewayGet      = fmt.Errorf("failed to fetch transit gateway")
	ErrTransitGatewayNotFound = fmt.Errorf("transit gateway not found")
)

// TransitGatewayCIDRBlocks returns the CIDR blocks configured on a transit
// gateway.
func TransitGatewayCIDRBlocks(ctx context.Context, client API, tgwID string) ([]string, error) {
	result, err := client.DescribeTransitGateways(ctx, &ec2.DescribeTransitGatewaysInput{
		TransitGatewayIds: []string{tgwID},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransitGatewayGet, err)
	}
	if len(result.TransitGateways) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTransitGatewayNotFound, tgwID)
	}
	opts := result.TransitGateways[0].Options
	if opts == nil {
		return nil, nil
	}
	return opts.TransitGatewayCidrBlocks, nil
}
