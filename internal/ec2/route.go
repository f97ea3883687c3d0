package ec2

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

const errCodeRouteNotFound = "InvalidRoute.NotFound"

var ErrRouteDelete = fmt.Errorf("failed to delete route")

// Route is a single entry of a route table.
type Route struct {
	tableID string
	route   types.Route
}

func (r Route) Destination() string {
	switch {
	case r.route.DestinationCidrBlock != nil:
		return aws.ToString(r.route.DestinationCidrBlock)
	case r.route.DestinationIpv6CidrBlock != nil:
		return aws.ToString(r.route.DestinationIpv6CidrBlock)
	default:
		return aws.ToString(r.route.DestinationPrefixListId)
	}
}

func (r Route) State() types.RouteState { return r.route.State }
func (r Route) IsBlackhole() bool        { return r.route.State == types.RouteStateBlackhole }
func (r Route) Raw() types.Route         { return r.route }

// Delete removes the route. A route that is already gone is not an error.
func (r Route) Delete(ctx context.Context, client API) error {
	input := &ec2.DeleteRouteInput{RouteTableId: aws.String(r.tableID)}
	switch {
	case r.route.DestinationCidrBlock != nil:
		input.DestinationCidrBlock = r.route.DestinationCidrBlock
	case r.route.DestinationIpv6CidrBlock != nil:
		input.DestinationIpv6CidrBlock = r.route.DestinationIpv6CidrBlock
	default:
		input.DestinationPrefixListId = r.route.DestinationPrefixListId
	}

	if _, err := client.DeleteRoute(ctx, input); err != nil {
		if isRouteNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %s in %s: %w", ErrRouteDelete, r.Destination(), r.tableID, err)
	}
	return nil
}

// DeleteIfBlackhole deletes the route when its target is gone and reports
// whether it was a blackhole.
func (r Route) DeleteIfBlackhole(ctx context.Context, client API) (bool, error) {
	if !r.IsBlackhole() {
		return false, nil
	}
	return true, r.Delete(ctx, client)
}

func isRouteNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == errCodeRouteNotFound {
		return true
	}
	return strings.Contains(err.Error(), errCodeRouteNotFound)
}
