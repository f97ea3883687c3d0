package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
)

var (
	ErrVPCGet             = fmt.Errorf("failed to fetch VPC")
	ErrVPCNotFound        = fmt.Errorf("VPC not found")
	ErrVPCMultiple        = fmt.Errorf("found more than one VPC")
	ErrAvailabilityZone   = fmt.Errorf("failed to pick availability zone")
	ErrNoAvailabilityZone = fmt.Errorf("no available availability zone")
)

func tagFilter(key string, values ...string) types.Filter {
	return types.Filter{Name: aws.String("tag:" + key), Values: values}
}

func vpcFilter(vpcID string) types.Filter {
	return types.Filter{Name: aws.String("vpc-id"), Values: []string{vpcID}}
}

// VPCForReservation returns the VPC tagged with the reservation id.
func VPCForReservation(ctx context.Context, client API, reservationID string) (types.Vpc, error) {
	log := clog.FromContext(ctx).With("reservation_id", reservationID)
	log.Debug("looking up reservation VPC")

	result, err := client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{tagFilter(TagKeyReservationID, reservationID)},
	})
	if err != nil {
		return types.Vpc{}, fmt.Errorf("%w: %w", ErrVPCGet, err)
	}
	switch len(result.Vpcs) {
	case 0:
		return types.Vpc{}, fmt.Errorf("%w: no VPC tagged with reservation %s", ErrVPCNotFound, reservationID)
	case 1:
		return result.Vpcs[0], nil
	default:
		return types.Vpc{}, fmt.Errorf("%w: %d VPCs tagged with reservation %s", ErrVPCMultiple, len(result.Vpcs), reservationID)
	}
}

func VPCByID(ctx context.Context, client API, vpcID string) (types.Vpc, error) {
	result, err := client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
	if err != nil {
		return types.Vpc{}, fmt.Errorf("%w: %w", ErrVPCGet, err)
	}
	if len(result.Vpcs) == 0 {
		return types.Vpc{}, fmt.Errorf("%w: %s", ErrVPCNotFound, vpcID)
	}
	return result.Vpcs[0], nil
}

// PickAvailabilityZone returns the zone new subnets of the VPC are placed
// in: the zone of an existing subnet, otherwise the first available zone of
// the region.
func PickAvailabilityZone(ctx context.Context, client API, vpcID string) (string, error) {
	subnets, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{vpcFilter(vpcID)},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAvailabilityZone, err)
	}
	for _, s := range subnets.Subnets {
		if az := aws.ToString(s.AvailabilityZone); az != "" {
			return az, nil
		}
	}

	zones, err := client.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []types.Filter{{Name: aws.String("state"), Values: []string{string(types.AvailabilityZoneStateAvailable)}}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAvailabilityZone, err)
	}
	for _, z := range zones.AvailabilityZones {
		if z.State == types.AvailabilityZoneStateAvailable && aws.ToString(z.ZoneName) != "" {
			return aws.ToString(z.ZoneName), nil
		}
	}
	return "", ErrNoAvailabilityZone
}
