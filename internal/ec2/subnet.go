package ec2

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
)

var (
	ErrSubnetGet    = fmt.Errorf("failed to fetch subnets")
	ErrSubnetCreate = fmt.Errorf("failed to create subnet")
	ErrNilSubnetID  = fmt.Errorf("received no error in subnet create, but the subnet ID returned was nil")
	ErrSubnetWait   = fmt.Errorf("failed waiting for subnet to become available")
	ErrSubnetDelete = fmt.Errorf("failed to delete subnet")
)

// SubnetByCIDR returns the subnet of the VPC with exactly this CIDR, or nil.
func SubnetByCIDR(ctx context.Context, client API, vpcID, cidr string) (*types.Subnet, error) {
	result, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{
			vpcFilter(vpcID),
			{Name: aws.String("cidr-block"), Values: []string{cidr}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubnetGet, err)
	}
	for _, s := range result.Subnets {
		if aws.ToString(s.CidrBlock) == cidr {
			return &s, nil
		}
	}
	return nil, nil
}

// SubnetsForReservation lists the subnets of the VPC tagged with the
// reservation id.
func SubnetsForReservation(ctx context.Context, client API, vpcID, reservationID string) ([]types.Subnet, error) {
	result, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{
			vpcFilter(vpcID),
			tagFilter(TagKeyReservationID, reservationID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubnetGet, err)
	}

	out := make([]types.Subnet, 0, len(result.Subnets))
	for _, s := range result.Subnets {
		if TagsFromEC2(s.Tags).ReservationID() == reservationID {
			out = append(out, s)
		}
	}
	return out, nil
}

// CreateSubnet issues CreateSubnet and returns without waiting for the
// subnet to become available.
func CreateSubnet(ctx context.Context, client API, vpcID, cidr, availabilityZone string) (types.Subnet, error) {
	log := clog.FromContext(ctx).With("vpc_id", vpcID, "cidr", cidr, "availability_zone", availabilityZone)
	log.Debug("creating subnet")

	input := &ec2.CreateSubnetInput{
		VpcId:     aws.String(vpcID),
		CidrBlock: aws.String(cidr),
	}
	if availabilityZone != "" {
		input.AvailabilityZone = aws.String(availabilityZone)
	}

	result, err := client.CreateSubnet(ctx, input)
	if err != nil {
		return types.Subnet{}, fmt.Errorf("%w: %w", ErrSubnetCreate, err)
	}
	if result.Subnet == nil || result.Subnet.SubnetId == nil {
		return types.Subnet{}, fmt.Errorf("%w: %w", ErrSubnetCreate, ErrNilSubnetID)
	}
	log.Debug("created subnet", "subnet_id", aws.ToString(result.Subnet.SubnetId))
	return *result.Subnet, nil
}

// WaitSubnetAvailable blocks until the subnet reports the available state or
// the timeout passes.
func WaitSubnetAvailable(ctx context.Context, client API, subnetID string, timeout time.Duration, optFns ...func(*ec2.SubnetAvailableWaiterOptions)) error {
	clog.FromContext(ctx).Debug("waiting for subnet", "subnet_id", subnetID, "timeout", timeout)

	waiter := ec2.NewSubnetAvailableWaiter(client, optFns...)
	if err := waiter.Wait(ctx, &ec2.DescribeSubnetsInput{
		SubnetIds: []string{subnetID},
	}, timeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubnetWait, subnetID, err)
	}
	return nil
}

func DeleteSubnet(ctx context.Context, client API, subnetID string) error {
	_, err := client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{
		SubnetId: aws.String(subnetID),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubnetDelete, subnetID, err)
	}
	return nil
}
