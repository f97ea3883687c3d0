package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/cloudshell-cp/aws/internal/models"
)

var (
	ErrNetIFNoSubnet            = fmt.Errorf("no subnet for network interface")
	ErrNetIFNoReservationSubnet = fmt.Errorf("no reservation subnet for network interface")
)

// NetworkInterfaceOptions describe the primary interface of an instance
// deployed into a single-subnet VPC.
type NetworkInterfaceOptions struct {
	VPCID            string
	ReservationID    string
	Mode             models.VPCMode
	SecurityGroupIDs []string
	PublicIP         bool
	PrivateIP        string // optional
}

// NetworkInterfaceForSubnet builds the device 0 interface specification.
// In Shared mode the interface goes into the reservation's subnet, in every
// other mode into the first subnet of the VPC.
func NetworkInterfaceForSubnet(ctx context.Context, client API, opts NetworkInterfaceOptions) (types.InstanceNetworkInterfaceSpecification, error) {
	var (
		subnetID string
		err      error
	)
	if opts.Mode == models.VPCModeShared {
		subnetID, err = reservationSubnetID(ctx, client, opts.VPCID, opts.ReservationID)
	} else {
		subnetID, err = firstSubnetID(ctx, client, opts.VPCID)
	}
	if err != nil {
		return types.InstanceNetworkInterfaceSpecification{}, err
	}
	clog.FromContext(ctx).Debug("using subnet for network interface", "subnet_id", subnetID, "vpc_mode", string(opts.Mode))

	spec := types.InstanceNetworkInterfaceSpecification{
		SubnetId:    aws.String(subnetID),
		DeviceIndex: aws.Int32(0),
		Groups:      opts.SecurityGroupIDs,
	}
	if opts.PublicIP {
		spec.AssociatePublicIpAddress = aws.Bool(true)
	}
	if opts.PrivateIP != "" {
		spec.PrivateIpAddress = aws.String(opts.PrivateIP)
	}
	return spec, nil
}

func reservationSubnetID(ctx context.Context, client API, vpcID, reservationID string) (string, error) {
	subnets, err := SubnetsForReservation(ctx, client, vpcID, reservationID)
	if err != nil {
		return "", err
	}
	if len(subnets) == 0 {
		return "", fmt.Errorf("%w: reservation %s in %s", ErrNetIFNoReservationSubnet, reservationID, vpcID)
	}
	return aws.ToString(subnets[0].SubnetId), nil
}

func firstSubnetID(ctx context.Context, client API, vpcID string) (string, error) {
	result, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{vpcFilter(vpcID)},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubnetGet, err)
	}
	if len(result.Subnets) == 0 {
		return "", errorf(ErrNetIFNoSubnet, "The given VPC(%s) has no subnet", vpcID)
	}
	return aws.ToString(result.Subnets[0].SubnetId), nil
}
