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
	ErrSecurityGroupGet               = fmt.Errorf("failed to fetch security groups")
	ErrSecurityGroupCreate            = fmt.Errorf("failed to create security group")
	ErrSecurityGroupDelete            = fmt.Errorf("failed to delete security group")
	ErrSecurityGroupInboundRuleCreate = fmt.Errorf("failed to add security group rule")
)

func SubnetSecurityGroupName(subnetID string) string {
	return "Cloudshell Subnet SG " + subnetID
}

// SecurityGroupByName returns the id of the named security group in the VPC,
// or "" when there is none.
func SecurityGroupByName(ctx context.Context, client API, vpcID, name string) (string, error) {
	result, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{
			vpcFilter(vpcID),
			{Name: aws.String("group-name"), Values: []string{name}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecurityGroupGet, err)
	}
	for _, sg := range result.SecurityGroups {
		if aws.ToString(sg.GroupName) == name {
			return aws.ToString(sg.GroupId), nil
		}
	}
	return "", nil
}

func CreateSecurityGroup(ctx context.Context, client API, vpcID, name, description string, tags Tags) (string, error) {
	clog.FromContext(ctx).Debug("creating security group", "vpc_id", vpcID, "name", name)
	result, err := client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		VpcId:             aws.String(vpcID),
		GroupName:         aws.String(name),
		Description:       aws.String(description),
		TagSpecifications: tags.Specification(types.ResourceTypeSecurityGroup),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecurityGroupCreate, err)
	}
	if result.GroupId == nil {
		return "", fmt.Errorf("%w: no group id returned", ErrSecurityGroupCreate)
	}
	return *result.GroupId, nil
}

// AllowTrafficFromSelf lets every member of the group reach every other
// member on any protocol and port.
func AllowTrafficFromSelf(ctx context.Context, client API, sgID string) error {
	_, err := client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(sgID),
		IpPermissions: []types.IpPermission{{
			IpProtocol:       aws.String("-1"),
			UserIdGroupPairs: []types.UserIdGroupPair{{GroupId: aws.String(sgID)}},
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSecurityGroupInboundRuleCreate, err)
	}
	return nil
}

func DeleteSecurityGroup(ctx context.Context, client API, sgID string) error {
	_, err := client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: aws.String(sgID),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSecurityGroupDelete, sgID, err)
	}
	return nil
}
