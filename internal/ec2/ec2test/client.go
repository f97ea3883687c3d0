// Package ec2test provides an in-memory EC2 client for tests.
package ec2test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// API operation names recorded in Client.Operations.
const (
	OpDescribeVpcs                  = "DescribeVpcs"
	OpDescribeAvailabilityZones     = "DescribeAvailabilityZones"
	OpDescribeSubnets               = "DescribeSubnets"
	OpCreateSubnet                  = "CreateSubnet"
	OpDeleteSubnet                  = "DeleteSubnet"
	OpCreateTags                    = "CreateTags"
	OpDescribeRouteTables           = "DescribeRouteTables"
	OpCreateRouteTable              = "CreateRouteTable"
	OpDeleteRouteTable              = "DeleteRouteTable"
	OpAssociateRouteTable           = "AssociateRouteTable"
	OpCreateRoute                   = "CreateRoute"
	OpReplaceRoute                  = "ReplaceRoute"
	OpDeleteRoute                   = "DeleteRoute"
	OpDescribeSecurityGroups        = "DescribeSecurityGroups"
	OpCreateSecurityGroup           = "CreateSecurityGroup"
	OpDeleteSecurityGroup           = "DeleteSecurityGroup"
	OpAuthorizeSecurityGroupIngress = "AuthorizeSecurityGroupIngress"
	OpDescribeTransitGateways       = "DescribeTransitGateways"
)

// Client keeps VPC resources in memory and applies the subset of EC2
// filters the ec2 package uses. The *Func fields replace the default
// behaviour of a single call.
type Client struct {
	mu sync.Mutex

	VPCs              []types.Vpc
	Subnets           []types.Subnet
	RouteTables       []types.RouteTable
	SecurityGroups    []types.SecurityGroup
	AvailabilityZones []types.AvailabilityZone
	TransitGateways   []types.TransitGateway

	// Associations maps subnet ids to route table ids.
	Associations map[string]string
	// Ingress maps security group ids to authorized permissions.
	Ingress map[string][]types.IpPermission

	CreateSubnetFunc        func(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error)
	CreateTagsFunc          func(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteRouteFunc         func(ctx context.Context, params *ec2.DeleteRouteInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error)
	DescribeSubnetsFunc     func(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	AssociateRouteTableFunc func(ctx context.Context, params *ec2.AssociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error)
	DeleteSubnetFunc        func(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error)

	// Operations records every call in order.
	Operations []string

	nextID int
}

func (c *Client) record(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Operations = append(c.Operations, op)
}

// Ops returns a copy of the recorded operations.
func (c *Client) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.Operations)
}

// Count returns how often op was called.
func (c *Client) Count(op string) int {
	n := 0
	for _, o := range c.Ops() {
		if o == op {
			n++
		}
	}
	return n
}

func (c *Client) id(prefix string) string {
	c.nextID++
	return fmt.Sprintf("%s-%08d", prefix, c.nextID)
}

// Tag builds an EC2 tag.
func Tag(key, value string) types.Tag {
	return types.Tag{Key: aws.String(key), Value: aws.String(value)}
}

func tagValue(tags []types.Tag, key string) (string, bool) {
	v, ok := "", false
	for _, t := range tags {
		if aws.ToString(t.Key) == key {
			v, ok = aws.ToString(t.Value), true
		}
	}
	return v, ok
}

func setTags(tags []types.Tag, add []types.Tag) []types.Tag {
	out := slices.Clone(tags)
	for _, a := range add {
		i := slices.IndexFunc(out, func(t types.Tag) bool { return aws.ToString(t.Key) == aws.ToString(a.Key) })
		if i >= 0 {
			out[i] = a
		} else {
			out = append(out, a)
		}
	}
	return out
}

// matchFilters applies EC2 filter semantics: every filter must match, any
// value of a filter may match.
func matchFilters(filters []types.Filter, field func(name string) []string) bool {
	for _, f := range filters {
		have := field(aws.ToString(f.Name))
		if !slices.ContainsFunc(f.Values, func(v string) bool { return slices.Contains(have, v) }) {
			return false
		}
	}
	return true
}

func tagField(tags []types.Tag, name string) []string {
	key, ok := strings.CutPrefix(name, "tag:")
	if !ok {
		return nil
	}
	if v, ok := tagValue(tags, key); ok {
		return []string{v}
	}
	return nil
}

func tagSpecTags(specs []types.TagSpecification) []types.Tag {
	var out []types.Tag
	for _, s := range specs {
		out = append(out, s.Tags...)
	}
	return out
}

func (c *Client) DescribeVpcs(_ context.Context, params *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	c.record(OpDescribeVpcs)
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &ec2.DescribeVpcsOutput{}
	for _, v := range c.VPCs {
		if len(params.VpcIds) > 0 && !slices.Contains(params.VpcIds, aws.ToString(v.VpcId)) {
			continue
		}
		if !matchFilters(params.Filters, func(name string) []string {
			if name == "vpc-id" {
				return []string{aws.ToString(v.VpcId)}
			}
			return tagField(v.Tags, name)
		}) {
			continue
		}
		out.Vpcs = append(out.Vpcs, v)
	}
	return out, nil
}

func (c *Client) DescribeAvailabilityZones(_ context.Context, params *ec2.DescribeAvailabilityZonesInput, _ ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error) {
	c.record(OpDescribeAvailabilityZones)
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &ec2.DescribeAvailabilityZonesOutput{}
	for _, z := range c.AvailabilityZones {
		if !matchFilters(params.Filters, func(name string) []string {
			if name == "state" {
				return []string{string(z.State)}
			}
			return nil
		}) {
			continue
		}
		out.AvailabilityZones = append(out.AvailabilityZones, z)
	}
	return out, nil
}

func (c *Client) DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	c.record(OpDescribeSubnets)
	if c.DescribeSubnetsFunc != nil {
		return c.DescribeSubnetsFunc(ctx, params, optFns...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &ec2.DescribeSubnetsOutput{}
	for _, s := range c.Subnets {
		if len(params.SubnetIds) > 0 && !slices.Contains(params.SubnetIds, aws.ToString(s.SubnetId)) {
			continue
		}
		if !matchFilters(params.Filters, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(s.VpcId)}
			case "cidr-block":
				return []string{aws.ToString(s.CidrBlock)}
			}
			return tagField(s.Tags, name)
		}) {
			continue
		}
		out.Subnets = append(out.Subnets, s)
	}
	return out, nil
}

func (c *Client) CreateSubnet(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error) {
	c.record(OpCreateSubnet)
	if c.CreateSubnetFunc != nil {
		return c.CreateSubnetFunc(ctx, params, optFns...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := types.Subnet{
		SubnetId:         aws.String(c.id("subnet")),
		VpcId:            params.VpcId,
		CidrBlock:        params.CidrBlock,
		AvailabilityZone: params.AvailabilityZone,
		State:            types.SubnetStateAvailable,
		Tags:             tagSpecTags(params.TagSpecifications),
	}
	c.Subnets = append(c.Subnets, s)
	return &ec2.CreateSubnetOutput{Subnet: &s}, nil
}

func (c *Client) DeleteSubnet(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	c.record(OpDeleteSubnet)
	if c.DeleteSubnetFunc != nil {
		return c.DeleteSubnetFunc(ctx, params, optFns...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Subnets = slices.DeleteFunc(c.Subnets, func(s types.Subnet) bool {
		return aws.ToString(s.SubnetId) == aws.ToString(params.SubnetId)
	})
	return &ec2.DeleteSubnetOutput{}, nil
}

func (c *Client) CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	c.record(OpCreateTags)
	if c.CreateTagsFunc != nil {
		return c.CreateTagsFunc(ctx, params, optFns...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range params.Resources {
		for i := range c.Subnets {
			if aws.ToString(c.Subnets[i].SubnetId) == id {
				c.Subnets[i].Tags = setTags(c.Subnets[i].Tags, params.Tags)
			}
		}
		for i := range c.VPCs {
			if aws.ToString(c.VPCs[i].VpcId) == id {
				c.VPCs[i].Tags = setTags(c.VPCs[i].Tags, params.Tags)
			}
		}
		for i := range c.RouteTables {
			if aws.ToString(c.RouteTables[i].RouteTableId) == id {
				c.RouteTables[i].Tags = setTags(c.RouteTables[i].Tags, params.Tags)
			}
		}
		for i := range c.SecurityGroups {
			if aws.ToString(c.SecurityGroups[i].GroupId) == id {
				c.SecurityGroups[i].Tags = setTags(c.SecurityGroups[i].Tags, params.Tags)
			}
		}
	}
	return &ec2.CreateTagsOutput{}, nil
}

func (c *Client) DescribeRouteTables(_ context.Context, params *ec2.DescribeRouteTablesInput, _ ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	c.record(OpDescribeRouteTables)
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &ec2.DescribeRouteTablesOutput{}
	for _, rt := range c.RouteTables {
		if !matchFilters(params.Filters, func(name string) []string {
			if name == "vpc-id" {
				return []string{aws.ToString(rt.VpcId)}
			}
			return tagField(rt.Tags, name)
		}) {
			continue
		}
		out.RouteTables = append(out.RouteTables, rt)
	}
	return out, nil
}

func (c *Client) CreateRouteTable(_ context.Context, params *ec2.CreateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error) {
	c.record(OpCreateRouteTable)
	c.mu.Lock()
	defer c.mu.Unlock()

	rt := types.RouteTable{
		RouteTableId: aws.String(c.id("rtb")),
		VpcId:        params.VpcId,
		Tags:         tagSpecTags(params.TagSpecifications),
	}
	c.RouteTables = append(c.RouteTables, rt)
	return &ec2.CreateRouteTableOutput{RouteTable: &rt}, nil
}

func (c *Client) DeleteRouteTable(_ context.Context, params *ec2.DeleteRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error) {
	c.record(OpDeleteRouteTable)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.RouteTables = slices.DeleteFunc(c.RouteTables, func(rt types.RouteTable) bool {
		return aws.ToString(rt.RouteTableId) == aws.ToString(params.RouteTableId)
	})
	return &ec2.DeleteRouteTableOutput{}, nil
}

func (c *Client) AssociateRouteTable(ctx context.Context, params *ec2.AssociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error) {
	c.record(OpAssociateRouteTable)
	if c.AssociateRouteTableFunc != nil {
		return c.AssociateRouteTableFunc(ctx, params, optFns...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Associations == nil {
		c.Associations = map[string]string{}
	}
	c.Associations[aws.ToString(params.SubnetId)] = aws.ToString(params.RouteTableId)
	return &ec2.AssociateRouteTableOutput{AssociationId: aws.String(c.id("rtbassoc"))}, nil
}

func (c *Client) routeTable(id *string) (*types.RouteTable, error) {
	for i := range c.RouteTables {
		if aws.ToString(c.RouteTables[i].RouteTableId) == aws.ToString(id) {
			return &c.RouteTables[i], nil
		}
	}
	return nil, fmt.Errorf("InvalidRouteTableID.NotFound: %s", aws.ToString(id))
}

func (c *Client) CreateRoute(_ context.Context, params *ec2.CreateRouteInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	c.record(OpCreateRoute)
	c.mu.Lock()
	defer c.mu.Unlock()

	rt, err := c.routeTable(params.RouteTableId)
	if err != nil {
		return nil, err
	}
	rt.Routes = append(rt.Routes, types.Route{
		DestinationCidrBlock:   params.DestinationCidrBlock,
		GatewayId:              params.GatewayId,
		TransitGatewayId:       params.TransitGatewayId,
		VpcPeeringConnectionId: params.VpcPeeringConnectionId,
		State:                  types.RouteStateActive,
	})
	return &ec2.CreateRouteOutput{Return: aws.Bool(true)}, nil
}

func (c *Client) ReplaceRoute(_ context.Context, params *ec2.ReplaceRouteInput, _ ...func(*ec2.Options)) (*ec2.ReplaceRouteOutput, error) {
	c.record(OpReplaceRoute)
	c.mu.Lock()
	defer c.mu.Unlock()

	rt, err := c.routeTable(params.RouteTableId)
	if err != nil {
		return nil, err
	}
	for i := range rt.Routes {
		if aws.ToString(rt.Routes[i].DestinationCidrBlock) == aws.ToString(params.DestinationCidrBlock) {
			rt.Routes[i].VpcPeeringConnectionId = params.VpcPeeringConnectionId
			rt.Routes[i].State = types.RouteStateActive
			return &ec2.ReplaceRouteOutput{}, nil
		}
	}
	return nil, fmt.Errorf("InvalidRoute.NotFound: no route to %s", aws.ToString(params.DestinationCidrBlock))
}

func (c *Client) DeleteRoute(ctx context.Context, params *ec2.DeleteRouteInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error) {
	c.record(OpDeleteRoute)
	if c.DeleteRouteFunc != nil {
		return c.DeleteRouteFunc(ctx, params, optFns...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rt, err := c.routeTable(params.RouteTableId)
	if err != nil {
		return nil, err
	}
	n := len(rt.Routes)
	rt.Routes = slices.DeleteFunc(rt.Routes, func(r types.Route) bool {
		return aws.ToString(r.DestinationCidrBlock) == aws.ToString(params.DestinationCidrBlock)
	})
	if len(rt.Routes) == n {
		return nil, fmt.Errorf("InvalidRoute.NotFound: no route to %s", aws.ToString(params.DestinationCidrBlock))
	}
	return &ec2.DeleteRouteOutput{}, nil
}

func (c *Client) DescribeSecurityGroups(_ context.Context, params *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	c.record(OpDescribeSecurityGroups)
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &ec2.DescribeSecurityGroupsOutput{}
	for _, sg := range c.SecurityGroups {
		if len(params.GroupIds) > 0 && !slices.Contains(params.GroupIds, aws.ToString(sg.GroupId)) {
			continue
		}
		if !matchFilters(params.Filters, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(sg.VpcId)}
			case "group-name":
				return []string{aws.ToString(sg.GroupName)}
			}
			return tagField(sg.Tags, name)
		}) {
			continue
		}
		out.SecurityGroups = append(out.SecurityGroups, sg)
	}
	return out, nil
}

func (c *Client) CreateSecurityGroup(_ context.Context, params *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	c.record(OpCreateSecurityGroup)
	c.mu.Lock()
	defer c.mu.Unlock()

	sg := types.SecurityGroup{
		GroupId:     aws.String(c.id("sg")),
		GroupName:   params.GroupName,
		Description: params.Description,
		VpcId:       params.VpcId,
		Tags:        tagSpecTags(params.TagSpecifications),
	}
	c.SecurityGroups = append(c.SecurityGroups, sg)
	return &ec2.CreateSecurityGroupOutput{GroupId: sg.GroupId}, nil
}

func (c *Client) DeleteSecurityGroup(_ context.Context, params *ec2.DeleteSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	c.record(OpDeleteSecurityGroup)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.SecurityGroups = slices.DeleteFunc(c.SecurityGroups, func(sg types.SecurityGroup) bool {
		return aws.ToString(sg.GroupId) == aws.ToString(params.GroupId)
	})
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

func (c *Client) AuthorizeSecurityGroupIngress(_ context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	c.record(OpAuthorizeSecurityGroupIngress)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Ingress == nil {
		c.Ingress = map[string][]types.IpPermission{}
	}
	id := aws.ToString(params.GroupId)
	c.Ingress[id] = append(c.Ingress[id], params.IpPermissions...)
	return &ec2.AuthorizeSecurityGroupIngressOutput{Return: aws.Bool(true)}, nil
}

func (c *Client) DescribeTransitGateways(_ context.Context, params *ec2.DescribeTransitGatewaysInput, _ ...func(*ec2.Options)) (*ec2.DescribeTransitGatewaysOutput, error) {
	c.record(OpDescribeTransitGateways)
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &ec2.DescribeTransitGatewaysOutput{}
	for _, tgw := range c.TransitGateways {
		if len(params.TransitGatewayIds) > 0 && !slices.Contains(params.TransitGatewayIds, aws.ToString(tgw.TransitGatewayId)) {
			continue
		}
		out.TransitGateways = append(out.TransitGateways, tgw)
	}
	return out, nil
}

// SubnetByID returns a copy of a stored subnet.
func (c *Client) SubnetByID(id string) (types.Subnet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.Subnets {
		if aws.ToString(s.SubnetId) == id {
			return s, true
		}
	}
	return types.Subnet{}, false
}

// SubnetTag returns a tag value of a stored subnet.
func (c *Client) SubnetTag(id, key string) (string, bool) {
	s, ok := c.SubnetByID(id)
	if !ok {
		return "", false
	}
	return tagValue(s.Tags, key)
}
