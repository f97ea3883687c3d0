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
	ErrRouteTableGetForVPC = fmt.Errorf("failed to fetch route tables for VPC")
	ErrRouteTableNotFound  = fmt.Errorf("route table not found")
	ErrRouteTableCreate    = fmt.Errorf("failed to create route table")
	ErrRouteTableDelete    = fmt.Errorf("failed to delete route table")
	ErrRouteTableAssociate = fmt.Errorf("failed to associate route table")
	ErrRouteCreate         = fmt.Errorf("failed to add route to route table")
	ErrRouteReplace        = fmt.Errorf("failed to replace route")
)

func PublicRouteTableName(reservationID string) string {
	return "Public RoutingTable Reservation: " + reservationID
}

func PrivateRouteTableName(reservationID string) string {
	return "Private RoutingTable Reservation: " + reservationID
}

// RouteTable wraps a VPC route table and the routes it held when it was
// fetched.
type RouteTable struct {
	client API
	rt     types.RouteTable
	tags   Tags
	routes []Route
}

func newRouteTable(client API, rt types.RouteTable) *RouteTable {
	t := &RouteTable{client: client, rt: rt, tags: TagsFromEC2(rt.Tags)}
	for _, r := range rt.Routes {
		t.routes = append(t.routes, Route{tableID: aws.ToString(rt.RouteTableId), route: r})
	}
	return t
}

func (t *RouteTable) ID() string      { return aws.ToString(t.rt.RouteTableId) }
func (t *RouteTable) VPCID() string   { return aws.ToString(t.rt.VpcId) }
func (t *RouteTable) Name() string    { return t.tags.Name() }
func (t *RouteTable) Tags() Tags      { return t.tags }
func (t *RouteTable) Routes() []Route { return t.routes }

// IsMain reports whether this is the VPC's main route table.
func (t *RouteTable) IsMain() bool {
	for _, a := range t.rt.Associations {
		if aws.ToBool(a.Main) {
			return true
		}
	}
	return false
}

// FindRoute returns the first route matching fn.
func (t *RouteTable) FindRoute(fn func(types.Route) bool) (Route, bool) {
	for _, r := range t.routes {
		if fn(r.route) {
			return r, true
		}
	}
	return Route{}, false
}

// DeleteBlackholeRoutes deletes every blackhole route of the table. Afterwards
// Routes holds only the routes that were kept. It reports whether anything
// was deleted.
func (t *RouteTable) DeleteBlackholeRoutes(ctx context.Context) (bool, error) {
	log := clog.FromContext(ctx).With("route_table_id", t.ID())

	var (
		deleted bool
		kept    []Route
	)
	for i, r := range t.routes {
		blackhole, err := r.DeleteIfBlackhole(ctx, t.client)
		if err != nil {
			t.routes = append(kept, t.routes[i:]...)
			return deleted, err
		}
		if blackhole {
			log.Info("deleted blackhole route", "destination", r.Destination())
			deleted = true
			continue
		}
		kept = append(kept, r)
	}
	t.routes = kept
	return deleted, nil
}

func (t *RouteTable) Associate(ctx context.Context, subnetID string) error {
	clog.FromContext(ctx).Debug("associating route table", "route_table_id", t.ID(), "subnet_id", subnetID)
	_, err := t.client.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: aws.String(t.ID()),
		SubnetId:     aws.String(subnetID),
	})
	if err != nil {
		return fmt.Errorf("%w: %s to %s: %w", ErrRouteTableAssociate, t.ID(), subnetID, err)
	}
	return nil
}

func (t *RouteTable) createRoute(ctx context.Context, input *ec2.CreateRouteInput) error {
	input.RouteTableId = aws.String(t.ID())
	clog.FromContext(ctx).Debug("creating route", "route_table_id", t.ID(), "destination", aws.ToString(input.DestinationCidrBlock))

	result, err := t.client.CreateRoute(ctx, input)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRouteCreate, err)
	}
	if result.Return != nil && !*result.Return {
		return ErrRouteCreate
	}
	return nil
}

func (t *RouteTable) AddRouteToPeeredVPC(ctx context.Context, peeringID, vpcCIDR string) error {
	return t.createRoute(ctx, &ec2.CreateRouteInput{
		DestinationCidrBlock:   aws.String(vpcCIDR),
		VpcPeeringConnectionId: aws.String(peeringID),
	})
}

func (t *RouteTable) AddRouteToInternetGateway(ctx context.Context, igwID string) error {
	return t.createRoute(ctx, &ec2.CreateRouteInput{
		DestinationCidrBlock: aws.String("0.0.0.0/0"),
		GatewayId:            aws.String(igwID),
	})
}

func (t *RouteTable) AddRouteToTransitGateway(ctx context.Context, tgwID, cidr string) error {
	return t.createRoute(ctx, &ec2.CreateRouteInput{
		DestinationCidrBlock: aws.String(cidr),
		TransitGatewayId:     aws.String(tgwID),
	})
}

// AddRouteToVPNGateway routes cidr to a virtual private gateway.
func (t *RouteTable) AddRouteToVPNGateway(ctx context.Context, vgwID, cidr string) error {
	return t.createRoute(ctx, &ec2.CreateRouteInput{
		DestinationCidrBlock: aws.String(cidr),
		GatewayId:            aws.String(vgwID),
	})
}

// ReplacePeeringRoute points the route for destCIDR at another peering
// connection.
func (t *RouteTable) ReplacePeeringRoute(ctx context.Context, destCIDR, peeringID string) error {
	_, err := t.client.ReplaceRoute(ctx, &ec2.ReplaceRouteInput{
		RouteTableId:           aws.String(t.ID()),
		DestinationCidrBlock:   aws.String(destCIDR),
		VpcPeeringConnectionId: aws.String(peeringID),
	})
	if err != nil {
		return fmt.Errorf("%w: %s in %s: %w", ErrRouteReplace, destCIDR, t.ID(), err)
	}
	return nil
}

func (t *RouteTable) Delete(ctx context.Context) error {
	_, err := t.client.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{
		RouteTableId: aws.String(t.ID()),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRouteTableDelete, t.ID(), err)
	}
	return nil
}

// RouteTables lists the route tables of a VPC.
func RouteTables(ctx context.Context, client API, vpcID string) ([]*RouteTable, error) {
	var (
		out   []*RouteTable
		token *string
	)
	for {
		result, err := client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
			Filters:   []types.Filter{vpcFilter(vpcID)},
			NextToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRouteTableGetForVPC, err)
		}
		for _, rt := range result.RouteTables {
			out = append(out, newRouteTable(client, rt))
		}
		if result.NextToken == nil {
			return out, nil
		}
		token = result.NextToken
	}
}

func RouteTableByName(ctx context.Context, client API, vpcID, name string) (*RouteTable, error) {
	tables, err := RouteTables(ctx, client, vpcID)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.Name() == name {
			return t, nil
		}
	}
	return nil, errorf(ErrRouteTableNotFound, "Route Table %s is not found.", name)
}

func PublicRouteTable(ctx context.Context, client API, vpcID, reservationID string) (*RouteTable, error) {
	return RouteTableByName(ctx, client, vpcID, PublicRouteTableName(reservationID))
}

func PrivateRouteTable(ctx context.Context, client API, vpcID, reservationID string) (*RouteTable, error) {
	return RouteTableByName(ctx, client, vpcID, PrivateRouteTableName(reservationID))
}

func MainRouteTable(ctx context.Context, client API, vpcID string) (*RouteTable, error) {
	tables, err := RouteTables(ctx, client, vpcID)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.IsMain() {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: no main route table in %s", ErrRouteTableNotFound, vpcID)
}

// CustomRouteTables returns every route table of the VPC except the main one.
func CustomRouteTables(ctx context.Context, client API, vpcID string) ([]*RouteTable, error) {
	tables, err := RouteTables(ctx, client, vpcID)
	if err != nil {
		return nil, err
	}
	var out []*RouteTable
	for _, t := range tables {
		if !t.IsMain() {
			out = append(out, t)
		}
	}
	return out, nil
}

// CreateRouteTable creates a route table in the VPC tagged with the
// reservation defaults and the given name.
func CreateRouteTable(ctx context.Context, client API, vpcID, name string, r models.Reservation) (*RouteTable, error) {
	clog.FromContext(ctx).Debug("creating route table", "vpc_id", vpcID, "name", name)
	result, err := client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             aws.String(vpcID),
		TagSpecifications: DefaultTags(name, r).Specification(types.ResourceTypeRouteTable),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRouteTableCreate, err)
	}
	if result.RouteTable == nil || result.RouteTable.RouteTableId == nil {
		return nil, fmt.Errorf("%w: no route table returned", ErrRouteTableCreate)
	}
	return newRouteTable(client, *result.RouteTable), nil
}
