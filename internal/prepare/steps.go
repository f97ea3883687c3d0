package prepare

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/cloudshell-cp/aws/internal/ec2"
	"github.com/cloudshell-cp/aws/internal/log"
	"github.com/cloudshell-cp/aws/internal/models"
	"github.com/cloudshell-cp/aws/internal/netutil"
	"github.com/cloudshell-cp/aws/internal/o11y"
)

// SubnetName is the Name tag of a reservation subnet.
func SubnetName(alias, cidr, reservationID string) string {
	if alias == "" {
		alias = "Subnet-" + cidr
	}
	return fmt.Sprintf("%s Reservation: %s", alias, reservationID)
}

func aliasOrDefault(a models.PrepareSubnetAction) string {
	if a.Params.Alias != "" {
		return a.Params.Alias
	}
	return "Default Subnet"
}

func (b *batch) setSubnetCIDR(ctx context.Context, item *ActionItem) error {
	params := &item.Action.Params
	cidr := params.CIDR
	source := "subnet request"

	switch b.mode {
	case models.VPCModeStatic:
		if b.req.Model.StaticVPCCIDR != "" && len(b.items) == 1 {
			cidr = b.req.Model.StaticVPCCIDR
			source = "cloud provider"
		}
	case models.VPCModeShared:
		patched, changed, err := netutil.PatchSubnetCIDR(params.CIDR, b.vpcCIDR)
		if err != nil {
			return err
		}
		if changed {
			alias, err := netutil.SubnetAlias(patched)
			if err != nil {
				return err
			}
			log.Info(ctx, "patched subnet CIDR into the VPC CIDR", "requested", params.CIDR, o11y.AttrCIDR, patched, "alias", alias)
			params.CIDR = patched
			params.Alias = alias
		}
		cidr = params.CIDR
	}
	log.Info(ctx, fmt.Sprintf("decided to use subnet CIDR %s as defined on %s for subnet %s", cidr, source, aliasOrDefault(item.Action)))

	ok, err := netutil.Contains(b.vpcCIDR, cidr)
	if err != nil {
		return err
	}
	if !ok {
		return errorf(ErrCIDRNotInVPC, "Subnet CIDR %s is not inside VPC CIDR %s", cidr, b.vpcCIDR)
	}
	item.CIDR = cidr
	return nil
}

func (b *batch) getExistingSubnet(ctx context.Context, item *ActionItem) error {
	log.Info(ctx, "checking if subnet already exists", o11y.AttrCIDR, item.CIDR)

	subnet, err := ec2.SubnetByCIDR(ctx, b.client, b.vpcID, item.CIDR)
	if err != nil {
		return err
	}
	if subnet == nil {
		return nil
	}

	tags := ec2.TagsFromEC2(subnet.Tags)
	if tags.ReservationID() != b.req.Reservation.ID {
		return errorf(ErrSubnetConflict, "Requested subnet with a CIDR %s is already used for other purpose. Subnet tags: %s",
			item.CIDR, tags)
	}
	log.Info(ctx, "reusing subnet of this reservation", o11y.AttrSubnetID, aws.ToString(subnet.SubnetId))
	item.Subnet = subnet
	return nil
}

func (b *batch) createNewSubnetIfNeeded(ctx context.Context, item *ActionItem) error {
	if item.Subnet != nil {
		return nil
	}
	log.Info(ctx, "creating subnet",
		"alias", item.Action.Params.Alias, o11y.AttrCIDR, item.CIDR, "availability_zone", b.zone)

	subnet, err := ec2.CreateSubnet(ctx, b.client, b.vpcID, item.CIDR, b.zone)
	if err != nil {
		return err
	}
	item.Subnet = &subnet
	item.IsNewSubnet = true
	return nil
}

func (b *batch) waitTillAvailable(ctx context.Context, item *ActionItem) error {
	if !item.IsNewSubnet {
		return nil
	}
	log.Info(ctx, "waiting for subnet", o11y.AttrCIDR, item.CIDR, o11y.AttrSubnetID, item.subnetID())
	if err := ec2.WaitSubnetAvailable(ctx, b.client, item.subnetID(), b.opts.SubnetWaitTimeout, b.opts.WaiterOptions...); err != nil {
		return err
	}
	log.Info(ctx, "subnet is available", o11y.AttrSubnetID, item.subnetID())
	return nil
}

func (b *batch) setTags(ctx context.Context, item *ActionItem) error {
	name := SubnetName(item.Action.Params.Alias, item.CIDR, b.req.Reservation.ID)
	tags := ec2.DefaultTags(name, b.req.Reservation).WithIsPublic(item.Action.Params.IsPublic)
	return b.tagger.Set(ctx, tags, item.subnetID())
}

func (b *batch) attachRouteTable(ctx context.Context, item *ActionItem) error {
	public := item.Action.Params.IsPublic
	rid := b.req.Reservation.ID

	var (
		rt  *ec2.RouteTable
		err error
	)
	switch b.mode {
	case models.VPCModeDynamic, models.VPCModeStatic:
		if public {
			return nil
		}
		rt, err = ec2.PrivateRouteTable(ctx, b.client, b.vpcID, rid)
	case models.VPCModeShared, models.VPCModeSingle:
		if public {
			rt, err = ec2.PublicRouteTable(ctx, b.client, b.vpcID, rid)
		} else {
			rt, err = ec2.PrivateRouteTable(ctx, b.client, b.vpcID, rid)
		}
	}
	if err != nil {
		return err
	}
	if rt == nil {
		return nil
	}

	item.RouteTable = rt
	return rt.Associate(ctx, item.subnetID())
}

func (b *batch) connectToVGW(ctx context.Context, item *ActionItem) error {
	if b.mode != models.VPCModeShared {
		return nil
	}
	vgwID := b.req.Model.VGWID
	if vgwID == "" || !item.Action.Params.ConnectToVPN || item.RouteTable == nil {
		return nil
	}

	for _, cidr := range b.req.Model.VGWCIDRs {
		log.Info(ctx, "adding route to VPN gateway", "vgw_id", vgwID, o11y.AttrCIDR, cidr, "route_table_id", item.RouteTable.ID())
		if err := item.RouteTable.AddRouteToVPNGateway(ctx, vgwID, cidr); err != nil {
			return err
		}
	}
	return nil
}

func (b *batch) createSGForSubnet(ctx context.Context, item *ActionItem) error {
	if b.mode != models.VPCModeShared && b.mode != models.VPCModeSingle {
		return nil
	}

	name := ec2.SubnetSecurityGroupName(item.subnetID())
	sgID, err := ec2.SecurityGroupByName(ctx, b.client, b.vpcID, name)
	if err != nil {
		return err
	}
	if sgID != "" {
		log.Debug(ctx, "reusing subnet security group", "security_group_id", sgID)
		return nil
	}

	tags := ec2.SecurityGroupTags(name, b.req.Reservation, ec2.IsolationShared, ec2.SecurityGroupTypeDefault)
	sgID, err = ec2.CreateSecurityGroup(ctx, b.client, b.vpcID, name, name, tags)
	if err != nil {
		return err
	}
	log.Info(ctx, "created subnet security group", "security_group_id", sgID, o11y.AttrSubnetID, item.subnetID())
	return ec2.AllowTrafficFromSelf(ctx, b.client, sgID)
}
