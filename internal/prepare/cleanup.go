package prepare

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudshell-cp/aws/internal/cancellation"
	"github.com/cloudshell-cp/aws/internal/ec2"
	"github.com/cloudshell-cp/aws/internal/log"
	"github.com/cloudshell-cp/aws/internal/models"
	"github.com/cloudshell-cp/aws/internal/o11y"
)

// CleanupRequest selects the reservation network to clean up.
type CleanupRequest struct {
	Reservation  models.Reservation
	Model        models.ResourceModel
	Cancellation cancellation.Checker
}

// Cleanup deletes blackhole routes from every route table of the
// reservation VPC. In Shared and Single mode, where the VPC outlives the
// reservation, it also deletes the reservation subnets and their security
// groups. It keeps going after a failure and returns all errors joined.
func (s *Strategy) Cleanup(ctx context.Context, req CleanupRequest) error {
	mode := req.Model.VPCMode
	if mode == "" {
		mode = models.VPCModeDynamic
	}
	ctx, span := s.tracer.Start(ctx, "prepare.cleanup", trace.WithAttributes(
		attribute.String(o11y.AttrReservationID, req.Reservation.ID),
		attribute.String(o11y.AttrVPCMode, string(mode)),
	))
	defer span.End()
	ctx = log.With(ctx, o11y.AttrReservationID, req.Reservation.ID, o11y.AttrVPCMode, string(mode))

	b := &batch{Strategy: s, req: Request{Reservation: req.Reservation, Model: req.Model}, mode: mode}
	if err := b.resolveVPC(ctx); err != nil {
		return fail(span, err)
	}
	ctx = log.With(ctx, o11y.AttrVPCID, b.vpcID)

	var errs []error

	tables, err := ec2.RouteTables(ctx, s.client, b.vpcID)
	if err != nil {
		errs = append(errs, err)
	}
	for _, t := range tables {
		if err := cancellation.Check(ctx, req.Cancellation); err != nil {
			return fail(span, err)
		}
		if _, err := t.DeleteBlackholeRoutes(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if mode == models.VPCModeShared || mode == models.VPCModeSingle {
		subnets, err := ec2.SubnetsForReservation(ctx, s.client, b.vpcID, req.Reservation.ID)
		if err != nil {
			errs = append(errs, err)
		}
		for _, subnet := range subnets {
			if err := cancellation.Check(ctx, req.Cancellation); err != nil {
				return fail(span, err)
			}
			errs = append(errs, s.deleteSubnet(ctx, b.vpcID, aws.ToString(subnet.SubnetId)))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fail(span, err)
	}
	log.Info(ctx, "cleanup finished")
	return nil
}

// deleteSubnet removes a reservation subnet, then its security group.
func (s *Strategy) deleteSubnet(ctx context.Context, vpcID, subnetID string) error {
	log.Info(ctx, "deleting subnet", o11y.AttrSubnetID, subnetID)
	if err := ec2.DeleteSubnet(ctx, s.client, subnetID); err != nil {
		return err
	}

	sgID, err := ec2.SecurityGroupByName(ctx, s.client, vpcID, ec2.SubnetSecurityGroupName(subnetID))
	if err != nil || sgID == "" {
		return err
	}
	log.Info(ctx, "deleting subnet security group", "security_group_id", sgID)
	return ec2.DeleteSecurityGroup(ctx, s.client, sgID)
}
