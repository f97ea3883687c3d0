// Package prepare creates or claims the subnets a reservation asks for and
// wires them into the reservation network.
//
// A batch runs in three passes over its actions. The first pass resolves each
// CIDR, claims an existing subnet or issues CreateSubnet without waiting. The
// second pass waits for the new subnets, so EC2 provisions them in parallel.
// The third pass tags the subnets and attaches route tables, VPN routes and
// security groups. Which of those apply depends on the VPC mode.
package prepare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudshell-cp/aws/internal/cancellation"
	"github.com/cloudshell-cp/aws/internal/ec2"
	"github.com/cloudshell-cp/aws/internal/log"
	"github.com/cloudshell-cp/aws/internal/metrics"
	"github.com/cloudshell-cp/aws/internal/models"
	"github.com/cloudshell-cp/aws/internal/o11y"
)

const tracerName = "github.com/cloudshell-cp/aws/internal/prepare"

var (
	ErrSubnetConflict = fmt.Errorf("subnet conflict")
	ErrCIDRNotInVPC   = fmt.Errorf("invalid subnet CIDR")
	ErrVPCResolve     = fmt.Errorf("failed to resolve VPC")
	ErrZoneResolve    = fmt.Errorf("failed to resolve availability zone")
)

// Options tune a Strategy. Zero values fall back to defaults.
type Options struct {
	SubnetWaitTimeout time.Duration // default: 10m
	TagRetryAttempts  int           // default: 30
	TagRetryInterval  time.Duration // default: 1s

	// WaiterOptions are passed to the SDK SubnetAvailable waiter.
	WaiterOptions []func(*awsec2.SubnetAvailableWaiterOptions)

	Metrics *metrics.Metrics
}

func (o *Options) applyDefaults() {
	if o.SubnetWaitTimeout <= 0 {
		o.SubnetWaitTimeout = 10 * time.Minute
	}
	if o.TagRetryAttempts <= 0 {
		o.TagRetryAttempts = 30
	}
	if o.TagRetryInterval <= 0 {
		o.TagRetryInterval = time.Second
	}
}

// Strategy runs prepare subnet batches against one EC2 client.
type Strategy struct {
	client ec2.API
	tagger *ec2.Tagger
	opts   Options
	tracer trace.Tracer
}

func New(client ec2.API, opts Options) *Strategy {
	opts.applyDefaults()
	return &Strategy{
		client: client,
		tagger: ec2.NewTagger(client, opts.TagRetryAttempts, opts.TagRetryInterval),
		opts:   opts,
		tracer: otel.Tracer(tracerName),
	}
}

// Request is one prepare subnets batch.
type Request struct {
	Reservation  models.Reservation
	Model        models.ResourceModel
	Actions      []models.PrepareSubnetAction
	Cancellation cancellation.Checker
}

// ActionItem tracks one action through the passes. Once Err is set, later
// steps skip the item.
type ActionItem struct {
	Action      models.PrepareSubnetAction
	CIDR        string
	Subnet      *types.Subnet
	IsNewSubnet bool
	RouteTable  *ec2.RouteTable
	Err         error
}

func (i *ActionItem) subnetID() string {
	if i.Subnet == nil {
		return ""
	}
	return aws.ToString(i.Subnet.SubnetId)
}

// Result converts the item into the result reported to CloudShell.
func (i *ActionItem) Result() models.PrepareCloudInfraResult {
	if i.Subnet != nil && i.Err == nil {
		return models.SubnetSuccess(i.Action.ActionID, i.subnetID())
	}
	err := i.Err
	if err == nil {
		err = errors.New("no subnet was created")
	}
	return models.SubnetFailure(i.Action.ActionID, err)
}

// batch is the state shared by the steps of one Prepare call.
type batch struct {
	*Strategy

	req     Request
	mode    models.VPCMode
	vpcID   string
	vpcCIDR string
	zone    string
	items   []*ActionItem
}

type stepFunc func(ctx context.Context, item *ActionItem) error

type step struct {
	name string
	fn   stepFunc
}

// Prepare runs the batch and returns one result per action in request
// order. Failures of single actions are reported in their results. An error
// is returned only when the VPC or availability zone cannot be resolved or
// the batch is cancelled.
func (s *Strategy) Prepare(ctx context.Context, req Request) ([]models.PrepareCloudInfraResult, error) {
	start := time.Now()
	mode := req.Model.VPCMode
	if mode == "" {
		mode = models.VPCModeDynamic
	}

	ctx, span := s.tracer.Start(ctx, "prepare.subnets", trace.WithAttributes(
		attribute.String(o11y.AttrReservationID, req.Reservation.ID),
		attribute.String(o11y.AttrVPCMode, string(mode)),
		attribute.Int("actions", len(req.Actions)),
	))
	defer span.End()
	ctx = log.With(ctx, o11y.AttrReservationID, req.Reservation.ID, o11y.AttrVPCMode, string(mode))
	defer func() { s.opts.Metrics.ObserveBatch(string(mode), time.Since(start)) }()

	b := &batch{Strategy: s, req: req, mode: mode}
	for _, a := range req.Actions {
		b.items = append(b.items, &ActionItem{Action: a})
	}

	if err := cancellation.Check(ctx, req.Cancellation); err != nil {
		return nil, fail(span, err)
	}
	if err := b.resolveVPC(ctx); err != nil {
		return nil, fail(span, err)
	}
	if err := b.resolveZone(ctx); err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String(o11y.AttrVPCID, b.vpcID))
	ctx = log.With(ctx, o11y.AttrVPCID, b.vpcID)

	passes := []struct {
		name  string
		steps []step
	}{
		{
			name: "create",
			steps: []step{
				{"set_subnet_cidr", b.setSubnetCIDR},
				{"get_existing_subnet", b.getExistingSubnet},
				{"create_new_subnet_if_needed", b.createNewSubnetIfNeeded},
			},
		},
		{
			name:  "wait",
			steps: []step{{"wait_till_available", b.waitTillAvailable}},
		},
		{
			name: "attach",
			steps: []step{
				{"set_tags", b.setTags},
				{"attach_route_table", b.attachRouteTable},
				{"connect_to_vgw", b.connectToVGW},
				{"create_sg_for_subnet", b.createSGForSubnet},
			},
		},
	}
	for _, p := range passes {
		if err := b.runPass(ctx, p.name, p.steps); err != nil {
			log.Warn(ctx, "prepare subnets cancelled", "pass", p.name)
			return nil, fail(span, err)
		}
	}

	results := make([]models.PrepareCloudInfraResult, 0, len(b.items))
	failed := 0
	for _, item := range b.items {
		r := item.Result()
		if !r.Success {
			failed++
		}
		s.opts.Metrics.RecordResult(string(mode), r.Success)
		results = append(results, r)
	}
	span.SetAttributes(attribute.Int("failed", failed))
	log.Info(ctx, "prepare subnets finished", "actions", len(results), "failed", failed)
	return results, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (b *batch) runPass(ctx context.Context, name string, steps []step) error {
	ctx, span := b.tracer.Start(ctx, "prepare.pass."+name)
	defer span.End()

	for _, item := range b.items {
		for _, st := range steps {
			if err := b.guard(ctx, item, st); err != nil {
				return fail(span, err)
			}
		}
	}
	return nil
}

// guard runs one step for one item. It returns an error only on
// cancellation; step errors are stored on the item.
func (b *batch) guard(ctx context.Context, item *ActionItem, st step) error {
	if err := cancellation.Check(ctx, b.req.Cancellation); err != nil {
		return err
	}
	if item.Err != nil {
		return nil
	}

	if err := st.fn(ctx, item); err != nil {
		log.Error(ctx, "error in prepare subnet",
			o11y.AttrStep, st.name,
			o11y.AttrActionID, item.Action.ActionID,
			o11y.AttrCIDR, item.CIDR,
			log.Err(err))
		b.opts.Metrics.RecordStepError(st.name)
		item.Err = err
	}
	return nil
}

func (b *batch) resolveVPC(ctx context.Context) error {
	var (
		vpc types.Vpc
		err error
	)
	switch b.mode {
	case models.VPCModeDynamic, models.VPCModeStatic:
		vpc, err = ec2.VPCForReservation(ctx, b.client, b.req.Reservation.ID)
	case models.VPCModeShared:
		vpc, err = ec2.VPCByID(ctx, b.client, b.req.Model.SharedVPCID)
	case models.VPCModeSingle:
		vpc, err = ec2.VPCByID(ctx, b.client, b.req.Model.MgmtVPCID)
	default:
		err = fmt.Errorf("%w: %q", models.ErrUnknownVPCMode, b.mode)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVPCResolve, err)
	}

	b.vpcID = aws.ToString(vpc.VpcId)
	b.vpcCIDR = aws.ToString(vpc.CidrBlock)
	return nil
}

func (b *batch) resolveZone(ctx context.Context) error {
	if b.req.Model.AvailabilityZone != "" {
		b.zone = b.req.Model.AvailabilityZone
		return nil
	}
	zone, err := ec2.PickAvailabilityZone(ctx, b.client, b.vpcID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrZoneResolve, err)
	}
	b.zone = zone
	return nil
}
