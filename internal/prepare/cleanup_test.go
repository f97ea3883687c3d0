package prepare

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshell-cp/aws/internal/cancellation"
	"github.com/cloudshell-cp/aws/internal/ec2"
	"github.com/cloudshell-cp/aws/internal/ec2/ec2test"
	"github.com/cloudshell-cp/aws/internal/models"
)

func cleanupRequest(mode models.VPCMode) CleanupRequest {
	return CleanupRequest{
		Reservation:  testReservation,
		Model:        model(mode),
		Cancellation: cancellation.NewToken(),
	}
}

func withBlackholes(c *ec2test.Client, vpcID string) {
	for i := range c.RouteTables {
		if aws.ToString(c.RouteTables[i].VpcId) != vpcID {
			continue
		}
		c.RouteTables[i].Routes = []types.Route{
			{DestinationCidrBlock: aws.String("10.0.0.0/16"), GatewayId: aws.String("local"), State: types.RouteStateActive},
			{DestinationCidrBlock: aws.String("172.31.0.0/16"), VpcPeeringConnectionId: aws.String("pcx-gone"), State: types.RouteStateBlackhole},
		}
	}
}

func TestCleanupDeletesBlackholeRoutes(t *testing.T) {
	client := fixture()
	withBlackholes(client, vpcDyn)
	client.Subnets = []types.Subnet{{
		SubnetId:  aws.String("subnet-1"),
		VpcId:     aws.String(vpcDyn),
		CidrBlock: aws.String("10.0.1.0/24"),
		Tags:      []types.Tag{ec2test.Tag(ec2.TagKeyReservationID, testRID)},
	}}

	err := newStrategy(client, nil).Cleanup(context.Background(), cleanupRequest(models.VPCModeDynamic))
	require.NoError(t, err)

	tables, err := ec2.RouteTables(context.Background(), client, vpcDyn)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	for _, rt := range tables {
		require.Len(t, rt.Routes(), 1, rt.Name())
		assert.False(t, rt.Routes()[0].IsBlackhole())
	}

	// the reservation VPC is deleted as a whole, subnets stay for it
	assert.Zero(t, client.Count(ec2test.OpDeleteSubnet))
}

func TestCleanupSharedDeletesSubnets(t *testing.T) {
	for _, mode := range []models.VPCMode{models.VPCModeShared, models.VPCModeSingle} {
		t.Run(string(mode), func(t *testing.T) {
			vpcID := vpcShared
			if mode == models.VPCModeSingle {
				vpcID = vpcMgmt
			}
			client := fixture()
			client.Subnets = []types.Subnet{
				{
					SubnetId: aws.String("subnet-mine"),
					VpcId:    aws.String(vpcID),
					Tags:     []types.Tag{ec2test.Tag(ec2.TagKeyReservationID, testRID)},
				},
				{
					SubnetId: aws.String("subnet-other"),
					VpcId:    aws.String(vpcID),
					Tags:     []types.Tag{ec2test.Tag(ec2.TagKeyReservationID, "rid-other")},
				},
			}
			client.SecurityGroups = []types.SecurityGroup{{
				GroupId:   aws.String("sg-mine"),
				GroupName: aws.String(ec2.SubnetSecurityGroupName("subnet-mine")),
				VpcId:     aws.String(vpcID),
			}}

			err := newStrategy(client, nil).Cleanup(context.Background(), cleanupRequest(mode))
			require.NoError(t, err)

			_, ok := client.SubnetByID("subnet-mine")
			assert.False(t, ok)
			_, ok = client.SubnetByID("subnet-other")
			assert.True(t, ok)
			assert.Empty(t, client.SecurityGroups)

			ops := client.Ops()
			assert.Less(t, indexOf(ops, ec2test.OpDeleteSubnet), indexOf(ops, ec2test.OpDeleteSecurityGroup))
		})
	}
}

func indexOf(ops []string, op string) int {
	for i, o := range ops {
		if o == op {
			return i
		}
	}
	return -1
}

func TestCleanupCollectsErrors(t *testing.T) {
	client := fixture()
	client.Subnets = []types.Subnet{
		{SubnetId: aws.String("subnet-a"), VpcId: aws.String(vpcShared), Tags: []types.Tag{ec2test.Tag(ec2.TagKeyReservationID, testRID)}},
		{SubnetId: aws.String("subnet-b"), VpcId: aws.String(vpcShared), Tags: []types.Tag{ec2test.Tag(ec2.TagKeyReservationID, testRID)}},
	}
	client.DeleteSubnetFunc = func(_ context.Context, params *awsec2.DeleteSubnetInput, _ ...func(*awsec2.Options)) (*awsec2.DeleteSubnetOutput, error) {
		return nil, errors.New("DependencyViolation")
	}

	err := newStrategy(client, nil).Cleanup(context.Background(), cleanupRequest(models.VPCModeShared))
	require.ErrorIs(t, err, ec2.ErrSubnetDelete)
	assert.Contains(t, err.Error(), "subnet-a")
	assert.Contains(t, err.Error(), "subnet-b")
	assert.Equal(t, 2, client.Count(ec2test.OpDeleteSubnet))
}

func TestCleanupCancelled(t *testing.T) {
	client := fixture()
	withBlackholes(client, vpcDyn)
	req := cleanupRequest(models.VPCModeDynamic)
	token := cancellation.NewToken()
	token.Cancel()
	req.Cancellation = token

	err := newStrategy(client, nil).Cleanup(context.Background(), req)
	require.ErrorIs(t, err, cancellation.ErrCancelled)
	assert.Zero(t, client.Count(ec2test.OpDeleteRoute))
}

func TestCleanupResolveVPC(t *testing.T) {
	client := fixture()
	client.VPCs = nil

	err := newStrategy(client, nil).Cleanup(context.Background(), cleanupRequest(models.VPCModeDynamic))
	require.ErrorIs(t, err, ErrVPCResolve)
}
