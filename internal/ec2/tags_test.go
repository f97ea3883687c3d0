package ec2

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshell-cp/aws/internal/ec2/ec2test"
	"github.com/cloudshell-cp/aws/internal/models"
)

var testReservation = models.Reservation{
	ID:        "rid-1",
	Owner:     "admin",
	Blueprint: "bp",
	Domain:    "Global",
}

func TestTagsFromEC2LastWriteWins(t *testing.T) {
	tags := TagsFromEC2([]types.Tag{
		ec2test.Tag("Name", "first"),
		ec2test.Tag(TagKeyReservationID, "rid-1"),
		ec2test.Tag("Name", "second"),
	})
	assert.Equal(t, 2, tags.Len())
	assert.Equal(t, "second", tags.Name())
	assert.Equal(t, "rid-1", tags.ReservationID())

	_, ok := tags.Get("Missing")
	assert.False(t, ok)
}

func TestDefaultTags(t *testing.T) {
	tags := DefaultTags("subnet name", testReservation)

	want := map[string]string{
		TagKeyName:          "subnet name",
		TagKeyCreatedBy:     "Cloudshell",
		TagKeyBlueprint:     "bp",
		TagKeyOwner:         "admin",
		TagKeyDomain:        "Global",
		TagKeyReservationID: "rid-1",
	}
	require.Equal(t, len(want), tags.Len())
	for k, v := range want {
		got, ok := tags.Get(k)
		require.True(t, ok, k)
		assert.Equal(t, v, got, k)
	}
}

func TestTagsImmutable(t *testing.T) {
	base := DefaultTags("n", testReservation)
	public := base.WithIsPublic(true)
	private := base.WithIsPublic(false)

	_, ok := base.Get(TagKeyIsPublic)
	assert.False(t, ok)

	v, _ := public.Get(TagKeyIsPublic)
	assert.Equal(t, "True", v)
	v, _ = private.Get(TagKeyIsPublic)
	assert.Equal(t, "False", v)

	merged := base.Merge(map[string]string{"Team": "net", TagKeyName: "custom"})
	assert.Equal(t, "custom", merged.Name())
	assert.Equal(t, "n", base.Name())

	var zero Tags
	assert.Equal(t, "v", zero.With("k", "v").m["k"])
}

func TestTagsEC2Sorted(t *testing.T) {
	tags := TagsFromMap(map[string]string{"b": "2", "a": "1", "c": "3"}).EC2()
	require.Len(t, tags, 3)
	assert.Equal(t, "a", *tags[0].Key)
	assert.Equal(t, "b", *tags[1].Key)
	assert.Equal(t, "c", *tags[2].Key)

	spec := TagsFromMap(map[string]string{"a": "1"}).Specification(types.ResourceTypeSubnet)
	require.Len(t, spec, 1)
	assert.Equal(t, types.ResourceTypeSubnet, spec[0].ResourceType)
	assert.Len(t, spec[0].Tags, 1)
}

func TestTagsString(t *testing.T) {
	tags := TagsFromMap(map[string]string{"Name": "x", "ReservationId": "other"})
	assert.Equal(t, "{Name: x, ReservationId: other}", tags.String())
}

func TestSecurityGroupTags(t *testing.T) {
	tags := SecurityGroupTags("sg", testReservation, IsolationShared, SecurityGroupTypeDefault)
	v, _ := tags.Get(TagKeyIsolation)
	assert.Equal(t, "Shared", v)
	v, _ = tags.Get(TagKeyType)
	assert.Equal(t, "Default", v)
	assert.Equal(t, "rid-1", tags.ReservationID())
}

func TestTaggerRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{name: "first attempt", failures: 0, attempts: 30, wantCalls: 1},
		{name: "eventually consistent", failures: 3, attempts: 30, wantCalls: 4},
		{name: "exhausted", failures: 100, attempts: 5, wantErr: true, wantCalls: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &ec2test.Client{}
			calls := 0
			var captured *ec2.CreateTagsInput
			client.CreateTagsFunc = func(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
				calls++
				if calls <= tt.failures {
					return nil, errors.New("InvalidSubnetID.NotFound")
				}
				captured = params
				return &ec2.CreateTagsOutput{}, nil
			}

			err := NewTagger(client, tt.attempts, 0).Set(context.Background(), DefaultTags("n", testReservation), "subnet-1")
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrTagsCreate)
				assert.Contains(t, err.Error(), "InvalidSubnetID.NotFound")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, captured)
			assert.Equal(t, []string{"subnet-1"}, captured.Resources)
			assert.Len(t, captured.Tags, 6)
		})
	}
}

func TestTaggerContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &ec2test.Client{}
	err := NewTagger(client, 3, 0).Set(ctx, DefaultTags("n", testReservation), "subnet-1")
	require.ErrorIs(t, err, ErrTagsCreate)
	assert.Zero(t, client.Count(ec2test.OpCreateTags))
}

func TestTaggerAppliesTags(t *testing.T) {
	client := &ec2test.Client{Subnets: []types.Subnet{{SubnetId: aws.String("subnet-1")}}}
	require.NoError(t, NewTagger(client, 1, 0).Set(context.Background(), DefaultTags("n", testReservation).WithIsPublic(true), "subnet-1"))

	v, ok := client.SubnetTag("subnet-1", TagKeyIsPublic)
	require.True(t, ok)
	assert.Equal(t, "True", v)
}
