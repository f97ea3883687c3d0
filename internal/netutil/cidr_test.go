package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContains(t *testing.T) {
	tests := []struct {
		outer, inner string
		want         bool
	}{
		{"10.0.0.0/16", "10.0.1.0/24", true},
		{"10.0.0.0/16", "10.0.0.0/16", true},
		{"10.0.0.0/16", "10.0.0.0/8", false},
		{"10.0.0.0/16", "192.168.1.0/24", false},
		{"10.0.0.0/16", "10.1.0.0/24", false},
		{"172.16.32.0/20", "172.16.47.240/28", true},
	}
	for _, tt := range tests {
		t.Run(tt.outer+" "+tt.inner, func(t *testing.T) {
			got, err := Contains(tt.outer, tt.inner)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContainsInvalid(t *testing.T) {
	_, err := Contains("10.0.0.0/16", "nope")
	require.Error(t, err)

	_, err = Contains("10.0.0.0/16", "10.0.1.1/24")
	require.Error(t, err)

	_, err = Contains("10.0.0.0/16", "fd00::/64")
	require.Error(t, err)
}

func TestPatchSubnetCIDR(t *testing.T) {
	got, changed, err := PatchSubnetCIDR("192.168.5.0/24", "10.0.0.0/16")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "10.0.5.0/24", got)

	got, changed, err = PatchSubnetCIDR("10.0.7.0/24", "10.0.0.0/16")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "10.0.7.0/24", got)
}

func TestPatchSubnetCIDRRejected(t *testing.T) {
	// a /20 VPC only covers part of the third octet
	_, _, err := PatchSubnetCIDR("192.168.200.0/24", "10.0.16.0/20")
	require.ErrorIs(t, err, ErrCIDRNotInVPC)
	assert.Equal(t, "Subnet CIDR is not a subnetwork of VPC CIDR", err.Error())

	_, _, err = PatchSubnetCIDR("192.168.0.0/8", "10.0.0.0/16")
	require.Error(t, err)
}

func TestSubnetAlias(t *testing.T) {
	alias, err := SubnetAlias("10.0.5.0/24")
	require.NoError(t, err)
	assert.Equal(t, "Subnet - 10.0.5.0-10.0.5.255", alias)

	alias, err = SubnetAlias("10.0.16.0/20")
	require.NoError(t, err)
	assert.Equal(t, "Subnet - 10.0.16.0-10.0.31.255", alias)
}
