package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshell-cp/aws/internal/ec2"
	"github.com/cloudshell-cp/aws/internal/ec2/ec2test"
)

const testConfig = `
region: eu-west-1
attributes:
  AWS EC2 Cloud Provider.VPC Mode: Dynamic
  AWS EC2 Cloud Provider.Availability Zone: eu-west-1a
tag_retry:
  attempts: 2
  interval: 1ms
`

const testRequest = `{
  "driverRequest": {
    "actions": [
      {"actionId": "a1", "type": "prepareSubnet", "actionParams": {"cidr": "10.0.1.0/24", "alias": "App", "isPublic": false}},
      {"actionId": "x1", "type": "connectSubnet", "actionParams": {}},
      {"actionId": "a2", "type": "prepareSubnet", "actionParams": {"cidr": "192.168.1.0/24", "isPublic": false}}
    ]
  }
}`

type response struct {
	DriverResponse struct {
		ActionResults []struct {
			ActionID     string `json:"actionId"`
			Type         string `json:"type"`
			Success      bool   `json:"success"`
			ErrorMessage string `json:"errorMessage"`
			SubnetID     string `json:"subnetId"`
		} `json:"actionResults"`
	} `json:"driverResponse"`
}

func fakeClient(t *testing.T) *ec2test.Client {
	t.Helper()
	client := &ec2test.Client{
		VPCs: []types.Vpc{{
			VpcId:     aws.String("vpc-1"),
			CidrBlock: aws.String("10.0.0.0/16"),
			Tags:      []types.Tag{ec2test.Tag(ec2.TagKeyReservationID, "rid-1")},
		}},
		RouteTables: []types.RouteTable{{
			RouteTableId: aws.String("rtb-private"),
			VpcId:        aws.String("vpc-1"),
			Tags:         []types.Tag{ec2test.Tag(ec2.TagKeyName, ec2.PrivateRouteTableName("rid-1"))},
			Routes: []types.Route{
				{DestinationCidrBlock: aws.String("172.31.0.0/16"), State: types.RouteStateBlackhole},
			},
		}},
	}

	orig := newClient
	newClient = func(context.Context, ec2.ClientConfig) (ec2.API, error) { return client, nil }
	t.Cleanup(func() { newClient = orig })
	return client
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := Root()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "cpaws", cmd.Use)

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}
	for _, expected := range []string{"prepare-subnets", "cleanup", "version"} {
		assert.True(t, subcommands[expected], "Expected subcommand %s not found", expected)
	}

	for _, flag := range []string{"config", "reservation-id", "owner", "blueprint", "domain"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersion(t *testing.T) {
	origVersion, origCommit, origDate := version, commit, date
	defer func() { version, commit, date = origVersion, origCommit, origDate }()

	SetVersionInfo("1.2.3", "abc123", "2026-01-01")

	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cpaws 1.2.3")
	assert.Contains(t, out, "commit: abc123")
	assert.Contains(t, out, "built:  2026-01-01")
}

func TestPrepareSubnetsFromStdin(t *testing.T) {
	client := fakeClient(t)
	cfgPath := writeFile(t, "cpaws.yaml", testConfig)

	out, stderr, err := execute(t, testRequest,
		"prepare-subnets", "-c", cfgPath,
		"--reservation-id", "rid-1", "--owner", "admin", "--blueprint", "bp", "--domain", "Global")
	require.NoError(t, err, stderr)

	var resp response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	results := resp.DriverResponse.ActionResults
	require.Len(t, results, 2)

	assert.Equal(t, "a1", results[0].ActionID)
	assert.Equal(t, "PrepareSubnet", results[0].Type)
	assert.True(t, results[0].Success, results[0].ErrorMessage)
	require.NotEmpty(t, results[0].SubnetID)

	assert.Equal(t, "a2", results[1].ActionID)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].ErrorMessage, "is not inside VPC CIDR 10.0.0.0/16")

	owner, _ := client.SubnetTag(results[0].SubnetID, ec2.TagKeyOwner)
	assert.Equal(t, "admin", owner)
	name, _ := client.SubnetTag(results[0].SubnetID, ec2.TagKeyName)
	assert.Equal(t, "App Reservation: rid-1", name)

	assert.Contains(t, stderr, "prepare subnets finished")
}

func TestPrepareSubnetsFromFile(t *testing.T) {
	fakeClient(t)
	logsDir := t.TempDir()
	metricsFile := filepath.Join(t.TempDir(), "cpaws.prom")
	cfgPath := writeFile(t, "cpaws.yaml", testConfig+"log:\n  dir: "+logsDir+"\nmetrics_file: "+metricsFile+"\n")
	reqPath := writeFile(t, "request.json", testRequest)

	out, stderr, err := execute(t, "", "prepare-subnets", "-c", cfgPath, "--reservation-id", "rid-1", "--request", reqPath)
	require.NoError(t, err, stderr)
	assert.Contains(t, out, `"actionResults"`)

	logFile, err := os.ReadFile(filepath.Join(logsDir, "rid-1", "prepare-subnets.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logFile), "prepare subnets finished")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `cpaws_prepare_subnet_results_total{mode="Dynamic",result="success"} 1`)
	assert.Contains(t, string(prom), `cpaws_prepare_subnet_results_total{mode="Dynamic",result="failure"} 1`)
}

func TestPrepareSubnetsErrors(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{name: "missing reservation", stdin: testRequest, args: nil, want: "reservation id is required"},
		{name: "bad request", stdin: "{", args: []string{"--reservation-id", "rid-1"}, want: "decoding driver request"},
		{name: "missing request file", args: []string{"--reservation-id", "rid-1", "--request", "/nonexistent/request.json"}, want: "opening request"},
		{name: "unresolved vpc", stdin: testRequest, args: []string{"--reservation-id", "rid-2"}, want: "failed to resolve VPC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeClient(t)
			cfgPath := writeFile(t, "cpaws.yaml", testConfig)

			args := append([]string{"prepare-subnets", "-c", cfgPath}, tt.args...)
			out, _, err := execute(t, tt.stdin, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, out)
		})
	}
}

func TestCleanup(t *testing.T) {
	client := fakeClient(t)
	cfgPath := writeFile(t, "cpaws.yaml", testConfig)

	_, stderr, err := execute(t, "", "cleanup", "-c", cfgPath, "--reservation-id", "rid-1")
	require.NoError(t, err, stderr)

	assert.Equal(t, 1, client.Count(ec2test.OpDeleteRoute))
	assert.Empty(t, client.RouteTables[0].Routes)
	assert.Contains(t, stderr, "cleanup finished")
}
