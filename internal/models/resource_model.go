package models

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// VPCMode selects how the target VPC is resolved and which per-subnet
// extras (route tables, VPN routes, security groups) are applied.
type VPCMode string

const (
	VPCModeDynamic VPCMode = "Dynamic"
	VPCModeStatic  VPCMode = "Static"
	VPCModeShared  VPCMode = "Shared"
	VPCModeSingle  VPCMode = "Single"
)

var ErrUnknownVPCMode = fmt.Errorf("unknown VPC mode")

// ParseVPCMode parses a mode name case-insensitively. An empty value means
// Dynamic.
func ParseVPCMode(s string) (VPCMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dynamic":
		return VPCModeDynamic, nil
	case "static":
		return VPCModeStatic, nil
	case "shared":
		return VPCModeShared, nil
	case "single":
		return VPCModeSingle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVPCMode, s)
	}
}

// Cloud provider resource attribute names. CloudShell sends them namespaced
// with the resource model name ("AWS EC2 Cloud Provider.VPC Mode"), lookups
// ignore the namespace.
const (
	AttrRegion           = "Region"
	AttrAvailabilityZone = "Availability Zone"
	AttrVPCMode          = "VPC Mode"
	AttrSharedVPCID      = "Shared VPC ID"
	AttrMgmtVPCID        = "AWS Mgmt VPC ID"
	AttrStaticVPCCIDR    = "Static VPC CIDR"
	AttrVPNGatewayID     = "VPN Gateway ID"
	AttrVPNCIDRs         = "VPN CIDRs"
)

// ResourceModel is the subset of the AWS EC2 cloud provider resource that the
// network commands depend on.
type ResourceModel struct {
	Region           string
	AvailabilityZone string
	VPCMode          VPCMode
	SharedVPCID      string
	MgmtVPCID        string
	StaticVPCCIDR    string
	VGWID            string
	VGWCIDRs         []string
}

// ResourceModelFromAttributes builds a ResourceModel from CloudShell resource
// attributes.
func ResourceModelFromAttributes(attrs map[string]string) (ResourceModel, error) {
	get := func(name string) string {
		v, _ := AttributeIgnoringNamespace(attrs, name)
		return strings.TrimSpace(v)
	}

	mode, err := ParseVPCMode(get(AttrVPCMode))
	if err != nil {
		return ResourceModel{}, err
	}

	m := ResourceModel{
		Region:           get(AttrRegion),
		AvailabilityZone: get(AttrAvailabilityZone),
		VPCMode:          mode,
		SharedVPCID:      get(AttrSharedVPCID),
		MgmtVPCID:        get(AttrMgmtVPCID),
		StaticVPCCIDR:    get(AttrStaticVPCCIDR),
		VGWID:            get(AttrVPNGatewayID),
		VGWCIDRs:         splitList(get(AttrVPNCIDRs)),
	}
	return m, m.Validate()
}

// Validate checks the attributes each VPC mode needs.
func (m ResourceModel) Validate() error {
	switch m.VPCMode {
	case VPCModeShared:
		if m.SharedVPCID == "" {
			return fmt.Errorf("%q is required in %s VPC mode", AttrSharedVPCID, m.VPCMode)
		}
	case VPCModeSingle:
		if m.MgmtVPCID == "" {
			return fmt.Errorf("%q is required in %s VPC mode", AttrMgmtVPCID, m.VPCMode)
		}
	case VPCModeDynamic, VPCModeStatic:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVPCMode, m.VPCMode)
	}
	return nil
}

// AttributeIgnoringNamespace finds an attribute by its last dotted name
// segment. An exact key wins. Otherwise namespaced keys are scanned in
// sorted order. It returns the value and whether one was found.
func AttributeIgnoringNamespace(attrs map[string]string, name string) (string, bool) {
	if v, ok := attrs[name]; ok {
		return v, true
	}
	for _, key := range slices.Sorted(maps.Keys(attrs)) {
		parts := strings.Split(key, ".")
		if parts[len(parts)-1] == name {
			return attrs[key], true
		}
	}
	return "", false
}

var (
	elasticIPOption = regexp.MustCompile(`(?i)^elastic`)
	publicIPOption  = regexp.MustCompile(`(?i)^public `)
)

// ParsePublicIPOptions parses the "Public IP Options" deployment attribute
// into (add public IP, allocate elastic IP).
func ParsePublicIPOptions(v string) (bool, bool) {
	switch {
	case elasticIPOption.MatchString(v):
		return false, true
	case publicIPOption.MatchString(v):
		return true, false
	default:
		return false, false
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
