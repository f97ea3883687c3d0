// Package netutil holds the IPv4 CIDR math used when placing subnets in a
// VPC.
package netutil

import (
	"fmt"
	"net/netip"
	"strings"
)

var ErrCIDRNotInVPC = fmt.Errorf("Subnet CIDR is not a subnetwork of VPC CIDR")

// ParsePrefix parses an IPv4 network in CIDR notation. Host bits must be
// zero.
func ParsePrefix(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("only IPv4 supported: %s", s)
	}
	if p.Masked() != p {
		return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: host bits set", s)
	}
	return p, nil
}

// Contains reports whether the inner network lies within the outer one. Equal
// networks are contained.
func Contains(outer, inner string) (bool, error) {
	o, err := ParsePrefix(outer)
	if err != nil {
		return false, err
	}
	i, err := ParsePrefix(inner)
	if err != nil {
		return false, err
	}
	return PrefixContains(o, i), nil
}

func PrefixContains(outer, inner netip.Prefix) bool {
	if inner.Bits() < outer.Bits() {
		return false
	}
	return outer.Contains(inner.Addr()) && outer.Contains(LastAddr(inner))
}

// LastAddr returns the broadcast address of p.
func LastAddr(p netip.Prefix) netip.Addr {
	a4 := p.Masked().Addr().As4()
	for i := 0; i < 32-p.Bits(); i++ {
		a4[3-i/8] |= 1 << (i % 8)
	}
	return netip.AddrFrom4(a4)
}

// PatchSubnetCIDR moves cidr into vpcCIDR when it is not already inside. The
// first two octets of the VPC network replace the first two of the request;
// the last two octets and the mask are kept. The bool result reports whether
// the CIDR was rewritten.
func PatchSubnetCIDR(cidr, vpcCIDR string) (string, bool, error) {
	ok, err := Contains(vpcCIDR, cidr)
	if err != nil {
		return "", false, err
	}
	if ok {
		return cidr, false, nil
	}

	vpcOctets := strings.SplitN(strings.TrimSpace(vpcCIDR), ".", 3)
	reqOctets := strings.Split(strings.TrimSpace(cidr), ".")
	if len(vpcOctets) < 3 || len(reqOctets) < 4 {
		return "", false, ErrCIDRNotInVPC
	}
	patched := strings.Join(append(vpcOctets[:2:2], reqOctets[len(reqOctets)-2:]...), ".")

	ok, err = Contains(vpcCIDR, patched)
	if err != nil || !ok {
		return "", false, ErrCIDRNotInVPC
	}
	return patched, true, nil
}

// SubnetAlias names a subnet after its address range, e.g.
// "Subnet - 10.0.5.0-10.0.5.255".
func SubnetAlias(cidr string) (string, error) {
	p, err := ParsePrefix(cidr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Subnet - %s-%s", p.Addr(), LastAddr(p)), nil
}
