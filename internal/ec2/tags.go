package ec2

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/cloudshell-cp/aws/internal/models"
)

const (
	// Tag keys we set on every managed resource.
	TagKeyName          = "Name"
	TagKeyCreatedBy     = "CreatedBy"
	TagKeyBlueprint     = "Blueprint"
	TagKeyOwner         = "Owner"
	TagKeyDomain        = "Domain"
	TagKeyReservationID = "ReservationId"
	TagKeyIsPublic      = "IsPublic"

	// Security group classification.
	TagKeyIsolation = "Isolation"
	TagKeyType      = "Type"

	TagDefaultCreatedBy = "Cloudshell"
)

type IsolationTag string

const (
	IsolationShared IsolationTag = "Shared"
)

type SecurityGroupType string

const (
	SecurityGroupTypeDefault SecurityGroupType = "Default"
)

// Tags is an immutable set of EC2 tags. Methods that change the set return a
// copy.
type Tags struct {
	m map[string]string
}

// TagsFromEC2 builds Tags from an EC2 tag list. A repeated key keeps its last
// value.
func TagsFromEC2(tags []types.Tag) Tags {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return Tags{m: m}
}

func TagsFromMap(m map[string]string) Tags {
	return Tags{m: maps.Clone(m)}
}

// DefaultTags returns the tags every resource created for the reservation
// carries.
func DefaultTags(name string, r models.Reservation) Tags {
	return Tags{m: map[string]string{
		TagKeyName:          name,
		TagKeyCreatedBy:     TagDefaultCreatedBy,
		TagKeyBlueprint:     r.Blueprint,
		TagKeyOwner:         r.Owner,
		TagKeyDomain:        r.Domain,
		TagKeyReservationID: r.ID,
	}}
}

// SecurityGroupTags returns the default tags plus the security group
// isolation and type markers.
func SecurityGroupTags(name string, r models.Reservation, isolation IsolationTag, typ SecurityGroupType) Tags {
	return DefaultTags(name, r).
		With(TagKeyIsolation, string(isolation)).
		With(TagKeyType, string(typ))
}

func (t Tags) Get(key string) (string, bool) {
	v, ok := t.m[key]
	return v, ok
}

func (t Tags) Name() string          { return t.m[TagKeyName] }
func (t Tags) ReservationID() string { return t.m[TagKeyReservationID] }
func (t Tags) Len() int              { return len(t.m) }

func (t Tags) With(key, value string) Tags {
	m := maps.Clone(t.m)
	if m == nil {
		m = map[string]string{}
	}
	m[key] = value
	return Tags{m: m}
}

// WithIsPublic records whether a subnet is public. Values are "True" and
// "False" for compatibility with resources tagged by earlier versions.
func (t Tags) WithIsPublic(public bool) Tags {
	v := "False"
	if public {
		v = "True"
	}
	return t.With(TagKeyIsPublic, v)
}

// Merge returns t with the custom tags added. Custom values win.
func (t Tags) Merge(custom map[string]string) Tags {
	m := maps.Clone(t.m)
	if m == nil {
		m = map[string]string{}
	}
	maps.Copy(m, custom)
	return Tags{m: m}
}

// EC2 renders the tags sorted by key.
func (t Tags) EC2() []types.Tag {
	out := make([]types.Tag, 0, len(t.m))
	for _, k := range slices.Sorted(maps.Keys(t.m)) {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(t.m[k])})
	}
	return out
}

func (t Tags) Specification(rt types.ResourceType) []types.TagSpecification {
	return []types.TagSpecification{{ResourceType: rt, Tags: t.EC2()}}
}

func (t Tags) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(t.m)) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", k, t.m[k])
	}
	b.WriteByte('}')
	return b.String()
}

var ErrTagsCreate = fmt.Errorf("failed to tag resources")

// Tagger writes tags, retrying while freshly created resources are not yet
// visible to CreateTags.
type Tagger struct {
	client   API
	attempts int
	interval time.Duration
}

func NewTagger(client API, attempts int, interval time.Duration) *Tagger {
	if attempts < 1 {
		attempts = 1
	}
	return &Tagger{client: client, attempts: attempts, interval: interval}
}

func (tg *Tagger) Set(ctx context.Context, tags Tags, resourceIDs ...string) error {
	log := clog.FromContext(ctx).With("resources", resourceIDs)

	var (
		attempts int
		lastErr  error
	)
	err := wait.ExponentialBackoffWithContext(ctx, wait.Backoff{
		Duration: tg.interval,
		Factor:   1,
		Steps:    tg.attempts,
	}, func(ctx context.Context) (bool, error) {
		attempts++
		_, lastErr = tg.client.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: resourceIDs,
			Tags:      tags.EC2(),
		})
		if lastErr != nil {
			log.Debug(fmt.Sprintf("tagging failed attempt [%d/%d]", attempts, tg.attempts), "error", lastErr)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return fmt.Errorf("%w: %w", ErrTagsCreate, lastErr)
	}
	return nil
}
