package directory

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"chordmr/internal/config"
)

// recordTTL is long enough to avoid hammering Route 53 on every
// stabilize tick, short enough that a dead node's record does not
// linger for long after Deregister runs.
const recordTTL = 30

// Route53 implements Directory against a private hosted zone: each
// member gets a TXT record at mapreduce.node.<NodeId>.<DomainSuffix>
// holding its advertised host:port (no A record is written), and
// List/Discover enumerate every such record under that zone.
type Route53 struct {
	client       *route53.Client
	hostedZoneID string
	domainSuffix string
}

func NewRoute53(ctx context.Context, cfg config.Route53Config) (*Route53, error) {
	if cfg.HostedZoneID == "" {
		return nil, fmt.Errorf("directory: route53 hosted_zone_id is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("directory: load aws config: %w", err)
	}
	return &Route53{
		client:       route53.NewFromConfig(awsCfg),
		hostedZoneID: cfg.HostedZoneID,
		domainSuffix: cfg.DomainSuffix,
	}, nil
}

func (r *Route53) recordName(nodeID string) string {
	return fmt.Sprintf("mapreduce.node.%s.%s.", nodeID, strings.Trim(r.domainSuffix, "."))
}

func (r *Route53) Discover(ctx context.Context) ([]string, error) {
	return r.List(ctx)
}

func (r *Route53) Register(ctx context.Context, id, addr string) error {
	host, _, _ := strings.Cut(addr, ":")
	if host == "" {
		host = addr
	}
	name := r.recordName(id)
	_, err := r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &r.hostedZoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action: types.ChangeActionUpsert,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name: &name,
						Type: types.RRTypeTxt,
						TTL:  awsInt64(recordTTL),
						ResourceRecords: []types.ResourceRecord{
							{Value: quoted(addr)},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("directory: register %s: %w", id, err)
	}
	return nil
}

func (r *Route53) Deregister(ctx context.Context, id string) error {
	name := r.recordName(id)
	existing, err := r.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    &r.hostedZoneID,
		StartRecordName: &name,
		StartRecordType: types.RRTypeTxt,
		MaxItems:        awsInt32(1),
	})
	if err != nil {
		return fmt.Errorf("directory: deregister %s: list: %w", id, err)
	}
	if len(existing.ResourceRecordSets) == 0 || *existing.ResourceRecordSets[0].Name != name {
		return nil
	}

	_, err = r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &r.hostedZoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action:            types.ChangeActionDelete,
					ResourceRecordSet: &existing.ResourceRecordSets[0],
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("directory: deregister %s: %w", id, err)
	}
	return nil
}

func (r *Route53) List(ctx context.Context) ([]string, error) {
	suffix := "." + strings.Trim(r.domainSuffix, ".") + "."
	prefix := "mapreduce.node."

	var addrs []string
	var marker *string
	for {
		out, err := r.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
			HostedZoneId:    &r.hostedZoneID,
			StartRecordName: marker,
		})
		if err != nil {
			return nil, fmt.Errorf("directory: list: %w", err)
		}
		for _, rr := range out.ResourceRecordSets {
			if rr.Type != types.RRTypeTxt || rr.Name == nil || !strings.HasPrefix(*rr.Name, prefix) || !strings.HasSuffix(*rr.Name, suffix) {
				continue
			}
			for _, v := range rr.ResourceRecords {
				if v.Value != nil {
					addrs = append(addrs, strings.Trim(*v.Value, `"`))
				}
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated || out.NextRecordName == nil {
			break
		}
		marker = out.NextRecordName
	}
	return addrs, nil
}

func quoted(s string) *string {
	v := fmt.Sprintf("%q", s)
	return &v
}

func awsInt64(v int64) *int64 { return &v }
func awsInt32(v int32) *int32 { return &v }
