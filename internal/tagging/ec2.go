package tagging

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"tagflow/internal/logging"
)

// EC2API is the subset of the EC2 client the executor calls.
type EC2API interface {
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteTags(ctx context.Context, params *ec2.DeleteTagsInput, optFns ...func(*ec2.Options)) (*ec2.DeleteTagsOutput, error)
}

// EC2Executor tags resources through the EC2 CreateTags/DeleteTags APIs,
// routing each call to the resource's region.
type EC2Executor struct {
	Client   EC2API
	Defaults Defaults
	Log      *zap.Logger
}

// NewEC2Executor loads the default AWS credential chain.
func NewEC2Executor(ctx context.Context, defaults Defaults, log *zap.Logger) (*EC2Executor, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(defaults.region()))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &EC2Executor{Client: ec2.NewFromConfig(cfg), Defaults: defaults, Log: logging.OrNop(log)}, nil
}

func inRegion(region string) func(*ec2.Options) {
	return func(o *ec2.Options) {
		o.Region = region
	}
}

func (e *EC2Executor) Apply(ctx context.Context, desc Descriptor, pair Pair) error {
	desc = e.Defaults.Fill(desc)
	_, err := e.Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{desc.ResourceID},
		Tags:      []ec2types.Tag{{Key: aws.String(pair.Key), Value: aws.String(pair.Value)}},
	}, inRegion(desc.Region))
	observe("create", "ec2", err)
	if err != nil {
		return fmt.Errorf("ec2 create tags %s on %s: %w", pair, desc.ResourceID, err)
	}
	return nil
}

func (e *EC2Executor) Remove(ctx context.Context, pair Pair, resources []Descriptor) error {
	byRegion := map[string][]string{}
	for _, d := range resources {
		d = e.Defaults.Fill(d)
		byRegion[d.Region] = append(byRegion[d.Region], d.ResourceID)
	}
	regions := make([]string, 0, len(byRegion))
	for r := range byRegion {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	for _, region := range regions {
		_, err := e.Client.DeleteTags(ctx, &ec2.DeleteTagsInput{
			Resources: byRegion[region],
			Tags:      []ec2types.Tag{{Key: aws.String(pair.Key), Value: aws.String(pair.Value)}},
		}, inRegion(region))
		observe("delete", "ec2", err)
		if err != nil {
			return fmt.Errorf("ec2 delete tags %s in %s: %w", pair, region, err)
		}
		logging.OrNop(e.Log).Debug("ec2 tags deleted", zap.String("region", region), zap.Int("resources", len(byRegion[region])))
	}
	return nil
}
