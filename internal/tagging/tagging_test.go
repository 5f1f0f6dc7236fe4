package tagging_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagflow/internal/domain"
	"tagflow/internal/tagging"
)

func TestDescribeDefaults(t *testing.T) {
	d := tagging.Defaults{}
	desc := d.Describe(domain.Resource{ID: 101, ResourceID: "i-0abc"})
	assert.Equal(t, tagging.Descriptor{ResourceID: "i-0abc", ResourceType: "EC2", Region: "us-east-2"}, desc)

	desc = tagging.Defaults{Region: "eu-west-1"}.Describe(domain.Resource{ID: 7, Type: "RDS", Region: ""})
	assert.Equal(t, "7", desc.ResourceID)
	assert.Equal(t, "RDS", desc.ResourceType)
	assert.Equal(t, "eu-west-1", desc.Region)

	desc = d.Describe(domain.Resource{ID: 1, ResourceID: "vol-1", ResourceType: "EBS", Type: "legacy", Region: "us-west-2"})
	assert.Equal(t, "EBS", desc.ResourceType)
	assert.Equal(t, "us-west-2", desc.Region)
}

func TestHTTPExecutorCreateAndDelete(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Bearer svc", r.Header.Get("Authorization"))
		mu.Lock()
		bodies[r.URL.Path] = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := tagging.NewHTTPExecutor(srv.URL+"/", "svc", time.Second, tagging.Defaults{}, nil)
	ctx := context.Background()
	require.NoError(t, exec.Apply(ctx, tagging.Descriptor{ResourceID: "i-1"}, tagging.Pair{Key: "Environment", Value: "Prod"}))
	require.NoError(t, exec.Remove(ctx, tagging.Pair{Key: "Owner", Value: "TeamA"}, []tagging.Descriptor{{ResourceID: "i-2", Region: "eu-west-1"}}))

	create := bodies["/tag-create"]
	require.NotNil(t, create)
	assert.Equal(t, "i-1", create["resourceId"])
	assert.Equal(t, "EC2", create["resourceType"])
	assert.Equal(t, "us-east-2", create["region"])
	assert.Equal(t, map[string]any{"Environment": "Prod"}, create["tags"])

	del := bodies["/tag-delete"]
	require.NotNil(t, del)
	assert.Equal(t, "Owner", del["key"])
	assert.Equal(t, "TeamA", del["value"])
	resources := del["resources"].([]any)
	require.Len(t, resources, 1)
	assert.Equal(t, "eu-west-1", resources[0].(map[string]any)["region"])
}

func TestHTTPExecutorNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	exec := tagging.NewHTTPExecutor(srv.URL, "", time.Second, tagging.Defaults{}, nil)
	err := exec.Apply(context.Background(), tagging.Descriptor{ResourceID: "i-1"}, tagging.Pair{Key: "k", Value: "v"})
	var apiErr *tagging.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "tag-create", apiErr.Op)
	assert.Equal(t, "throttled", apiErr.Body)
}

type fakeEC2 struct {
	mu      sync.Mutex
	creates []*ec2.CreateTagsInput
	deletes map[string]*ec2.DeleteTagsInput
	err     error
}

func regionOf(optFns []func(*ec2.Options)) string {
	var o ec2.Options
	for _, fn := range optFns {
		fn(&o)
	}
	return o.Region
}

func (f *fakeEC2) CreateTags(ctx context.Context, in *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, in)
	return &ec2.CreateTagsOutput{}, f.err
}

func (f *fakeEC2) DeleteTags(ctx context.Context, in *ec2.DeleteTagsInput, optFns ...func(*ec2.Options)) (*ec2.DeleteTagsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deletes == nil {
		f.deletes = map[string]*ec2.DeleteTagsInput{}
	}
	f.deletes[regionOf(optFns)] = in
	return &ec2.DeleteTagsOutput{}, f.err
}

func TestEC2ExecutorGroupsByRegion(t *testing.T) {
	fake := &fakeEC2{}
	exec := &tagging.EC2Executor{Client: fake}
	ctx := context.Background()

	require.NoError(t, exec.Apply(ctx, tagging.Descriptor{ResourceID: "i-1"}, tagging.Pair{Key: "Environment", Value: "Prod"}))
	require.Len(t, fake.creates, 1)
	assert.Equal(t, []string{"i-1"}, fake.creates[0].Resources)
	assert.Equal(t, "Environment", aws.ToString(fake.creates[0].Tags[0].Key))
	assert.Equal(t, "Prod", aws.ToString(fake.creates[0].Tags[0].Value))

	err := exec.Remove(ctx, tagging.Pair{Key: "Owner", Value: "TeamA"}, []tagging.Descriptor{
		{ResourceID: "i-1"},
		{ResourceID: "i-2", Region: "eu-west-1"},
		{ResourceID: "i-3", Region: "us-east-2"},
	})
	require.NoError(t, err)
	require.Len(t, fake.deletes, 2)
	assert.Equal(t, []string{"i-1", "i-3"}, fake.deletes["us-east-2"].Resources)
	assert.Equal(t, []string{"i-2"}, fake.deletes["eu-west-1"].Resources)
}

func TestEC2ExecutorWrapsErrors(t *testing.T) {
	boom := errors.New("UnauthorizedOperation")
	exec := &tagging.EC2Executor{Client: &fakeEC2{err: boom}}
	err := exec.Apply(context.Background(), tagging.Descriptor{ResourceID: "i-1"}, tagging.Pair{Key: "k", Value: "v"})
	require.ErrorIs(t, err, boom)
}

func TestRecorderFailHook(t *testing.T) {
	boom := errors.New("boom")
	rec := &tagging.Recorder{FailCreate: func(d tagging.Descriptor, p tagging.Pair) error {
		if d.ResourceID == "i-bad" {
			return boom
		}
		return nil
	}}
	ctx := context.Background()
	require.NoError(t, rec.Apply(ctx, tagging.Descriptor{ResourceID: "i-ok"}, tagging.Pair{Key: "k", Value: "v"}))
	require.ErrorIs(t, rec.Apply(ctx, tagging.Descriptor{ResourceID: "i-bad"}, tagging.Pair{Key: "k", Value: "v"}), boom)
	require.NoError(t, rec.Remove(ctx, tagging.Pair{Key: "k", Value: "v"}, nil))

	creates := rec.Creates()
	require.Len(t, creates, 1)
	assert.Equal(t, "us-east-2", creates[0].Resource.Region)
	assert.Len(t, rec.Deletes(), 1)
}
