package jumpstart_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-evalpipeline/pkg/provider/jumpstart"
)

const catalogBucket = "jumpstart-cache-prod-us-east-1"

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func newFakeS3(t *testing.T) *fakeS3 {
	t.Helper()

	manifest := []map[string]string{
		{"model_id": "meta-textgeneration-llama-2-7b", "version": "2.0.1", "spec_key": "specs/llama-2.0.1.json"},
		{"model_id": "meta-textgeneration-llama-2-7b", "version": "2.1.0", "spec_key": "specs/llama-2.1.0.json"},
		{"model_id": "meta-textgeneration-llama-2-7b", "version": "3.0.0", "spec_key": "specs/llama-3.0.0.json"},
		{"model_id": "meta-textgeneration-llama-2-7b", "version": "not-a-version", "spec_key": "specs/broken.json"},
		{"model_id": "huggingface-llm-falcon-7b-instruct-bf16", "version": "1.0.0", "spec_key": "specs/falcon-1.0.0.json"},
	}
	llama := func(version string) map[string]any {
		return map[string]any{
			"model_id":              "meta-textgeneration-llama-2-7b",
			"version":               version,
			"hosting_ecr_uri":       "hosting-image:" + version,
			"hosting_artifact_key":  "artifacts/llama/" + version + "/",
			"hosting_env_vars":      map[string]string{"SM_NUM_GPUS": "1", "HF_MODEL_ID": "/opt/ml/model"},
			"training_supported":    true,
			"training_ecr_uri":      "training-image:" + version,
			"training_artifact_key": "training/llama/" + version + "/",
			"training_script_key":   "scripts/llama/sourcedir.tar.gz",
			"hosting_instance_type_variants": map[string]any{
				"variants": map[string]any{
					"g5": map[string]any{"properties": map[string]string{"image_uri": "g5-image:" + version}},
				},
			},
		}
	}
	falcon := map[string]any{
		"model_id":                       "huggingface-llm-falcon-7b-instruct-bf16",
		"version":                        "1.0.0",
		"hosting_ecr_uri":                "falcon-image",
		"hosting_prepacked_artifact_key": "artifacts/falcon/model.tar.gz",
	}

	f := &fakeS3{objects: map[string][]byte{}}
	f.put(t, "models_manifest.json", manifest)
	f.put(t, "specs/llama-2.0.1.json", llama("2.0.1"))
	f.put(t, "specs/llama-2.1.0.json", llama("2.1.0"))
	f.put(t, "specs/llama-3.0.0.json", llama("3.0.0"))
	f.put(t, "specs/falcon-1.0.0.json", falcon)

	return f
}

func (f *fakeS3) put(t *testing.T, key string, value any) {
	t.Helper()

	content, err := json.Marshal(value)
	require.NoError(t, err)
	f.objects[catalogBucket+"/"+key] = content
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets++
	content, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "no such key"}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(content))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	content, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = content

	return &s3.PutObjectOutput{}, nil
}

type fakeSageMaker struct {
	mu sync.Mutex

	endpoints      map[string]types.EndpointStatus
	trainingStatus types.TrainingJobStatus
	groupExists    bool

	models          []*sagemaker.CreateModelInput
	endpointConfigs []*sagemaker.CreateEndpointConfigInput
	createdEndpoints []*sagemaker.CreateEndpointInput
	trainingJobs    []*sagemaker.CreateTrainingJobInput
	groups          []*sagemaker.CreateModelPackageGroupInput
	packages        []*sagemaker.CreateModelPackageInput
	deleted         []string
	listPages       int
}

func newFakeSageMaker() *fakeSageMaker {
	return &fakeSageMaker{
		endpoints:      map[string]types.EndpointStatus{},
		trainingStatus: types.TrainingJobStatusCompleted,
	}
}

// ListEndpoints returns one endpoint per page so pagination is exercised.
func (f *fakeSageMaker) ListEndpoints(_ context.Context, params *sagemaker.ListEndpointsInput, _ ...func(*sagemaker.Options)) (*sagemaker.ListEndpointsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listPages++
	names := []string{"unrelated-" + aws.ToString(params.NameContains)}
	existing := make([]string, 0, len(f.endpoints))
	for name := range f.endpoints {
		existing = append(existing, name)
	}
	sort.Strings(existing)
	names = append(names, existing...)

	idx := 0
	if params.NextToken != nil {
		idx = int(aws.ToString(params.NextToken)[0] - '0')
	}

	out := &sagemaker.ListEndpointsOutput{}
	if idx < len(names) {
		out.Endpoints = []types.EndpointSummary{{
			EndpointName:   aws.String(names[idx]),
			EndpointStatus: f.endpoints[names[idx]],
		}}
	}
	if idx+1 < len(names) {
		out.NextToken = aws.String(string(rune('0' + idx + 1)))
	}

	return out, nil
}

func (f *fakeSageMaker) DescribeEndpoint(_ context.Context, params *sagemaker.DescribeEndpointInput, _ ...func(*sagemaker.Options)) (*sagemaker.DescribeEndpointOutput, error) {
	return &sagemaker.DescribeEndpointOutput{
		EndpointName:   params.EndpointName,
		EndpointStatus: types.EndpointStatusInService,
	}, nil
}

func (f *fakeSageMaker) DescribeTrainingJob(_ context.Context, params *sagemaker.DescribeTrainingJobInput, _ ...func(*sagemaker.Options)) (*sagemaker.DescribeTrainingJobOutput, error) {
	return &sagemaker.DescribeTrainingJobOutput{
		TrainingJobName:   params.TrainingJobName,
		TrainingJobStatus: f.trainingStatus,
		StoppingCondition: &types.StoppingCondition{MaxRuntimeInSeconds: aws.Int32(3600)},
		ModelArtifacts: &types.ModelArtifacts{
			S3ModelArtifacts: aws.String("s3://bucket/output/finetune/" + aws.ToString(params.TrainingJobName) + "/output/model"),
		},
	}, nil
}

func (f *fakeSageMaker) CreateModel(_ context.Context, params *sagemaker.CreateModelInput, _ ...func(*sagemaker.Options)) (*sagemaker.CreateModelOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.models = append(f.models, params)

	return &sagemaker.CreateModelOutput{}, nil
}

func (f *fakeSageMaker) CreateEndpointConfig(_ context.Context, params *sagemaker.CreateEndpointConfigInput, _ ...func(*sagemaker.Options)) (*sagemaker.CreateEndpointConfigOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.endpointConfigs = append(f.endpointConfigs, params)

	return &sagemaker.CreateEndpointConfigOutput{}, nil
}

func (f *fakeSageMaker) CreateEndpoint(_ context.Context, params *sagemaker.CreateEndpointInput, _ ...func(*sagemaker.Options)) (*sagemaker.CreateEndpointOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createdEndpoints = append(f.createdEndpoints, params)
	f.endpoints[aws.ToString(params.EndpointName)] = types.EndpointStatusInService

	return &sagemaker.CreateEndpointOutput{}, nil
}

func (f *fakeSageMaker) CreateTrainingJob(_ context.Context, params *sagemaker.CreateTrainingJobInput, _ ...func(*sagemaker.Options)) (*sagemaker.CreateTrainingJobOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trainingJobs = append(f.trainingJobs, params)

	return &sagemaker.CreateTrainingJobOutput{}, nil
}

func (f *fakeSageMaker) DescribeModelPackageGroup(_ context.Context, params *sagemaker.DescribeModelPackageGroupInput, _ ...func(*sagemaker.Options)) (*sagemaker.DescribeModelPackageGroupOutput, error) {
	if !f.groupExists {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "does not exist"}
	}

	return &sagemaker.DescribeModelPackageGroupOutput{ModelPackageGroupName: params.ModelPackageGroupName}, nil
}

func (f *fakeSageMaker) CreateModelPackageGroup(_ context.Context, params *sagemaker.CreateModelPackageGroupInput, _ ...func(*sagemaker.Options)) (*sagemaker.CreateModelPackageGroupOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.groups = append(f.groups, params)
	f.groupExists = true

	return &sagemaker.CreateModelPackageGroupOutput{}, nil
}

func (f *fakeSageMaker) CreateModelPackage(_ context.Context, params *sagemaker.CreateModelPackageInput, _ ...func(*sagemaker.Options)) (*sagemaker.CreateModelPackageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.packages = append(f.packages, params)

	return &sagemaker.CreateModelPackageOutput{
		ModelPackageArn: aws.String("arn:aws:sagemaker:us-east-1:123456789012:model-package/" + aws.ToString(params.ModelPackageGroupName) + "/1"),
	}, nil
}

func (f *fakeSageMaker) DeleteEndpoint(_ context.Context, params *sagemaker.DeleteEndpointInput, _ ...func(*sagemaker.Options)) (*sagemaker.DeleteEndpointOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, "endpoint/"+aws.ToString(params.EndpointName))
	delete(f.endpoints, aws.ToString(params.EndpointName))

	return &sagemaker.DeleteEndpointOutput{}, nil
}

func (f *fakeSageMaker) DeleteEndpointConfig(_ context.Context, params *sagemaker.DeleteEndpointConfigInput, _ ...func(*sagemaker.Options)) (*sagemaker.DeleteEndpointConfigOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, "endpoint-config/"+aws.ToString(params.EndpointConfigName))

	return &sagemaker.DeleteEndpointConfigOutput{}, nil
}

var _ jumpstart.SageMakerAPI = (*fakeSageMaker)(nil)

func newProvider(t *testing.T) (*jumpstart.Provider, *fakeSageMaker, *fakeS3) {
	t.Helper()

	sm := newFakeSageMaker()
	s3c := newFakeS3(t)
	prov := jumpstart.New(sm, s3c, jumpstart.NewCatalog(s3c, catalogBucket), jumpstart.Settings{
		RoleArn:     "arn:aws:iam::123456789012:role/evaluation",
		InputPath:   "s3://bucket/input",
		OutputPath:  "s3://bucket/output",
		WaitTimeout: time.Minute,
		Now: func() time.Time {
			return time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)
		},
	})

	return prov, sm, s3c
}
