package jumpstart

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
)

const manifestKey = "models_manifest.json"

var (
	ErrModelNotFound   = errors.New("model not found in catalog")
	ErrVersionNotFound = errors.New("no catalog version matches")
)

// ObjectGetter is the part of the S3 client used to read the catalog.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// BucketForRegion returns the bucket holding the catalog of region.
func BucketForRegion(region string) string {
	return "jumpstart-cache-prod-" + region
}

type manifestEntry struct {
	ModelID    string `json:"model_id"`
	Version    string `json:"version"`
	MinVersion string `json:"min_version"`
	SpecKey    string `json:"spec_key"`
}

type instanceVariant struct {
	Properties struct {
		ImageURI string `json:"image_uri"`
	} `json:"properties"`
}

// ModelSpec is the part of a catalog model specification used to train and host the model.
type ModelSpec struct {
	ModelID                     string            `json:"model_id"`
	Version                     string            `json:"version"`
	HostingEcrURI               string            `json:"hosting_ecr_uri"`
	HostingArtifactKey          string            `json:"hosting_artifact_key"`
	HostingPrepackedArtifactKey string            `json:"hosting_prepacked_artifact_key"`
	HostingEnvVars              map[string]string `json:"hosting_env_vars"`
	HostingInstanceTypeVariants struct {
		Variants map[string]instanceVariant `json:"variants"`
	} `json:"hosting_instance_type_variants"`
	TrainingSupported   bool   `json:"training_supported"`
	TrainingEcrURI      string `json:"training_ecr_uri"`
	TrainingArtifactKey string `json:"training_artifact_key"`
	TrainingScriptKey   string `json:"training_script_key"`

	bucket string
}

// HostingImage returns the inference image for instanceType. Variants are looked up by instance type,
// then by instance family (g5 for ml.g5.2xlarge).
func (m *ModelSpec) HostingImage(instanceType string) string {
	variants := m.HostingInstanceTypeVariants.Variants
	if v, ok := variants[instanceType]; ok && v.Properties.ImageURI != "" {
		return v.Properties.ImageURI
	}
	if v, ok := variants[instanceFamily(instanceType)]; ok && v.Properties.ImageURI != "" {
		return v.Properties.ImageURI
	}

	return m.HostingEcrURI
}

// HostingArtifact returns the location of the inference artifacts. A trailing slash means the
// artifacts are an uncompressed prefix.
func (m *ModelSpec) HostingArtifact() string {
	key := m.HostingPrepackedArtifactKey
	if key == "" {
		key = m.HostingArtifactKey
	}

	return s3uri.Location{Bucket: m.bucket, Key: key}.String()
}

func (m *ModelSpec) TrainingArtifact() string {
	return s3uri.Location{Bucket: m.bucket, Key: m.TrainingArtifactKey}.String()
}

func (m *ModelSpec) TrainingScript() string {
	return s3uri.Location{Bucket: m.bucket, Key: m.TrainingScriptKey}.String()
}

func instanceFamily(instanceType string) string {
	parts := strings.Split(instanceType, ".")
	if len(parts) < 3 {
		return instanceType
	}

	return parts[1]
}

// Catalog reads model specifications from the JumpStart cache bucket.
type Catalog struct {
	client ObjectGetter
	bucket string

	mu       sync.Mutex
	manifest []manifestEntry
	specs    map[string]*ModelSpec
}

func NewCatalog(client ObjectGetter, bucket string) *Catalog {
	return &Catalog{
		client: client,
		bucket: bucket,
		specs:  make(map[string]*ModelSpec),
	}
}

func (c *Catalog) getJSON(ctx context.Context, key string, out any) error {
	obj, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "unable to get %s", s3uri.Location{Bucket: c.bucket, Key: key})
	}
	defer obj.Body.Close()

	content, err := io.ReadAll(obj.Body)
	if err != nil {
		return errors.Wrapf(err, "unable to read %s", key)
	}

	err = json.Unmarshal(content, out)
	if err != nil {
		return errors.Wrapf(err, "unable to decode %s", key)
	}

	return nil
}

func (c *Catalog) loadManifest(ctx context.Context) ([]manifestEntry, error) {
	if c.manifest != nil {
		return c.manifest, nil
	}

	var manifest []manifestEntry
	err := c.getJSON(ctx, manifestKey, &manifest)
	if err != nil {
		return nil, err
	}
	c.manifest = manifest

	return manifest, nil
}

// Spec returns the specification of modelID at modelVersion. The version is an exact version, "*"
// for the latest one, or a prefix such as "2.*".
func (c *Catalog) Spec(ctx context.Context, modelID, modelVersion string) (*ModelSpec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	manifest, err := c.loadManifest(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := resolve(manifest, modelID, modelVersion)
	if err != nil {
		return nil, err
	}

	if spec, ok := c.specs[entry.SpecKey]; ok {
		return spec, nil
	}

	spec := &ModelSpec{}
	err = c.getJSON(ctx, entry.SpecKey, spec)
	if err != nil {
		return nil, err
	}
	spec.bucket = c.bucket
	c.specs[entry.SpecKey] = spec

	return spec, nil
}

func matches(candidate *version.Version, pattern string) bool {
	if pattern == "*" {
		return true
	}

	prefix, wildcard := strings.CutSuffix(pattern, ".*")
	if !wildcard {
		want, err := version.NewVersion(pattern)

		return err == nil && candidate.Equal(want)
	}

	wantSegments := strings.Split(prefix, ".")
	gotSegments := candidate.Segments()
	if len(wantSegments) > len(gotSegments) {
		return false
	}
	for i, s := range wantSegments {
		want, err := version.NewVersion(s)
		if err != nil || want.Segments()[0] != gotSegments[i] {
			return false
		}
	}

	return true
}

func resolve(manifest []manifestEntry, modelID, pattern string) (manifestEntry, error) {
	var (
		best        manifestEntry
		bestVersion *version.Version
		known       bool
	)

	for _, entry := range manifest {
		if entry.ModelID != modelID {
			continue
		}
		known = true

		v, err := version.NewVersion(entry.Version)
		if err != nil {
			continue
		}
		if !matches(v, pattern) {
			continue
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			best, bestVersion = entry, v
		}
	}

	if !known {
		return manifestEntry{}, errors.Wrap(ErrModelNotFound, modelID)
	}
	if bestVersion == nil {
		return manifestEntry{}, errors.Wrapf(ErrVersionNotFound, "%s %s", modelID, pattern)
	}

	return best, nil
}
