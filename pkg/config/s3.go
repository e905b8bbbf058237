package config

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
)

// ObjectGetter is the part of the S3 client used to read a configuration.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LoadFromS3 reads the configuration stored at an s3:// uri. Remote steps use it to read the file
// uploaded when the pipeline was submitted.
func LoadFromS3(ctx context.Context, client ObjectGetter, uri string) (*Config, error) {
	loc, err := s3uri.Parse(uri)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get config %s", uri)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config %s", uri)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load config %s", uri)
	}

	return cfg, nil
}
