// Package results stores step results in S3, so that steps running as separate jobs can read the
// results of their parents.
package results

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
	"github.com/askiada/go-evalpipeline/pkg/pipeline"
)

// S3API is the part of the S3 client used by the store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the result of each step at <prefix>/steps/<step>.json.
type S3Store struct {
	client S3API
	prefix s3uri.Location
}

func NewS3Store(client S3API, outputPath string) (*S3Store, error) {
	loc, err := s3uri.Parse(outputPath)
	if err != nil {
		return nil, err
	}

	return &S3Store{client: client, prefix: loc}, nil
}

func (s *S3Store) location(step string) s3uri.Location {
	return s3uri.Location{Bucket: s.prefix.Bucket, Key: s3uri.Join(s.prefix.Key, "steps", step+".json")}
}

// URI returns where the result of step is stored.
func (s *S3Store) URI(step string) string {
	return s.location(step).String()
}

func (s *S3Store) Save(ctx context.Context, step string, data []byte) error {
	loc := s.location(step)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.Wrapf(err, "unable to put %s", loc)
	}

	return nil
}

func (s *S3Store) Load(ctx context.Context, step string) ([]byte, error) {
	loc := s.location(step)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, errors.Wrap(pipeline.ErrResultNotFound, step)
		}

		return nil, errors.Wrapf(err, "unable to get %s", loc)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", loc)
	}

	return data, nil
}

var _ pipeline.ResultStore = (*S3Store)(nil)
