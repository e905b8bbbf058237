package steps

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
	"github.com/askiada/go-evalpipeline/pkg/config"
)

const (
	defaultConcurrency = 8
	jsonLinesExtension = ".jsonl"
	// maxRecordSize bounds a single JSON Lines record.
	maxRecordSize = 16 * 1024 * 1024
)

var ErrNoRecords = errors.New("no usable record in dataset")

// S3API is the part of the S3 client used by the preprocess step.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Preprocessor filters a JSON Lines dataset down to the records carrying both the model input and the
// target output keys.
type Preprocessor struct {
	client      S3API
	dataset     config.Dataset
	concurrency int
}

func NewPreprocessor(client S3API, dataset config.Dataset, concurrency int) *Preprocessor {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Preprocessor{
		client:      client,
		dataset:     dataset,
		concurrency: concurrency,
	}
}

// DatasetURI is where Preprocess writes the dataset for outputPath.
func DatasetURI(outputPath string, dataset config.Dataset) string {
	return s3uri.Join(outputPath, dataset.DatasetName+jsonLinesExtension)
}

// Preprocess reads every object under inputPath and writes the kept records to the dataset file under
// outputPath. It returns outputPath unchanged.
func (p *Preprocessor) Preprocess(ctx context.Context, inputPath, outputPath string) (string, error) {
	in, err := s3uri.Parse(inputPath)
	if err != nil {
		return "", err
	}

	keys, err := p.list(ctx, in)
	if err != nil {
		return "", err
	}

	log := logrus.WithFields(logrus.Fields{"step": "preprocess", "input": inputPath})
	log.Infof("filtering %d objects", len(keys))

	parts := make([][]byte, len(keys))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)
	for i, key := range keys {
		eg.Go(func() error {
			part, err := p.filter(egCtx, in.Bucket, key)
			if err != nil {
				return err
			}
			parts[i] = part

			return nil
		})
	}

	err = eg.Wait()
	if err != nil {
		return "", err
	}

	content := bytes.Join(parts, nil)
	if len(content) == 0 {
		return "", errors.Wrap(ErrNoRecords, inputPath)
	}

	dest, err := s3uri.Parse(DatasetURI(outputPath, p.dataset))
	if err != nil {
		return "", err
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(dest.Bucket),
		Key:         aws.String(dest.Key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(p.dataset.DatasetMimeType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "unable to write %s", dest)
	}
	log.WithField("output", dest.String()).Info("dataset written")

	return outputPath, nil
}

// list returns the object keys under loc, which is either a single object or a folder. A key
// without a trailing slash names the object when it exists, the folder otherwise: siblings sharing
// its prefix are never read.
func (p *Preprocessor) list(ctx context.Context, loc s3uri.Location) ([]string, error) {
	var keys []string

	folder := loc.Key
	if folder != "" && !strings.HasSuffix(folder, "/") {
		folder += "/"
	}

	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(loc.Bucket),
		Prefix: aws.String(loc.Key),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to list %s", loc)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == loc.Key && key != folder {
				return []string{key}, nil
			}
			if strings.HasSuffix(key, "/") || !strings.HasPrefix(key, folder) {
				continue
			}
			keys = append(keys, key)
		}
	}

	if len(keys) == 0 {
		return nil, errors.Wrap(ErrNoRecords, loc.String())
	}

	return keys, nil
}

func (p *Preprocessor) filter(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get %s", s3uri.Location{Bucket: bucket, Key: key})
	}
	defer obj.Body.Close()

	var out bytes.Buffer

	scanner := bufio.NewScanner(obj.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record map[string]json.RawMessage
		if json.Unmarshal(line, &record) != nil {
			continue
		}
		if _, ok := record[p.dataset.ModelInputKey]; !ok {
			continue
		}
		if _, ok := record[p.dataset.TargetOutputKey]; !ok {
			continue
		}

		out.Write(line)
		out.WriteByte('\n')
	}

	err = scanner.Err()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", key)
	}

	return out.Bytes(), nil
}
