// Package storage reads job output from S3: it lists the Parquet files a
// job wrote under its partition folders and fetches individual objects.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/campaign-dashboard/internal/domain"
)

// DefaultRegion is used when neither the provider nor the environment names
// one.
const DefaultRegion = "ap-northeast-2"

// ErrInvalidURI is returned for paths that are not s3://bucket/key.
var ErrInvalidURI = errors.New("storage: invalid s3 uri")

// S3API is the subset of the S3 client used here.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store lists and reads job output objects.
type S3Store struct {
	client S3API
}

// NewS3Store wraps an existing client.
func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client}
}

// NewS3StoreFromProvider builds a client from cube provider details. Static
// credentials are used when present, otherwise the default AWS chain.
func NewS3StoreFromProvider(ctx context.Context, details domain.S3ProviderDetails, fallbackRegion string) (*S3Store, error) {
	region := details.Region
	if region == "" {
		region = fallbackRegion
	}
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if details.HasCredentials() {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(details.AccessKeyID, details.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(cfg)), nil
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// ListFiles returns s3:// URIs of every object under each seed, in seed
// order. Seeds are listed one after another. A key equal to its seed (a
// folder marker) is skipped.
func (s *S3Store) ListFiles(ctx context.Context, seeds []string) ([]string, error) {
	var out []string
	for _, seed := range seeds {
		bucket, prefix, err := ParseURI(seed)
		if err != nil {
			return nil, err
		}
		p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("listing %s: %w", seed, err)
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				if key == prefix || key == prefix+"/" {
					continue
				}
				out = append(out, "s3://"+bucket+"/"+key)
			}
		}
	}
	return out, nil
}

// Get reads a whole object.
func (s *S3Store) Get(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object from S3 bucket %s: %w", bucket, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object body: %w", err)
	}
	return data, nil
}

// GetJSON reads an object and decodes it into target.
func (s *S3Store) GetJSON(ctx context.Context, uri string, target any) error {
	data, err := s.Get(ctx, uri)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshaling S3 data: %w", err)
	}
	return nil
}
