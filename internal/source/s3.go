package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tessera-ai/tessera/internal/domain"
)

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Client wraps the AWS SDK client for S3-compatible storage (e.g.,
// RustFS). Buckets are not fixed here; each registered source names its
// own bucket and prefix in the locator.
type S3Client struct {
	client *s3.Client
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	// Create custom resolver for S3-compatible endpoints
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	// Load AWS config
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with path-style addressing for S3-compatible services
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{client: client}, nil
}

// ParseS3Locator splits a source locator of the form "s3://bucket/prefix"
// (scheme optional) into bucket and prefix.
func ParseS3Locator(locator string) (string, string, error) {
	trimmed := strings.TrimPrefix(locator, "s3://")
	if trimmed == "" {
		return "", "", domain.NewDomainError(domain.ErrCodeValidation, "s3 locator must name a bucket")
	}
	parts := strings.SplitN(trimmed, "/", 2)
	bucket := parts[0]
	if bucket == "" {
		return "", "", domain.NewDomainError(domain.ErrCodeValidation, "s3 locator must name a bucket")
	}
	prefix := ""
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}

// knowledgeExtensions are the object suffixes treated as knowledge pages.
var knowledgeExtensions = []string{".md", ".markdown", ".txt"}

func isKnowledgeKey(key string) bool {
	if strings.HasSuffix(key, "/") {
		return false
	}
	lower := strings.ToLower(key)
	for _, ext := range knowledgeExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// S3Adapter serves knowledge pages stored as objects under one
// bucket/prefix. Object keys are the unit refs.
type S3Adapter struct {
	s3     *S3Client
	bucket string
	prefix string
}

// NewS3Adapter creates a new S3Adapter instance
func NewS3Adapter(client *S3Client, bucket, prefix string) *S3Adapter {
	return &S3Adapter{
		s3:     client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Kind returns the source kind this adapter serves
func (a *S3Adapter) Kind() domain.SourceKind {
	return domain.SourceKindKnowledgeS3
}

// ListUnits pages through ListObjectsV2 under the prefix and hashes each
// page object. S3 ETags are not content hashes for multipart uploads, so
// the content is read to produce the sha256 the change detector compares.
func (a *S3Adapter) ListUnits(ctx context.Context) ([]Unit, error) {
	var units []Unit
	var continuation *string
	for {
		out, err := a.s3.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(a.prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in %s/%s: %w", a.bucket, a.prefix, err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !isKnowledgeKey(key) {
				continue
			}
			content, err := a.getObject(ctx, key)
			if err != nil {
				return nil, err
			}
			units = append(units, Unit{
				Ref:         key,
				Name:        pageName(key),
				ContentHash: hashContent(content),
			})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuation = out.NextContinuationToken
	}
	return units, nil
}

// Fetch loads one page object by key.
func (a *S3Adapter) Fetch(ctx context.Context, ref string) (Unit, error) {
	content, err := a.getObject(ctx, ref)
	if err != nil {
		return Unit{}, err
	}
	return Unit{
		Ref:         ref,
		Name:        pageName(ref),
		ContentHash: hashContent(content),
		Content:     content,
	}, nil
}

func (a *S3Adapter) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := a.s3.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", a.bucket, key, err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", a.bucket, key, err)
	}
	return content, nil
}

// pageName strips the key down to the page's display name.
func pageName(key string) string {
	base := path.Base(key)
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// EnsureBucket creates the bucket if it doesn't exist. Used by tests and
// local bootstrap against S3-compatible servers.
func (c *S3Client) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// PutObject uploads one object. Used by tests and the local bootstrap
// path; the indexer itself only reads.
func (c *S3Client) PutObject(ctx context.Context, bucket, key string, content []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	return nil
}
