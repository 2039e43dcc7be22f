// Package s3 implements the S3-compatible storage backend. It serves both the
// platform default bucket and user-configured custom providers (AWS S3,
// Tigris, MinIO, and other S3-compatible services via a configurable
// endpoint). Object bytes never transit the application: uploads and
// downloads use presigned URLs, and large files use client-driven multipart
// uploads where the server only mints part URLs and reconciles ETags.
package s3

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/easybits/easybits/internal/storage"
)

// tigrisEndpoint is the default endpoint for the Tigris provider type when
// none is configured explicitly.
const tigrisEndpoint = "https://fly.storage.tigris.dev"

func init() {
	storage.Register("s3", func(cfg storage.BackendConfig) (storage.Client, error) {
		return New(cfg)
	})
	storage.Register("tigris", func(cfg storage.BackendConfig) (storage.Client, error) {
		if cfg.Endpoint == "" {
			cfg.Endpoint = tigrisEndpoint
		}
		return New(cfg)
	})
}

// S3Client implements the storage.Client interface for S3-compatible storage.
type S3Client struct {
	client        *awss3.Client
	presignClient *awss3.PresignClient
	bucket        string
	namespace     string
}

// New creates a new S3-compatible storage client.
//
// With empty AccessKeyID/SecretAccessKey the AWS default credential chain is
// used (env vars, shared config, IAM role); with both set, static credentials
// are used. Custom providers always carry static credentials.
func New(cfg storage.BackendConfig) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible services generally require path-style addressing
			o.UsePathStyle = true
		})
	}

	client := awss3.NewFromConfig(awsCfg, s3Opts...)

	return &S3Client{
		client:        client,
		presignClient: awss3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		namespace:     cfg.KeyNamespace,
	}, nil
}

// objectKey applies the deployment namespace prefix.
func (s *S3Client) objectKey(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + "/" + key
}

// PresignPut returns a presigned PUT URL for the object at key.
func (s *S3Client) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = storage.DefaultURLExpiry
	}

	input := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	request, err := s.presignClient.PresignPutObject(ctx, input, func(opts *awss3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign PUT: %w", err)
	}

	return request.URL, nil
}

// PresignGet returns a presigned GET URL for the object at key.
func (s *S3Client) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = storage.DefaultURLExpiry
	}

	request, err := s.presignClient.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}, func(opts *awss3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign GET: %w", err)
	}

	return request.URL, nil
}

// DeleteObject removes the object. S3 DeleteObject succeeds on missing keys,
// which gives us the idempotency the purge job depends on for free.
func (s *S3Client) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CopyObject copies srcKey to dstKey within the bucket.
func (s *S3Client) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.objectKey(dstKey)),
		CopySource: aws.String(s.bucket + "/" + s.objectKey(srcKey)),
	})
	if err != nil {
		return fmt.Errorf("failed to copy object: %w", err)
	}
	return nil
}

// CreateMultipart initiates a multipart upload session.
func (s *S3Client) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	input := &awss3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	resp, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrBackendUnavailable, err)
	}

	return aws.ToString(resp.UploadId), nil
}

// PresignPutPart returns a presigned URL for uploading one part.
func (s *S3Client) PresignPutPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = storage.DefaultURLExpiry
	}

	request, err := s.presignClient.PresignUploadPart(ctx, &awss3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.objectKey(key)),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, func(opts *awss3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign part %d: %w", partNumber, err)
	}

	return request.URL, nil
}

// CompleteMultipart finalizes a multipart upload from the ordered part list.
func (s *S3Client) CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) error {
	if !storage.OrderedParts(parts) {
		return storage.ErrIncompleteParts
	}

	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &awss3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.objectKey(key)),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		// The backend is the final authority on part ordering and presence;
		// translate its rejection into the same error the local check uses.
		if strings.Contains(err.Error(), "InvalidPart") {
			return storage.ErrIncompleteParts
		}
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	return nil
}

// AbortMultipart discards an open multipart session and its uploaded parts.
func (s *S3Client) AbortMultipart(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.objectKey(key)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}

// EnsureCORS makes sure the bucket allows browser PUT/GET from the given
// origins. The rule set is only written when it differs from what is already
// configured, since CORS is a bucket-level setting shared by every object.
func (s *S3Client) EnsureCORS(ctx context.Context, origins []string) error {
	if len(origins) == 0 {
		return nil
	}

	current, err := s.client.GetBucketCors(ctx, &awss3.GetBucketCorsInput{
		Bucket: aws.String(s.bucket),
	})
	// NoSuchCORSConfiguration means no rules yet; anything else is a real error.
	if err != nil && !strings.Contains(err.Error(), "NoSuchCORSConfiguration") {
		return fmt.Errorf("failed to read bucket CORS: %w", err)
	}

	if current != nil && len(current.CORSRules) > 0 {
		existing := make([]string, 0)
		for _, rule := range current.CORSRules {
			existing = append(existing, rule.AllowedOrigins...)
		}
		if sameOrigins(existing, origins) {
			return nil
		}
	}

	_, err = s.client.PutBucketCors(ctx, &awss3.PutBucketCorsInput{
		Bucket: aws.String(s.bucket),
		CORSConfiguration: &types.CORSConfiguration{
			CORSRules: []types.CORSRule{
				{
					AllowedOrigins: origins,
					AllowedMethods: []string{"GET", "PUT", "HEAD"},
					AllowedHeaders: []string{"*"},
					ExposeHeaders:  []string{"ETag"},
					MaxAgeSeconds:  aws.Int32(3600),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update bucket CORS: %w", err)
	}

	return nil
}

// Ping verifies the bucket is reachable with the configured credentials.
func (s *S3Client) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrBackendUnavailable, err)
	}
	return nil
}

func sameOrigins(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
