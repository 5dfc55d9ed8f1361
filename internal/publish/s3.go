package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	scoreObject  = "score_output.json"
	reportObject = "report.html"
)

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
	PresignedTTL    time.Duration
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Publisher stores the score artifact and HTML report under
// <prefix>/<run id>/ in a bucket.
type S3Publisher struct {
	client       objectPutter
	presign      objectPresigner
	bucket       string
	keyPrefix    string
	presignedTTL time.Duration
}

// NewS3Publisher uses static credentials when both keys are set and the
// default AWS credential chain otherwise.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if strings.TrimSpace(cfg.Region) != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = aws.String(endpoint)
		}
		options.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Publisher(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Publisher(client objectPutter, presign objectPresigner, cfg S3Config) *S3Publisher {
	if cfg.PresignedTTL <= 0 {
		cfg.PresignedTTL = 24 * time.Hour
	}

	return &S3Publisher{
		client:       client,
		presign:      presign,
		bucket:       strings.TrimSpace(cfg.Bucket),
		keyPrefix:    strings.Trim(strings.TrimSpace(cfg.KeyPrefix), "/"),
		presignedTTL: cfg.PresignedTTL,
	}
}

// Publish returns a link to the HTML report when one was uploaded, to the
// score artifact otherwise.
func (p *S3Publisher) Publish(ctx context.Context, b *Bundle) (string, error) {
	if b == nil || b.Artifact == nil {
		return "", fmt.Errorf("nothing to publish: score artifact is missing")
	}

	data, err := json.MarshalIndent(b.Artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding score artifact: %w", err)
	}

	scoreKey := p.key(b.Artifact.RunID, scoreObject)
	if err := p.put(ctx, scoreKey, "application/json", data); err != nil {
		return "", err
	}

	if len(b.HTMLReport) == 0 {
		return p.link(ctx, scoreKey)
	}

	reportKey := p.key(b.Artifact.RunID, reportObject)
	if err := p.put(ctx, reportKey, "text/html; charset=utf-8", b.HTMLReport); err != nil {
		return "", err
	}

	return p.link(ctx, reportKey)
}

func (p *S3Publisher) key(runID, name string) string {
	return path.Join(p.keyPrefix, runID, name)
}

func (p *S3Publisher) put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &p.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s failed: %w", key, err)
	}

	return nil
}

func (p *S3Publisher) link(ctx context.Context, key string) (string, error) {
	if p.presign == nil {
		return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
	}

	request, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &p.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(p.presignedTTL))
	if err != nil {
		return "", fmt.Errorf("presign failed: %w", err)
	}

	return request.URL, nil
}
