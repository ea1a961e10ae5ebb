// Package publish uploads bounced takes to S3 or an S3-compatible store.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/melophonic/audiotest/pkg/audio"
	"github.com/melophonic/audiotest/pkg/config"
	"github.com/melophonic/audiotest/pkg/logger"
)

// ErrNotConfigured is returned when no bucket is configured
var ErrNotConfigured = errors.New("publishing is not configured")

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads files to one bucket
type Publisher struct {
	client   objectPutter
	bucket   string
	prefix   string
	region   string
	endpoint string
}

// New builds a publisher from cfg. It returns ErrNotConfigured when
// cfg has no bucket.
func New(ctx context.Context, cfg config.PublishConfig) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	var configOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		})
	} else if cfg.UsePathStyle {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Publisher{
		client:   s3.NewFromConfig(awsCfg, clientOpts...),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		region:   cfg.Region,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

// Key is the object key a file is stored under
func (p *Publisher) Key(file string) string {
	name := filepath.Base(file)
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// Publish uploads file and returns its URL
func (p *Publisher) Publish(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", file, err)
	}

	key := p.Key(file)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(audio.MimeType(audio.DetectFormat(file))),
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	url := p.URL(key)
	logger.WithComponent("publish").Info().
		Str("file", file).
		Str("url", url).
		Int64("size", info.Size()).
		Msg("Published take")
	return url, nil
}

// URL renders the address of key
func (p *Publisher) URL(key string) string {
	if p.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", p.endpoint, p.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, key)
}
