package r2

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"examprephub/internal/config"
	"examprephub/internal/logger"
)

// Client archives uploaded source documents in a Cloudflare R2 bucket.
type Client struct {
	s3Client   *s3.Client
	bucketName string
	publicURL  string // e.g. https://pub-xxxxxxxx.r2.dev
	log        *logger.Logger
}

// NewClient returns (nil, nil) when R2 is not fully configured so that the
// server runs with archiving disabled.
func NewClient(ctx context.Context, cfg config.R2, log *logger.Logger) (*Client, error) {
	if !cfg.Enabled() {
		log.Warn("Cloudflare R2 not fully configured (CLOUDFLARE_ACCOUNT_ID, R2_BUCKET_NAME, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_PUBLIC_URL); source documents will not be archived")
		return nil, nil
	}
	if _, err := url.Parse(cfg.PublicURL); err != nil {
		return nil, fmt.Errorf("invalid R2_PUBLIC_URL: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for R2: %w", err)
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	log.Info("R2 client initialized", "bucket", cfg.BucketName)
	return &Client{
		s3Client:   s3Client,
		bucketName: cfg.BucketName,
		publicURL:  cfg.PublicURL,
		log:        log.With("component", "R2Client"),
	}, nil
}

// Archive stores a PDF under documents/<owner>/<uuid>/<name> and returns its public URL.
func (c *Client) Archive(ctx context.Context, owner, name string, data []byte) (string, error) {
	if c == nil || c.s3Client == nil {
		return "", fmt.Errorf("R2 client not initialized, skipping upload")
	}
	key := ObjectKey(owner, uuid.NewString(), name)

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to R2 (key: %s): %w", key, err)
	}

	publicURL, err := PublicURL(c.publicURL, key)
	if err != nil {
		return "", err
	}
	c.log.Info("Archived source document", "url", publicURL, "size", len(data))
	return publicURL, nil
}

// ObjectKey builds the bucket key for an archived document.
func ObjectKey(owner, id, name string) string {
	return path.Join("documents", owner, id, sanitizeName(name))
}

// PublicURL joins the bucket's public base URL and an object key.
func PublicURL(base, key string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid R2 public base URL configured: %w", err)
	}
	u.Path = path.Join("/", u.Path, key)
	return u.String(), nil
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
	if name == "" || name == "." || name == ".." {
		return "document.pdf"
	}
	return name
}
