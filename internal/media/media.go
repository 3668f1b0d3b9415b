// Package media hands out presigned upload URLs so car photos go straight
// from the browser to object storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	ErrStorageDisabled = errors.New("object storage is not configured")
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrTooLarge        = errors.New("file too large")
)

// Extensions lists the accepted content types.
var Extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	MaxSizeMB       int
	URLExpiry       time.Duration
}

// Enabled reports whether enough is set to sign requests.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

type Upload struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Presigner struct {
	client    *s3.PresignClient
	bucket    string
	maxBytes  int64
	expiry    time.Duration
	now       func() time.Time
	newObject func() string
}

func NewPresigner(cfg Config) (*Presigner, error) {
	if !cfg.Enabled() {
		return nil, ErrStorageDisabled
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 5 * time.Minute
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	}
	if cfg.Endpoint != "" {
		// S3-compatible stores (MinIO, R2) want path-style addressing.
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &Presigner{
		client:    s3.NewPresignClient(s3.New(opts)),
		bucket:    cfg.Bucket,
		maxBytes:  int64(cfg.MaxSizeMB) << 20,
		expiry:    cfg.URLExpiry,
		now:       time.Now,
		newObject: func() string { return uuid.NewString() },
	}, nil
}

// CarImageKey is the object key for a new photo of car.
func CarImageKey(companyID, carID int64, object, ext string) string {
	return fmt.Sprintf("companies/%d/cars/%d/%s%s", companyID, carID, object, ext)
}

// PresignCarImage signs a PUT of one image of the given type and size.
func (p *Presigner) PresignCarImage(ctx context.Context, companyID, carID int64, contentType string, size int64) (*Upload, error) {
	ext, ok := Extensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if size <= 0 || size > p.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, p.maxBytes)
	}

	key := CarImageKey(companyID, carID, p.newObject(), ext)
	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, func(o *s3.PresignOptions) {
		o.Expires = p.expiry
	})
	if err != nil {
		return nil, fmt.Errorf("presigning upload: %w", err)
	}

	return &Upload{URL: req.URL, Key: key, ExpiresAt: p.now().Add(p.expiry)}, nil
}
