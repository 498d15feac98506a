// Package imagestore persists uploaded images in an S3-compatible object
// store (MinIO in development, any S3 endpoint in production). Objects are
// addressed by a dated key that doubles as the public id.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	// Register decoders so Upload can validate the formats we accept.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/edustack/edustack/internal/config"
)

// Object identifies a stored image. PublicID is the object key inside the
// bucket; URL is what clients fetch.
type Object struct {
	PublicID string
	URL      string
}

// Client wraps the S3 API for image uploads and deletes.
type Client struct {
	s3  *s3.Client
	cfg config.StorageConfig
}

// New builds an S3 client from static credentials. A non-empty Endpoint
// overrides the AWS default, which is how MinIO and other S3-compatible
// stores are reached.
func New(ctx context.Context, cfg config.StorageConfig) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{s3: client, cfg: cfg}, nil
}

// Upload validates that data is a decodable image, stores it under a dated
// key inside folder, and returns the stored object. The key embeds a UUID,
// so uploads never collide and old objects are garbage, not overwrites.
func (c *Client) Upload(ctx context.Context, data []byte, folder string) (Object, error) {
	imgCfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Object{}, fmt.Errorf("decoding image: %w", err)
	}
	if imgCfg.Width <= 0 || imgCfg.Height <= 0 {
		return Object{}, fmt.Errorf("image has invalid dimensions %dx%d", imgCfg.Width, imgCfg.Height)
	}

	key := storageKey(folder, format)

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/" + format),
	})
	if err != nil {
		return Object{}, fmt.Errorf("uploading %s: %w", key, err)
	}

	return Object{PublicID: key, URL: c.publicURL(key)}, nil
}

// Delete removes a stored object. Deleting a key that no longer exists is
// not an error in S3 and is not treated as one here.
func (c *Client) Delete(ctx context.Context, publicID string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", publicID, err)
	}
	return nil
}

// storageKey builds a dated, collision-free object key.
func storageKey(folder, format string) string {
	d := time.Now()
	return fmt.Sprintf("%s/%d/%d/%d/%s.%s", folder, d.Year(), d.Month(), d.Day(), uuid.NewString(), format)
}

// publicURL resolves the client-facing URL for a key. PublicBaseURL wins
// when set (CDN or reverse proxy); otherwise the endpoint and bucket are
// joined path-style.
func (c *Client) publicURL(key string) string {
	if c.cfg.PublicBaseURL != "" {
		return strings.TrimRight(c.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.Bucket, key)
}
