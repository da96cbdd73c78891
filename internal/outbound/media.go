package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mediaURLTTL must outlive the chat platform's fetch of the media URL.
const mediaURLTTL = 15 * time.Minute

// MediaResolver turns stored media object keys into URLs the chat platform
// can fetch.
type MediaResolver interface {
	ResolveURL(ctx context.Context, key string) (string, error)
}

// S3MediaResolver presigns GET URLs for media objects in the clinic bucket.
type S3MediaResolver struct {
	presign *s3.PresignClient
	bucket  string
}

// NewS3MediaResolver builds a resolver over the media bucket.
func NewS3MediaResolver(client *s3.Client, bucket string) *S3MediaResolver {
	if client == nil {
		panic("outbound: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("outbound: media bucket cannot be empty")
	}
	return &S3MediaResolver{presign: s3.NewPresignClient(client), bucket: bucket}
}

// ResolveURL returns a time-limited URL for the object key.
func (r *S3MediaResolver) ResolveURL(ctx context.Context, key string) (string, error) {
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(mediaURLTTL))
	if err != nil {
		return "", fmt.Errorf("outbound: presign media %q: %w", key, err)
	}
	return req.URL, nil
}
