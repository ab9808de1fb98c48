// Package s3 turns stored image paths into time-limited download links.
package s3

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Linker struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// NewLinker loads the default AWS credential chain.
func NewLinker(ctx context.Context, bucket string, ttl time.Duration) (*Linker, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &Linker{presign: s3.NewPresignClient(s3.NewFromConfig(cfg)), bucket: bucket, ttl: ttl}, nil
}

func (l *Linker) URL(ctx context.Context, path string) (string, error) {
	req, err := l.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(path),
	}, func(po *s3.PresignOptions) {
		po.Expires = l.ttl
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
