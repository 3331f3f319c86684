package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "marginflow/config"
	"marginflow/logger"
)

// s3Uploader mirrors finished output files to a bucket.
type s3Uploader struct {
	cfg    *appconfig.Config
	client *s3.Client
	log    *logger.Log
}

func newS3Uploader(cfg *appconfig.Config) (*s3Uploader, error) {
	ctx := context.Background()
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})
	return &s3Uploader{cfg: cfg, client: client, log: logger.GetLogger()}, nil
}

func (u *s3Uploader) uploadFile(ctx context.Context, localPath, name string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	key := name
	if u.cfg.Storage.S3.Prefix != "" {
		key = path.Join(u.cfg.Storage.S3.Prefix, name)
	}
	_, err = u.client.PutObject(context.WithoutCancel(ctx), &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Storage.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.cfg.Storage.S3.Bucket, key, err)
	}
	u.log.WithComponent("s3-uploader").WithFields(logger.Fields{
		"key":   key,
		"bytes": len(data),
	}).Info("file uploaded")
	return nil
}
