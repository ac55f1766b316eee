package artifactstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/utils/hashutil"
)

type S3Store struct {
	client *s3.Client
	cfg    *config.S3Config
}

func NewS3Store(ctx context.Context, cfg *config.S3Config) (*S3Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("s3 config is not set")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		credentialsProvider := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, awsConfig.WithCredentialsProvider(credentialsProvider))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointUrl != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointUrl)
			// S3-compatible services (minio, R2) rarely support virtual-host addressing
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, cfg: cfg}, nil
}

func (s *S3Store) key(name string) string {
	folder := strings.Trim(s.cfg.Folder, "/")
	if folder == "" {
		return name
	}
	return fmt.Sprintf("%s/%s", folder, name)
}

func (s *S3Store) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	key := s.key(name)
	input := s3.PutObjectInput{
		Key:         aws.String(key),
		ContentType: aws.String(mimetype.Detect(content).String()),
		Bucket:      aws.String(s.cfg.Bucket),
		Body:        bytes.NewReader(content),
		Metadata:    map[string]string{"blake3": hashutil.Blake3Hash(content)},
	}
	if _, err := s.client.PutObject(ctx, &input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key), nil
}

func (s *S3Store) Get(ctx context.Context, name string, w io.Writer) error {
	key := s.key(name)
	object, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return &errdefs.ArtifactNotFoundError{Path: fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key), Err: err}
		}
		return err
	}
	defer object.Body.Close()

	_, err = io.Copy(w, object.Body)
	return err
}
