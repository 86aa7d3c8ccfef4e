package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "tradersentiment/config"
	"tradersentiment/logger"
)

const (
	ContentTypeParquet = "application/vnd.apache.parquet"
	ContentTypeXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// PutObjectAPI is the subset of the S3 client used to store outputs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes encoded outputs either to a local file or to an
// s3://bucket/key destination. The S3 client is only created when the first
// remote destination is written.
type Uploader struct {
	cfg  appconfig.S3Config
	log  *logger.Log
	once sync.Once
	api  PutObjectAPI
	err  error

	objectsWritten int64
	bytesWritten   int64
}

func NewUploader(cfg appconfig.S3Config) *Uploader {
	return &Uploader{cfg: cfg, log: logger.GetLogger()}
}

// NewUploaderWithClient builds an Uploader around an existing S3 client.
func NewUploaderWithClient(api PutObjectAPI) *Uploader {
	u := &Uploader{log: logger.GetLogger(), api: api}
	u.once.Do(func() {})
	return u
}

func (u *Uploader) client(ctx context.Context) (PutObjectAPI, error) {
	u.once.Do(func() {
		loadOpts := []func(*awsconfig.LoadOptions) error{}
		if u.cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(u.cfg.Region))
		}
		if u.cfg.AccessKeyID != "" && u.cfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					u.cfg.AccessKeyID,
					u.cfg.SecretAccessKey,
					"",
				),
			))
		}

		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			u.log.WithComponent("s3_writer").WithError(err).Warn("failed to load AWS configuration")
			u.err = fmt.Errorf("failed to load AWS configuration: %w", err)
			return
		}

		u.api = s3.NewFromConfig(awsConfig, func(opts *s3.Options) {
			if u.cfg.Endpoint != "" {
				opts.BaseEndpoint = aws.String(u.cfg.Endpoint)
			}
			opts.UsePathStyle = u.cfg.PathStyle
		})
	})
	return u.api, u.err
}

// parseObjectURL extracts bucket and key from an s3:// destination. remote
// is false for local paths.
func parseObjectURL(dest string) (bucket, key string, remote bool, err error) {
	rest, ok := strings.CutPrefix(dest, "s3://")
	if !ok {
		return "", "", false, nil
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", true, fmt.Errorf("invalid object url: %s", dest)
	}
	return bucket, key, true, nil
}

// Write stores data at dest.
func (u *Uploader) Write(ctx context.Context, dest string, data []byte, contentType string) error {
	bucket, key, remote, err := parseObjectURL(dest)
	if err != nil {
		return err
	}
	if !remote {
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
		return nil
	}

	api, err := u.client(ctx)
	if err != nil {
		return err
	}
	if _, err := api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}); err != nil {
		return fmt.Errorf("put object %s: %w", dest, err)
	}

	objects := atomic.AddInt64(&u.objectsWritten, 1)
	total := atomic.AddInt64(&u.bytesWritten, int64(len(data)))
	u.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"bucket":          bucket,
		"key":             key,
		"bytes":           len(data),
		"objects_written": objects,
		"bytes_written":   total,
	}).Info("object uploaded")
	return nil
}

// Stats reports how many objects and bytes were uploaded.
func (u *Uploader) Stats() (objects, size int64) {
	return atomic.LoadInt64(&u.objectsWritten), atomic.LoadInt64(&u.bytesWritten)
}
