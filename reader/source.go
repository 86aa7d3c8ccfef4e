package reader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "tradersentiment/config"
	"tradersentiment/logger"
)

// ObjectAPI is the subset of the S3 client used to read sources.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Opener reads raw source bytes from local paths or s3://bucket/key URLs.
// The S3 client is created on first use so local-only runs never touch AWS
// configuration.
type Opener struct {
	cfg  appconfig.S3Config
	log  *logger.Log
	once sync.Once
	api  ObjectAPI
	err  error
}

func NewOpener(cfg appconfig.S3Config) *Opener {
	return &Opener{cfg: cfg, log: logger.GetLogger()}
}

// NewOpenerWithClient builds an Opener around an existing S3 client.
func NewOpenerWithClient(api ObjectAPI) *Opener {
	o := &Opener{log: logger.GetLogger(), api: api}
	o.once.Do(func() {})
	return o
}

func (o *Opener) client(ctx context.Context) (ObjectAPI, error) {
	o.once.Do(func() {
		loadOpts := []func(*awsconfig.LoadOptions) error{}
		if o.cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(o.cfg.Region))
		}
		if o.cfg.AccessKeyID != "" && o.cfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					o.cfg.AccessKeyID,
					o.cfg.SecretAccessKey,
					"",
				),
			))
		}

		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			o.log.WithComponent("source_reader").WithError(err).Warn("failed to load AWS configuration")
			o.err = fmt.Errorf("failed to load AWS configuration: %w", err)
			return
		}

		o.api = s3.NewFromConfig(awsConfig, func(opts *s3.Options) {
			if o.cfg.Endpoint != "" {
				opts.BaseEndpoint = aws.String(o.cfg.Endpoint)
			}
			opts.UsePathStyle = o.cfg.PathStyle
		})
	})
	return o.api, o.err
}

// splitS3URL returns bucket and key for s3:// paths.
func splitS3URL(path string) (string, string, bool) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", "", false
	}
	bucket, key, _ := strings.Cut(rest, "/")
	return bucket, key, true
}

// ReadAll returns the full content of path.
func (o *Opener) ReadAll(ctx context.Context, path string) ([]byte, error) {
	bucket, key, remote := splitS3URL(path)
	if !remote {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}

	api, err := o.client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}

	o.log.WithComponent("source_reader").WithFields(logger.Fields{
		"bucket": bucket,
		"key":    key,
		"bytes":  len(data),
	}).Debug("downloaded source object")
	return data, nil
}

// Stat returns a signature that changes whenever the content at path does.
func (o *Opener) Stat(ctx context.Context, path string) (string, error) {
	bucket, key, remote := splitS3URL(path)
	if !remote {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		return fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size()), nil
	}

	api, err := o.client(ctx)
	if err != nil {
		return "", err
	}
	out, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("head object %s: %w", path, err)
	}
	modified := time.Time{}
	if out.LastModified != nil {
		modified = *out.LastModified
	}
	return fmt.Sprintf("%d:%s", modified.UnixNano(), aws.ToString(out.ETag)), nil
}
