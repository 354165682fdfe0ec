package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Store stores blobs in an S3-compatible bucket (AWS S3, or an
// R2-style endpoint). Grounded on the teacher's s3.go client (endpoint
// resolver, tuned http.Client, uploader) generalized from an R2-specific
// tile-upload client into the general-purpose Store interface described
// by original_source/joerd/store/s3.py.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// S3StoreOptions configures an S3Store.
type S3StoreOptions struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // empty for real AWS S3
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3StoreFromOptions builds an S3Store from a generic config map, as
// produced by YAML config decoding.
func NewS3StoreFromOptions(opts map[string]any) (*S3Store, error) {
	o := S3StoreOptions{}
	o.Bucket, _ = opts["bucket_name"].(string)
	o.Prefix, _ = opts["prefix"].(string)
	o.Region, _ = opts["region"].(string)
	o.Endpoint, _ = opts["endpoint"].(string)
	o.AccessKeyID, _ = opts["access_key_id"].(string)
	o.SecretAccessKey, _ = opts["secret_access_key"].(string)
	if o.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket_name not configured for S3 store, but it must be", ErrConfig)
	}
	return NewS3Store(o)
}

// NewS3Store constructs an S3 client. Each worker process builds its own
// client from these plain options rather than attempting to serialize a
// live client across a process boundary (see DESIGN.md, "Pickling /
// inter-process state").
func NewS3Store(o S3StoreOptions) (*S3Store, error) {
	logger := slog.With("endpoint", o.Endpoint, "bucket", o.Bucket)
	logger.Info("initializing S3 store")

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        150,
			MaxIdleConnsPerHost: 150,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: 5 * time.Minute,
	}

	configOpts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
		config.WithRegion(o.Region),
	}
	if o.AccessKeyID != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")))
	}
	if o.Endpoint != "" {
		endpoint := o.Endpoint
		region := o.Region
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{URL: endpoint, SigningRegion: region}, nil
			}
			return aws.Endpoint{}, &smithy.GenericAPIError{Code: "UnknownEndpoint"}
		})
		configOpts = append(configOpts, config.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(opt *s3.Options) {
		opt.UsePathStyle = o.Endpoint != ""
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   o.Bucket,
		prefix:   o.Prefix,
	}, nil
}

func (s *S3Store) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + strings.TrimPrefix(path, "/")
}

// Exists treats both "not found" and "forbidden" as not-present, since a
// bucket policy that denies ListBucket but allows GetObject produces a
// 403 for a HeadObject against a real, existing key only in pathological
// setups; treating 403 as absent is the conservative choice that matches
// the planner's use of Exists as a "do I need to do work" signal.
func (s *S3Store) Exists(ctx context.Context, path string) bool {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err == nil {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "Forbidden", "AccessDenied":
			return false
		}
	}
	slog.Warn("s3 exists check failed", "path", path, "error", err)
	return false
}

func (s *S3Store) Get(ctx context.Context, path, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return fmt.Errorf("getting %s: %w", path, err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := copyAndSync(tmp, out.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	tmp.Close()
	return os.Rename(tmp.Name(), localPath)
}

func (s *S3Store) UploadDir(ctx context.Context, localDir string) error {
	d := strings.TrimSuffix(localDir, "/") + "/"
	return filepath.Walk(d, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d, p)
		if err != nil {
			return err
		}
		file, err := os.Open(p)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key(rel)),
			Body:        file,
			ContentType: aws.String(contentTypeFor(rel)),
		})
		if err != nil {
			return fmt.Errorf("uploading %s: %w", rel, err)
		}
		return nil
	})
}

// contentTypeFor sets content-type from extension, per spec.md §4.2.
func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".xml":
		return "application/xml"
	case ".gz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
