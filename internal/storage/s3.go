package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Options configure the S3 client.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for S3-compatible stores; forces path-style
	AccessKey string
	SecretKey string
	// Password enables at-rest encryption of uploads and decryption of
	// encrypted downloads.
	Password string
}

// S3Client wraps the AWS S3 client with optional at-rest encryption.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
	password   string
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli, func(u *manager.Uploader) { u.PartSize = 16 * 1024 * 1024 }),
		bucketName: opts.Bucket,
		password:   opts.Password,
	}, nil
}

// Bucket is the default bucket for uploads.
func (s *S3Client) Bucket() string { return s.bucketName }

// ParseRef splits "s3://bucket/key" into bucket and key.
func ParseRef(ref string) (string, string, error) {
	p := strings.TrimPrefix(ref, "s3://")
	if p == ref {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return p[:slash], p[slash+1:], nil
}

// Ref formats bucket and key as an s3:// url.
func Ref(bucket, key string) string { return "s3://" + bucket + "/" + key }

// DownloadToFile fetches ref into dir, decrypting encrypted objects, and
// returns the local path. The file keeps the object's base name so archive
// numbering survives the download.
func (s *S3Client) DownloadToFile(ctx context.Context, ref, dir string) (string, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", ref, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read S3 object: %w", err)
	}
	format := "plain"
	if IsEncrypted(data) {
		if s.password == "" {
			return "", fmt.Errorf("%s is encrypted and no password is configured", ref)
		}
		if data, err = decryptGCM(data, s.password); err != nil {
			return "", fmt.Errorf("failed to decrypt %s: %w", ref, err)
		}
		format = gcmMagic
	}

	local := filepath.Join(dir, path.Base(key))
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", local, err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Str("encryption_format", format).Int("size", len(data)).Msg("downloaded s3 object to temp")
	return local, nil
}

// UploadFile uploads the file at localPath under key in the default bucket,
// encrypting it when a password is configured. It returns the s3:// ref.
func (s *S3Client) UploadFile(ctx context.Context, key, localPath, contentType string) (string, error) {
	if s.bucketName == "" {
		return "", fmt.Errorf("upload %s: no bucket configured", key)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	var body io.Reader = f
	meta := map[string]string{"name": filepath.Base(localPath)}
	if s.password != "" {
		plain, err := io.ReadAll(f)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", localPath, err)
		}
		enc, err := encryptGCM(plain, s.password)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt data: %w", err)
		}
		body = bytes.NewReader(enc)
		meta["encrypted"] = "true"
		meta["encryption-format"] = gcmMagic
	}

	res, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    meta,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("key", key).Str("location", res.Location).Bool("encrypted", s.password != "").Msg("uploaded result to S3")
	return Ref(s.bucketName, key), nil
}

// Ping checks that the default bucket is reachable.
func (s *S3Client) Ping(ctx context.Context) error {
	if s.bucketName == "" {
		return fmt.Errorf("no bucket configured")
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}
