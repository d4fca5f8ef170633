package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"cas-go/internal/cas"
	"cas-go/internal/config"
)

// versionMetaKey is the object metadata key holding a metadata item's version.
const versionMetaKey = "cas-version"

// S3Vault stores chunks and metadata as objects in an S3 bucket:
//
//	<prefix>/chunks/<d[0:2]>/<digest>
//	<prefix>/metadata/<tenantID>/<name>
//
// The metadata version travels as user metadata on the object.
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Vault creates an S3 vault from the given config. Static credentials
// are used when both keys are set; otherwise the default AWS chain applies.
func NewS3Vault(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return &S3Vault{
		name:     cfg.Name,
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (v *S3Vault) chunkKey(digest string) string {
	shard := digest
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return path.Join(v.prefix, "chunks", shard, digest)
}

func (v *S3Vault) metadataKey(tenantID, name string) string {
	return path.Join(v.prefix, "metadata", tenantID, name)
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// put uploads r to key and removes the object again if the size does not match.
func (v *S3Vault) put(ctx context.Context, key string, r io.Reader, size int64, meta map[string]string) error {
	cr := &countingReader{r: r}
	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(v.bucket),
		Key:      aws.String(key),
		Body:     cr,
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("%w: uploading %s: %w", cas.ErrStorageIO, key, err)
	}
	if cr.n != size {
		_ = v.delete(ctx, key)
		return fmt.Errorf("size mismatch: expected %d bytes, got %d: %w", size, cr.n, cas.ErrValidation)
	}
	return nil
}

func (v *S3Vault) get(ctx context.Context, key string, w io.Writer) error {
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("object %s: %w", key, cas.ErrNotFound)
		}
		return fmt.Errorf("%w: getting %s: %w", cas.ErrStorageIO, key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("%w: reading %s: %w", cas.ErrStorageIO, key, err)
	}
	return nil
}

func (v *S3Vault) delete(ctx context.Context, key string) error {
	_, err := v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("%w: deleting %s: %w", cas.ErrStorageIO, key, err)
	}
	return nil
}

// PutChunk stores chunk bytes under their digest.
func (v *S3Vault) PutChunk(ctx context.Context, digest string, r io.Reader, size int64) error {
	return v.put(ctx, v.chunkKey(digest), r, size, nil)
}

// GetChunk writes the bytes stored under digest to w.
func (v *S3Vault) GetChunk(ctx context.Context, digest string, w io.Writer) error {
	return v.get(ctx, v.chunkKey(digest), w)
}

// DeleteChunk removes a chunk object. A missing object is not an error.
func (v *S3Vault) DeleteChunk(ctx context.Context, digest string) error {
	return v.delete(ctx, v.chunkKey(digest))
}

// PutMetadata stores a metadata item with its version as object metadata.
func (v *S3Vault) PutMetadata(ctx context.Context, tenantID, name string, r io.Reader, size int64, version int64) error {
	return v.put(ctx, v.metadataKey(tenantID, name), r, size, map[string]string{
		versionMetaKey: strconv.FormatInt(version, 10),
	})
}

// GetMetadata writes a tenant's metadata item to w.
func (v *S3Vault) GetMetadata(ctx context.Context, tenantID, name string, w io.Writer) error {
	return v.get(ctx, v.metadataKey(tenantID, name), w)
}

// GetMetadataVersion returns the version recorded on a metadata object, or 0
// when the object does not exist.
func (v *S3Vault) GetMetadataVersion(ctx context.Context, tenantID, name string) (int64, error) {
	out, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.metadataKey(tenantID, name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: reading metadata version: %w", cas.ErrStorageIO, err)
	}

	raw, ok := out.Metadata[versionMetaKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing version: %w", cas.ErrStorageIO, err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup(ctx context.Context) error {
	_, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)})
	if err != nil {
		return fmt.Errorf("%w: bucket %s not accessible: %w", cas.ErrStorageIO, v.bucket, err)
	}
	return nil
}

func (v *S3Vault) Close() error {
	return nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// Compile-time check that S3Vault implements cas.Vault interface
var _ cas.Vault = (*S3Vault)(nil)
