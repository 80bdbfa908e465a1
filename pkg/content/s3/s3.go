// Package s3 implements content storage on Amazon S3 or S3-compatible
// object stores.
//
// Object Key Design:
// The content ref is used directly as the object key under an optional
// prefix (e.g. "synkerd/content/"). Keys are human-readable, so the bucket
// can be inspected and recovered with standard tools.
//
// S3 Characteristics:
//   - Range reads map directly onto S3 byte-range requests
//   - WriteAt is implemented with read-modify-write: S3 objects are
//     immutable, so out-of-order chunk staging rewrites the object
//   - Concurrent writes to the same ref are last-write-wins
//
// For chunked uploads against an S3 content store, configure the upload
// coordinator with large chunk sizes to limit rewrite amplification.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/synkerd/pkg/content"
)

// Store implements content.WritableContentStore on an S3 bucket.
type Store struct {
	client    *awss3.Client
	bucket    string
	keyPrefix string
}

// Config contains configuration for the S3 content store.
type Config struct {
	// Client is the configured S3 client.
	Client *awss3.Client

	// Bucket is the S3 bucket name. The bucket must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	// Example: "synkerd/content/" yields keys like "synkerd/content/abc123".
	KeyPrefix string
}

// NewStore creates an S3-based content store and verifies bucket access.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *Store) objectKey(ref string) string {
	return s.keyPrefix + ref
}

// isNotFound matches S3's several spellings of "object doesn't exist".
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// ReadContent returns a reader streaming the whole object.
func (s *Store) ReadContent(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return result.Body, nil
}

// ReadRange reads length bytes starting at offset using an S3 byte-range
// request, avoiding a full object download.
func (s *Store) ReadRange(ctx context.Context, ref string, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}

	// S3 ranges are inclusive: "bytes=offset-(offset+length-1)".
	rangeStr := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)

	result, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
		Range:  aws.String(rangeStr),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
		}
		if strings.Contains(err.Error(), "InvalidRange") {
			return nil, fmt.Errorf("range %s: %w", rangeStr, content.ErrInvalidRange)
		}
		return nil, fmt.Errorf("failed to read range from S3: %w", err)
	}
	defer result.Body.Close()

	buf := make([]byte, length)
	n, err := io.ReadFull(result.Body, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		// The object is shorter than the requested range.
		return nil, fmt.Errorf("range %s beyond object size: %w", rangeStr, content.ErrInvalidRange)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read range body: %w", err)
	}
	return buf[:n], nil
}

// GetContentSize returns the object's size via a HEAD request.
func (s *Store) GetContentSize(ctx context.Context, ref string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}
	if result.ContentLength == nil {
		return 0, nil
	}
	return uint64(*result.ContentLength), nil
}

// ContentExists reports whether the object exists via a HEAD request.
func (s *Store) ContentExists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object: %w", err)
	}
	return true, nil
}

// WriteContent stores the whole blob at ref with a single PutObject.
func (s *Store) WriteContent(ctx context.Context, ref string, reader io.Reader) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// PutObject needs a seekable body for signing; buffer the blob.
	blob, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("failed to read content: %w", err)
	}

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put object to S3: %w", err)
	}
	return uint64(len(blob)), nil
}

// WriteAt writes data at offset using read-modify-write.
//
// S3 objects are immutable, so the existing object (if any) is downloaded,
// patched in memory and re-uploaded. Acceptable for staging-sized chunks;
// not a general-purpose random-access write path.
func (s *Store) WriteAt(ctx context.Context, ref string, offset uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var blob []byte
	existing, err := s.ReadContent(ctx, ref)
	if err == nil {
		blob, err = io.ReadAll(existing)
		existing.Close()
		if err != nil {
			return fmt.Errorf("failed to read existing object: %w", err)
		}
	} else if !errors.Is(err, content.ErrContentNotFound) {
		return err
	}

	end := offset + uint64(len(data))
	if end > uint64(len(blob)) {
		grown := make([]byte, end)
		copy(grown, blob)
		blob = grown
	}
	copy(blob[offset:end], data)

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return fmt.Errorf("failed to put patched object to S3: %w", err)
	}
	return nil
}

// DeleteContent removes the object.
func (s *Store) DeleteContent(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// DeleteObject succeeds on missing keys; probe first so callers get
	// the same not-found semantics as other backends.
	exists, err := s.ContentExists(ctx, ref)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
	}

	_, err = s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// ListAllContent returns every ref under the key prefix, in key order.
func (s *Store) ListAllContent(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var refs []string
	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, object := range page.Contents {
			if object.Key == nil {
				continue
			}
			refs = append(refs, strings.TrimPrefix(*object.Key, s.keyPrefix))
		}
	}
	return refs, nil
}
