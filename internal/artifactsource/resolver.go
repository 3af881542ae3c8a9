// Package artifactsource turns a jar reference into a local file ready for upload.
//
// A reference is one of:
//   - a local path
//   - a glob (doublestar syntax) matching exactly one file
//   - an s3://bucket/key object, downloaded to a temporary directory
package artifactsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"flinkctl/internal/apperrors"
)

// Artifact is a resolved local file. Close releases anything created to
// produce it and is safe to call more than once.
type Artifact struct {
	Path   string
	Source string

	once    sync.Once
	cleanup func() error
	err     error
}

// Close removes temporary files backing the artifact.
func (a *Artifact) Close() error {
	if a == nil || a.cleanup == nil {
		return nil
	}
	a.once.Do(func() { a.err = a.cleanup() })
	return a.err
}

// ObjectGetter is the subset of the S3 client used for downloads.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures a Resolver.
type Options struct {
	S3 S3Config

	// S3Client overrides the client built from S3 on first use.
	S3Client ObjectGetter

	// TempDir is the parent for downloads. Empty uses os.TempDir().
	TempDir string

	Logger *zap.Logger
}

// Resolver resolves jar references.
type Resolver struct {
	s3cfg   S3Config
	tempDir string
	logger  *zap.Logger

	mu       sync.Mutex
	s3client ObjectGetter
}

// NewResolver creates a resolver. The S3 client is created lazily so local
// deployments never touch AWS configuration.
func NewResolver(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		s3cfg:    opts.S3,
		tempDir:  opts.TempDir,
		logger:   logger.With(zap.String("component", "artifactsource")),
		s3client: opts.S3Client,
	}
}

// Resolve returns a local file for ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Artifact, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, apperrors.Validation("jarPath", "jar path is required")
	case strings.HasPrefix(ref, "s3://"):
		return r.fromS3(ctx, ref)
	case hasMeta(ref):
		return r.fromGlob(ref)
	default:
		return r.fromLocal(ref)
	}
}

func hasMeta(ref string) bool {
	return strings.ContainsAny(ref, "*?[{")
}

func (r *Resolver) fromLocal(ref string) (*Artifact, error) {
	info, err := os.Stat(ref)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound("jar", ref, err)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, apperrors.Validation("jarPath", fmt.Sprintf("%s is a directory", ref))
	}
	return &Artifact{Path: ref, Source: ref}, nil
}

func (r *Resolver) fromGlob(pattern string) (*Artifact, error) {
	if !doublestar.ValidatePathPattern(filepath.ToSlash(pattern)) {
		return nil, apperrors.Validation("jarPath", fmt.Sprintf("invalid glob pattern %q", pattern))
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	switch len(matches) {
	case 0:
		return nil, apperrors.Validation("jarPath", fmt.Sprintf("no file matches %q", pattern))
	case 1:
		r.logger.Debug("Resolved jar glob", zap.String("pattern", pattern), zap.String("path", matches[0]))
		return &Artifact{Path: matches[0], Source: pattern}, nil
	default:
		return nil, apperrors.Validation("jarPath",
			fmt.Sprintf("%d files match %q, expected exactly one: %s", len(matches), pattern, strings.Join(matches, ", ")))
	}
}

// parseS3URI splits s3://bucket/key.
func parseS3URI(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", apperrors.Validation("jarPath", fmt.Sprintf("invalid s3 uri %q: %v", ref, err))
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", apperrors.Validation("jarPath", fmt.Sprintf("s3 uri %q must name a bucket and an object key", ref))
	}
	return bucket, key, nil
}

func (r *Resolver) fromS3(ctx context.Context, ref string) (*Artifact, error) {
	bucket, key, err := parseS3URI(ref)
	if err != nil {
		return nil, err
	}

	client, err := r.client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapS3Error(ref, err)
	}
	defer out.Body.Close()

	dir, err := os.MkdirTemp(r.tempDir, "flinkctl-artifact-*")
	if err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	// The base name becomes the server-side jar name.
	local := filepath.Join(dir, path.Base(key))
	f, err := os.Create(local)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("create %s: %w", local, err)
	}
	n, err := io.Copy(f, out.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("download %s: %w", ref, err)
	}

	r.logger.Info("Downloaded jar", zap.String("source", ref), zap.String("path", local), zap.Int64("bytes", n))
	return &Artifact{Path: local, Source: ref, cleanup: cleanup}, nil
}

func (r *Resolver) client(ctx context.Context) (ObjectGetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.s3client != nil {
		return r.s3client, nil
	}
	c, err := newS3Client(ctx, r.s3cfg)
	if err != nil {
		return nil, err
	}
	r.s3client = c
	return c, nil
}
