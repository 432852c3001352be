package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// =============================================================================
// HTTP
// =============================================================================

// HTTPSink writes the file as an attachment response.
type HTTPSink struct {
	W http.ResponseWriter
}

// Save sets download headers and streams the body.
func (s HTTPSink) Save(ctx context.Context, f File) error {
	h := s.W.Header()
	h.Set("Content-Type", f.MIMEType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	h.Set("Content-Length", strconv.FormatInt(f.Size, 10))
	h.Set("X-Content-Type-Options", "nosniff")
	s.W.WriteHeader(http.StatusOK)

	if _, err := io.Copy(s.W, f.Body); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// =============================================================================
// Directory
// =============================================================================

// DirSink saves files into a directory. Existing names are never overwritten;
// like a browser, "report.csv" becomes "report (1).csv", "report (2).csv", ...
type DirSink struct {
	Dir    string
	Logger *slog.Logger

	mu    sync.Mutex
	saved []string
}

const maxDuplicateSuffix = 1000

// Save writes the body to a new file in Dir.
func (s *DirSink) Save(ctx context.Context, f File) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	name := filepath.Base(filepath.Clean("/" + f.Name))
	if name == "/" || name == "." {
		return fmt.Errorf("invalid file name %q", f.Name)
	}

	out, target, err := createUnique(s.Dir, name)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, f.Body)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(target)
		return fmt.Errorf("write %s: %w", target, err)
	}

	s.mu.Lock()
	s.saved = append(s.saved, target)
	s.mu.Unlock()

	if s.Logger != nil {
		s.Logger.Info("file saved", "path", target, "bytes", f.Size)
	}
	return nil
}

// Saved returns the paths written so far.
func (s *DirSink) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.saved))
	copy(out, s.saved)
	return out
}

func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i <= maxDuplicateSuffix; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		target := filepath.Join(dir, candidate)
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return out, target, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", target, err)
		}
	}
	return nil, "", fmt.Errorf("too many files named %q in %s", name, dir)
}

// =============================================================================
// Object storage
// =============================================================================

// ObjectPutter uploads one object.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
}

// ObjectStoreSink uploads files to a bucket under Prefix.
type ObjectStoreSink struct {
	Client ObjectPutter
	Bucket string
	Prefix string
}

// Key returns the object key used for a file name.
func (s ObjectStoreSink) Key(name string) string {
	return path.Join(s.Prefix, path.Base("/"+name))
}

// Save uploads the body.
func (s ObjectStoreSink) Save(ctx context.Context, f File) error {
	if s.Bucket == "" {
		return errors.New("object store: bucket is required")
	}
	key := s.Key(f.Name)
	if err := s.Client.PutObject(ctx, s.Bucket, key, f.Body, f.Size, f.MIMEType); err != nil {
		return fmt.Errorf("object store put %s/%s: %w", s.Bucket, key, err)
	}
	return nil
}

// MinioConfig configures a MinioPutter.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioPutter is an ObjectPutter backed by minio-go.
type MinioPutter struct {
	client *minio.Client
}

// NewMinioPutter creates an S3-compatible client.
func NewMinioPutter(cfg MinioConfig) (*MinioPutter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("object store endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("object store credentials are required")
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	useSSL := cfg.UseSSL || strings.HasPrefix(cfg.Endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &MinioPutter{client: client}, nil
}

// PutObject uploads body with the given content type.
func (p *MinioPutter) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	_, err := p.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
