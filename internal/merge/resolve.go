package merge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Downloader fetches s3:// refs into a directory.
type Downloader interface {
	DownloadToFile(ctx context.Context, ref, dir string) (string, error)
}

// Resolver turns source refs into local archive paths. Supported refs:
//   - file://path or plain filesystem paths
//   - http(s):// URLs (downloaded into the work dir)
//   - s3://bucket/key (downloaded through S3)
type Resolver struct {
	S3   Downloader
	HTTP *http.Client
}

// Fetch returns a local path for ref, downloading remote refs into dir.
func (r *Resolver) Fetch(ctx context.Context, ref, dir string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		if r == nil || r.S3 == nil {
			return "", fmt.Errorf("%s: s3 storage is not configured", ref)
		}
		return r.S3.DownloadToFile(ctx, ref, dir)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return r.downloadHTTP(ctx, ref, dir)
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), nil
	default:
		return ref, nil
	}
}

func (r *Resolver) downloadHTTP(ctx context.Context, url, dir string) (string, error) {
	client := http.DefaultClient
	if r != nil && r.HTTP != nil {
		client = r.HTTP
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &HTTPStatusError{URL: url, Status: resp.StatusCode}
	}

	name := url
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	local := filepath.Join(dir, path.Base(name))
	f, err := os.Create(local)
	if err != nil {
		return "", err
	}
	defer f.Close()
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	log.Info().Str("url", url).Int64("size", n).Str("file", filepath.Base(local)).Msg("downloaded archive to temp")
	return local, nil
}

// HTTPStatusError is a non-200 answer while fetching a source.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e *HTTPStatusError) Error() string { return fmt.Sprintf("download %s: http %d", e.URL, e.Status) }
