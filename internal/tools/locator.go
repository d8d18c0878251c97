// Package tools implements the Tool Locator: it guarantees
// ffmpeg, ffprobe and yt-dlp are present on disk and hands back their
// absolute paths, fetching a platform archive on first use if a tool
// is missing from PATH.
package tools

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	pkgerrors "github.com/nomusic/nomusic/pkg/errors"
	"github.com/nomusic/nomusic/pkg/logger"
	"go.uber.org/zap"
)

// Known tool names.
const (
	FFmpeg  = "ffmpeg"
	FFprobe = "ffprobe"
	YtDlp   = "yt-dlp"
)

// Fetcher retrieves a platform-appropriate archive for tool and
// extracts the binary into destDir, returning the binary's path.
// Swappable for tests; the production implementation downloads from a
// configured index of release URLs.
type Fetcher interface {
	Fetch(ctx context.Context, tool, destDir string) (string, error)
}

// Locator implements ports.ToolLocator. Results are cached for the
// process lifetime; concurrent lookups for the same tool are
// serialized by a per-tool lock so a fetch is never started twice.
type Locator struct {
	baseDir string
	fetcher Fetcher
	log     *logger.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	cached map[string]string
}

// Config configures a Locator.
type Config struct {
	// BaseDir is the local folder tools are downloaded into when
	// missing from PATH. Defaults to $XDG_CACHE_HOME/nomusic/tools or
	// an os.TempDir fallback.
	BaseDir string
	Fetcher Fetcher
	Logger  *logger.Logger
}

// New creates a Locator.
func New(cfg Config) *Locator {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = os.TempDir()
		}
		baseDir = filepath.Join(cacheDir, "nomusic", "tools")
	}

	log := cfg.Logger
	if log == nil {
		log, _ = logger.New(false)
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = &HTTPFetcher{Client: &http.Client{Timeout: 5 * time.Minute}}
	}

	return &Locator{
		baseDir: baseDir,
		fetcher: fetcher,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
		cached:  make(map[string]string),
	}
}

// Locate returns tool's absolute path, probing PATH first, then
// falling back to a fetch into baseDir.
func (l *Locator) Locate(ctx context.Context, tool string) (string, error) {
	if p, ok := l.cachedPath(tool); ok {
		return p, nil
	}

	lock := l.toolLock(tool)
	lock.Lock()
	defer lock.Unlock()

	// Re-check after acquiring the lock: a concurrent caller may have
	// just finished the fetch.
	if p, ok := l.cachedPath(tool); ok {
		return p, nil
	}

	if p, err := exec.LookPath(tool); err == nil {
		l.log.Debug("tool found on PATH", zap.String("tool", tool), zap.String("path", p))
		l.setCached(tool, p)
		return p, nil
	}

	destDir := filepath.Join(l.baseDir, tool)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", pkgerrors.NewProcessingError(pkgerrors.ErrCodeMissingDependency, "locate",
			fmt.Sprintf("cannot create tool directory for %s", tool), err)
	}

	l.log.Info("tool missing from PATH, fetching", zap.String("tool", tool), zap.String("dest", destDir))
	path, err := l.fetcher.Fetch(ctx, tool, destDir)
	if err != nil {
		return "", pkgerrors.NewProcessingError(pkgerrors.ErrCodeMissingDependency, "locate",
			fmt.Sprintf("failed to fetch %s: see remediation hint", tool), err)
	}

	l.setCached(tool, path)
	return path, nil
}

func (l *Locator) cachedPath(tool string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.cached[tool]
	return p, ok
}

func (l *Locator) setCached(tool, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached[tool] = path
}

func (l *Locator) toolLock(tool string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[tool]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tool] = m
	}
	return m
}

// HTTPFetcher is the production Fetcher: it downloads a release
// archive over HTTP and extracts the named binary.
type HTTPFetcher struct {
	Client *http.Client
	// URLFor returns the download URL for tool on the current
	// platform. Defaults to releaseURL.
	URLFor func(tool string) (url string, archiveKind string, err error)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, tool, destDir string) (string, error) {
	urlFor := f.URLFor
	if urlFor == nil {
		urlFor = releaseURL
	}

	url, kind, err := urlFor(tool)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", tool, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: unexpected status %s", tool, resp.Status)
	}

	switch kind {
	case "zip":
		return extractZipBinary(resp.Body, tool, destDir)
	case "tar.gz":
		return extractTarGzBinary(resp.Body, tool, destDir)
	default:
		// Single raw binary (e.g. yt-dlp's standalone executable).
		return writeRawBinary(resp.Body, tool, destDir)
	}
}

// releaseURL is the default (and only) URL index; real deployments
// override URLFor to point at an internal mirror.
func releaseURL(tool string) (url, kind string, err error) {
	os := runtime.GOOS
	arch := runtime.GOARCH
	switch tool {
	case YtDlp:
		bin := "yt-dlp"
		if os == "windows" {
			bin = "yt-dlp.exe"
		}
		return fmt.Sprintf("https://github.com/yt-dlp/yt-dlp/releases/latest/download/%s", bin), "raw", nil
	case FFmpeg, FFprobe:
		if os == "windows" {
			return fmt.Sprintf("https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.zip"), "zip", nil
		}
		return fmt.Sprintf("https://nomusic-tools.invalid/ffmpeg/%s-%s.tar.gz", os, arch), "tar.gz", nil
	default:
		return "", "", fmt.Errorf("no release index entry for tool %q", tool)
	}
}

func writeRawBinary(r io.Reader, tool, destDir string) (string, error) {
	dest := filepath.Join(destDir, binaryName(tool))
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", err
	}
	return dest, nil
}

func extractZipBinary(r io.Reader, tool, destDir string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	zr, err := zip.NewReader(readerAt(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	want := binaryName(tool)
	for _, f := range zr.File {
		if filepath.Base(f.Name) != want {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		dest := filepath.Join(destDir, want)
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return "", err
		}
		defer out.Close()
		if _, err := io.Copy(out, rc); err != nil {
			return "", err
		}
		return dest, nil
	}
	return "", fmt.Errorf("archive did not contain %s", want)
}

func extractTarGzBinary(r io.Reader, tool, destDir string) (string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return "", err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	want := binaryName(tool)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if filepath.Base(hdr.Name) != want {
			continue
		}
		dest := filepath.Join(destDir, want)
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return "", err
		}
		out.Close()
		return dest, nil
	}
	return "", fmt.Errorf("archive did not contain %s", want)
}

func binaryName(tool string) string {
	if runtime.GOOS == "windows" {
		return tool + ".exe"
	}
	return tool
}

// readerAt adapts a byte slice to io.ReaderAt for zip.NewReader.
type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func readerAt(b []byte) io.ReaderAt {
	return byteReaderAt(b)
}
