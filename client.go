package aippt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aippt/aippt/version"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/k1LoW/errors"
)

var userAgent = "aippt/" + version.Version

const (
	defaultProbeTimeout     = 30 * time.Second
	defaultProbeConcurrency = 8
	maxRemoteImageSize      = 32 * 1024 * 1024
)

// ImageLoader builds an image pool from files, directories, pool JSON files and URLs.
type ImageLoader struct {
	logger      *slog.Logger
	timeout     time.Duration
	concurrency int
	retryMax    int
	retryWait   time.Duration
	client      *http.Client
}

type ImageLoaderOption func(*ImageLoader) error

func WithLoaderLogger(logger *slog.Logger) ImageLoaderOption {
	return func(l *ImageLoader) error {
		l.logger = logger
		return nil
	}
}

func WithProbeTimeout(timeout time.Duration) ImageLoaderOption {
	return func(l *ImageLoader) error {
		if timeout <= 0 {
			return fmt.Errorf("invalid probe timeout: %s", timeout)
		}
		l.timeout = timeout
		return nil
	}
}

func WithProbeConcurrency(n int) ImageLoaderOption {
	return func(l *ImageLoader) error {
		if n < 1 {
			return fmt.Errorf("invalid probe concurrency: %d", n)
		}
		l.concurrency = n
		return nil
	}
}

// WithProbeRetry sets how often and how long to wait before retrying a failed remote probe.
func WithProbeRetry(retryMax int, wait time.Duration) ImageLoaderOption {
	return func(l *ImageLoader) error {
		l.retryMax = retryMax
		l.retryWait = wait
		return nil
	}
}

func NewImageLoader(opts ...ImageLoaderOption) (_ *ImageLoader, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	l := &ImageLoader{
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		timeout:     defaultProbeTimeout,
		concurrency: defaultProbeConcurrency,
		retryMax:    3,
		retryWait:   1 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Timeout: l.timeout}
	retryClient.RetryMax = l.retryMax
	retryClient.RetryWaitMin = l.retryWait
	retryClient.RetryWaitMax = 30 * l.retryWait
	retryClient.Logger = newAPILogger(l.logger)
	l.client = retryClient.StandardClient()
	return l, nil
}

// Load reads every source and returns the images found, without duplicates.
// A source is an image URL, an image file, a directory of images or a JSON file listing pool images.
func (l *ImageLoader) Load(ctx context.Context, sources ...string) (_ []PoolImage, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	var (
		listed []PoolImage
		local  []string
		remote []string
	)
	for _, src := range sources {
		switch {
		case isRemote(src):
			remote = append(remote, src)
		case strings.EqualFold(filepath.Ext(src), ".json"):
			images, err := readPoolFile(src)
			if err != nil {
				return nil, err
			}
			listed = append(listed, images...)
		default:
			fi, err := os.Stat(src)
			if err != nil {
				return nil, fmt.Errorf("failed to stat image source %s: %w", src, err)
			}
			if !fi.IsDir() {
				local = append(local, src)
				continue
			}
			files, err := imageFiles(src)
			if err != nil {
				return nil, err
			}
			local = append(local, files...)
		}
	}

	probes, err := l.probeAll(ctx, local, remote)
	if err != nil {
		return nil, err
	}
	before := len(probes)
	probes = dedupeProbes(probes)
	if removed := before - len(probes); removed > 0 {
		l.logger.Info("removed similar images", slog.Int("count", removed))
	}

	images := listed
	for _, p := range probes {
		images = append(images, p.poolImage())
	}
	seen := map[string]struct{}{}
	images = slices.DeleteFunc(images, func(i PoolImage) bool {
		if _, ok := seen[i.ID]; ok {
			return true
		}
		seen[i.ID] = struct{}{}
		return false
	})
	l.logger.Info("loaded images", slog.Int("count", len(images)))
	return images, nil
}

// probeRemote fetches the header of a remote image.
func (l *ImageLoader) probeRemote(ctx context.Context, url string) (_ *imageProbe, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	if p, ok := loadProbeCache(url); ok {
		return p, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image from URL %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image from URL %s: %w", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image from URL %s: status code %d", url, res.StatusCode)
	}
	p, err := probeReader(res.Body, maxRemoteImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to probe image from URL %s: %w", url, err)
	}
	p.src = url
	storeProbeCache(url, p)
	return p, nil
}

// readPoolFile reads a JSON array of pool images.
func readPoolFile(path string) ([]PoolImage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image pool %s: %w", path, err)
	}
	var images []PoolImage
	if err := json.Unmarshal(b, &images); err != nil {
		return nil, fmt.Errorf("failed to parse image pool %s: %w", path, err)
	}
	for i := range images {
		if images[i].Src == "" {
			return nil, fmt.Errorf("image %d of %s has no src", i, path)
		}
		if images[i].ID == "" {
			images[i].ID = imageID(images[i].Src)
		}
	}
	return images, nil
}

// imageFiles lists the image files under dir in lexical order.
func imageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images in %s: %w", dir, err)
	}
	return files, nil
}

var _ retryablehttp.LeveledLogger = (*apiLogger)(nil)

type apiLogger struct {
	l *slog.Logger
}

func (l *apiLogger) Error(msg string, keysAndValues ...any) {
	l.l.Error(msg, append([]any{slog.String("original_log_level", "error")}, keysAndValues...)...)
}
func (l *apiLogger) Info(msg string, keysAndValues ...any) {
	l.l.Info(msg, append([]any{slog.String("original_log_level", "info")}, keysAndValues...)...)
}
func (l *apiLogger) Debug(msg string, keysAndValues ...any) {
	if strings.HasPrefix(msg, "retrying") {
		// shown as a spinner by the dot handler
		l.l.Info(msg, append([]any{slog.String("original_log_level", "debug")}, keysAndValues...)...)
		return
	}
	l.l.Debug(msg, append([]any{slog.String("original_log_level", "debug")}, keysAndValues...)...)
}
func (l *apiLogger) Warn(msg string, keysAndValues ...any) {
	l.l.Warn(msg, append([]any{slog.String("original_log_level", "warn")}, keysAndValues...)...)
}

func newAPILogger(l *slog.Logger) retryablehttp.LeveledLogger {
	return &apiLogger{
		l: l.WithGroup("probe"),
	}
}
