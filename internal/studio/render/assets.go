package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	DefaultAssetTimeout = 10 * time.Second
	maxAssetBytes       = 20 << 20
	assetCacheSize      = 64
)

var ErrAssetUnavailable = errors.New("asset unavailable")

// AssetLoader resolves image sources: data URIs, http(s) URLs and files
// under BaseDir. Each load is bounded by Timeout.
type AssetLoader struct {
	Timeout time.Duration
	BaseDir string

	client *http.Client

	mu    sync.Mutex
	cache map[string]image.Image
	order []string
}

func NewAssetLoader(timeout time.Duration, baseDir string) *AssetLoader {
	if timeout <= 0 {
		timeout = DefaultAssetTimeout
	}
	return &AssetLoader{
		Timeout: timeout,
		BaseDir: baseDir,
		client:  &http.Client{},
		cache:   map[string]image.Image{},
	}
}

func (a *AssetLoader) Load(ctx context.Context, src string) (image.Image, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("%w: empty source", ErrAssetUnavailable)
	}
	if img, ok := a.cached(src); ok {
		return img, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	data, err := a.fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrAssetUnavailable, err)
	}
	a.store(src, img)
	return img, nil
}

func (a *AssetLoader) fetch(ctx context.Context, src string) ([]byte, error) {
	switch {
	case strings.HasPrefix(src, "data:"):
		return decodeDataURI(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return a.fetchHTTP(ctx, src)
	case strings.HasPrefix(src, "file://"):
		u, err := url.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
		}
		return a.readFile(u.Path)
	}
	return a.readFile(src)
}

func (a *AssetLoader) fetchHTTP(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrAssetUnavailable, src, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	return data, nil
}

// readFile reads a relative path beneath BaseDir. Without a BaseDir no
// local file is served; absolute paths and paths leaving BaseDir (through
// .. or a symlink) are refused.
func (a *AssetLoader) readFile(path string) ([]byte, error) {
	if a.BaseDir == "" {
		return nil, fmt.Errorf("%w: local file %q: no asset directory configured", ErrAssetUnavailable, path)
	}
	path = filepath.FromSlash(path)
	if !filepath.IsLocal(path) {
		return nil, fmt.Errorf("%w: %q is outside the asset directory", ErrAssetUnavailable, path)
	}

	root, err := os.OpenRoot(a.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	defer root.Close()

	f, err := root.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	return data, nil
}

func decodeDataURI(src string) ([]byte, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, fmt.Errorf("%w: malformed data URI", ErrAssetUnavailable)
	}
	meta, payload := src[len("data:"):comma], src[comma+1:]

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
		}
		return data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	return []byte(text), nil
}

func (a *AssetLoader) cached(src string) (image.Image, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	img, ok := a.cache[src]
	return img, ok
}

// store keeps the most recent decodes; the oldest entry is evicted first.
func (a *AssetLoader) store(src string, img image.Image) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.cache[src]; ok {
		return
	}
	if len(a.order) >= assetCacheSize {
		delete(a.cache, a.order[0])
		a.order = a.order[1:]
	}
	a.cache[src] = img
	a.order = append(a.order, src)
}
