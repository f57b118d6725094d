package enrichment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/providers"
)

const (
	DefaultMaxImageBytes    = 20 << 20
	DefaultImageConcurrency = 4
)

var (
	errImageTooLarge = errors.New("image exceeds size limit")
	errOutsideRoot   = errors.New("path escapes the image root")
	errEmptyImage    = errors.New("image is empty")

	errNonPublicAddress = errors.New("image host is not a public address")
)

// ObjectGetter is the part of the S3 client the loader needs
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from the default AWS credential chain.
// endpoint is optional and selects an S3-compatible store.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// LoaderConfig configures an ImageLoader
type LoaderConfig struct {
	// Root is the directory relative image paths are resolved against
	Root string

	MaxBytes    int64
	Concurrency int

	// HTTPClient downloads inline images. When nil, a client that only
	// connects to public addresses is used unless AllowPrivateHosts is set.
	HTTPClient        *http.Client
	AllowPrivateHosts bool

	// S3 serves s3://bucket/key references; nil disables them
	S3 ObjectGetter
}

// ImageLoader resolves image references into provider images
type ImageLoader struct {
	cfg LoaderConfig
}

func NewImageLoader(cfg LoaderConfig) *ImageLoader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxImageBytes
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultImageConcurrency
	}
	if cfg.HTTPClient == nil {
		if cfg.AllowPrivateHosts {
			cfg.HTTPClient = http.DefaultClient
		} else {
			cfg.HTTPClient = publicOnlyClient()
		}
	}
	return &ImageLoader{cfg: cfg}
}

// publicOnlyClient refuses to connect to loopback, private, link-local and
// unspecified addresses. The check runs on the resolved address of every
// dial, redirects included.
func publicOnlyClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || !isPublicIP(ip) {
				return errNonPublicAddress
			}
			return nil
		},
	}
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			MaxIdleConns:        20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

// Load resolves refs in parallel, preserving their order. Remote URLs are
// downloaded only when inline is set; otherwise they are passed by
// reference. The first failure cancels the rest.
func (l *ImageLoader) Load(ctx context.Context, refs []string, inline bool) ([]providers.Image, error) {
	images := make([]providers.Image, len(refs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)

	for i, ref := range refs {
		g.Go(func() error {
			img, err := l.loadOne(gCtx, ref, inline)
			if err != nil {
				return apperr.ImageUnavailable(ref, err)
			}
			images[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func (l *ImageLoader) loadOne(ctx context.Context, ref string, inline bool) (providers.Image, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if !inline {
			return providers.Image{URL: ref}, nil
		}
		return l.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "s3://"):
		return l.fetchS3(ctx, ref)
	default:
		return l.readFile(ref)
	}
}

func decodeDataURI(ref string) (providers.Image, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return providers.Image{}, errors.New("malformed data URI")
	}

	mediaType := header
	isBase64 := false
	if before, found := strings.CutSuffix(header, ";base64"); found {
		mediaType, isBase64 = before, true
	}

	var data []byte
	if isBase64 {
		var err error
		if data, err = base64.StdEncoding.DecodeString(payload); err != nil {
			return providers.Image{}, fmt.Errorf("failed to decode data URI: %w", err)
		}
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return providers.Image{}, fmt.Errorf("failed to decode data URI: %w", err)
		}
		data = []byte(unescaped)
	}

	if len(data) == 0 {
		return providers.Image{}, errEmptyImage
	}
	return providers.Image{Data: data, MIMEType: sniffType(mediaType, "", data)}, nil
}

func (l *ImageLoader) fetchHTTP(ctx context.Context, ref string) (providers.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return providers.Image{}, err
	}

	resp, err := l.cfg.HTTPClient.Do(req)
	if err != nil {
		return providers.Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.Image{}, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	data, err := l.readLimited(resp.Body)
	if err != nil {
		return providers.Image{}, err
	}
	return providers.Image{Data: data, MIMEType: sniffType(resp.Header.Get("Content-Type"), ref, data)}, nil
}

func (l *ImageLoader) fetchS3(ctx context.Context, ref string) (providers.Image, error) {
	if l.cfg.S3 == nil {
		return providers.Image{}, errors.New("s3 image references are not configured")
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, "s3://"), "/")
	if !ok || bucket == "" || key == "" {
		return providers.Image{}, errors.New("malformed s3 reference")
	}

	out, err := l.cfg.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return providers.Image{}, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > l.cfg.MaxBytes {
		return providers.Image{}, errImageTooLarge
	}

	data, err := l.readLimited(out.Body)
	if err != nil {
		return providers.Image{}, err
	}
	return providers.Image{Data: data, MIMEType: sniffType(aws.ToString(out.ContentType), key, data)}, nil
}

func (l *ImageLoader) readFile(ref string) (providers.Image, error) {
	path, err := l.resolve(ref)
	if err != nil {
		return providers.Image{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return providers.Image{}, err
	}
	defer f.Close()

	data, err := l.readLimited(f)
	if err != nil {
		return providers.Image{}, err
	}
	return providers.Image{Data: data, MIMEType: sniffType("", path, data)}, nil
}

// resolve maps a local reference into the image root
func (l *ImageLoader) resolve(ref string) (string, error) {
	if l.cfg.Root == "" {
		return filepath.Clean(ref), nil
	}

	root, err := filepath.Abs(l.cfg.Root)
	if err != nil {
		return "", err
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return path, nil
}

func (l *ImageLoader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, errImageTooLarge
	}
	if len(data) == 0 {
		return nil, errEmptyImage
	}
	return data, nil
}

// sniffType picks the declared media type, then the file extension, then
// the content itself
func sniffType(declared, name string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if ext := filepath.Ext(name); ext != "" {
		if mt, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	if mt := http.DetectContentType(data); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/jpeg"
}
