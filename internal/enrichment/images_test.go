package enrichment

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_enricher/internal/apperr"
)

var (
	jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngBytes  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
)

func writeImage(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	out := &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if ct, ok := f.types[key]; ok {
		out.ContentType = aws.String(ct)
	}
	return out, nil
}

func TestImageLoader_LocalFiles(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "front.jpg", jpegBytes)
	writeImage(t, dir, "sub/back.png", pngBytes)

	l := NewImageLoader(LoaderConfig{Root: dir})
	images, err := l.Load(context.Background(), []string{"front.jpg", "sub/back.png"}, true)
	require.NoError(t, err)
	require.Len(t, images, 2)

	assert.Equal(t, jpegBytes, images[0].Data)
	assert.Equal(t, "image/jpeg", images[0].MIMEType)
	assert.Equal(t, pngBytes, images[1].Data)
	assert.Equal(t, "image/png", images[1].MIMEType)
}

func TestImageLoader_RejectsEscapesAndMissing(t *testing.T) {
	dir := t.TempDir()
	l := NewImageLoader(LoaderConfig{Root: filepath.Join(dir, "images")})
	writeImage(t, dir, "secret.jpg", jpegBytes)

	for _, ref := range []string{"../secret.jpg", filepath.Join(dir, "secret.jpg"), "missing.jpg"} {
		_, err := l.Load(context.Background(), []string{ref}, true)
		assert.ErrorIs(t, err, apperr.ErrImageUnavailable, ref)
	}
}

func TestImageLoader_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "big.jpg", bytes.Repeat([]byte{0xff}, 64))
	writeImage(t, dir, "empty.jpg", nil)

	l := NewImageLoader(LoaderConfig{Root: dir, MaxBytes: 32})
	_, err := l.Load(context.Background(), []string{"big.jpg"}, true)
	assert.ErrorIs(t, err, apperr.ErrImageUnavailable)
	assert.ErrorIs(t, err, errImageTooLarge)

	_, err = l.Load(context.Background(), []string{"empty.jpg"}, true)
	assert.ErrorIs(t, err, errEmptyImage)
}

func TestImageLoader_DataURI(t *testing.T) {
	l := NewImageLoader(LoaderConfig{})
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	images, err := l.Load(context.Background(), []string{ref}, false)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, images[0].Data)
	assert.Equal(t, "image/png", images[0].MIMEType)

	_, err = l.Load(context.Background(), []string{"data:image/png;base64,@@@"}, false)
	assert.ErrorIs(t, err, apperr.ErrImageUnavailable)
	_, err = l.Load(context.Background(), []string{"data:no-comma"}, false)
	assert.ErrorIs(t, err, apperr.ErrImageUnavailable)
}

func TestImageLoader_HTTP(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/webp")
		w.Write(jpegBytes)
	}))
	defer server.Close()

	l := NewImageLoader(LoaderConfig{HTTPClient: server.Client()})
	ctx := context.Background()

	// By reference: no download
	images, err := l.Load(ctx, []string{server.URL + "/a.webp"}, false)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/a.webp", images[0].URL)
	assert.Nil(t, images[0].Data)
	assert.Zero(t, hits)

	images, err = l.Load(ctx, []string{server.URL + "/a.webp"}, true)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, images[0].Data)
	assert.Equal(t, "image/webp", images[0].MIMEType)

	_, err = l.Load(ctx, []string{server.URL + "/missing.jpg"}, true)
	assert.ErrorIs(t, err, apperr.ErrImageUnavailable)
}

func TestImageLoader_DefaultClientRefusesPrivateHosts(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(jpegBytes)
	}))
	defer server.Close()

	ctx := context.Background()
	ref := server.URL + "/a.jpg"

	_, err := NewImageLoader(LoaderConfig{}).Load(ctx, []string{ref}, true)
	assert.ErrorIs(t, err, apperr.ErrImageUnavailable)
	assert.Zero(t, hits)

	// By reference nothing is fetched, so nothing is refused
	images, err := NewImageLoader(LoaderConfig{}).Load(ctx, []string{ref}, false)
	require.NoError(t, err)
	assert.Equal(t, ref, images[0].URL)

	images, err = NewImageLoader(LoaderConfig{AllowPrivateHosts: true}).Load(ctx, []string{ref}, true)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, images[0].Data)
	assert.Equal(t, 1, hits)
}

func TestIsPublicIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:2800:220:1:248:1893:25c8:1946", true},
		{"127.0.0.1", false},
		{"10.1.2.3", false},
		{"192.168.0.10", false},
		{"172.16.5.4", false},
		{"169.254.169.254", false},
		{"0.0.0.0", false},
		{"::1", false},
		{"fd00::1", false},
		{"fe80::1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isPublicIP(net.ParseIP(tt.ip)), tt.ip)
	}
}

func TestImageLoader_S3(t *testing.T) {
	store := &fakeS3{
		objects: map[string][]byte{"photos/items/1.jpg": jpegBytes, "photos/raw": pngBytes},
		types:   map[string]string{"photos/items/1.jpg": "image/jpeg"},
	}
	l := NewImageLoader(LoaderConfig{S3: store})
	ctx := context.Background()

	images, err := l.Load(ctx, []string{"s3://photos/items/1.jpg", "s3://photos/raw"}, false)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", images[0].MIMEType)
	assert.Equal(t, "image/png", images[1].MIMEType, "type sniffed from content")

	for _, ref := range []string{"s3://photos/nope.jpg", "s3://photos", "s3:///key"} {
		_, err = l.Load(ctx, []string{ref}, false)
		assert.ErrorIs(t, err, apperr.ErrImageUnavailable, ref)
	}

	_, err = NewImageLoader(LoaderConfig{}).Load(ctx, []string{"s3://photos/items/1.jpg"}, false)
	assert.ErrorIs(t, err, apperr.ErrImageUnavailable)
}

func TestImageLoader_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	refs := make([]string, 10)
	for i := range refs {
		name := string(rune('a'+i)) + ".jpg"
		writeImage(t, dir, name, append(append([]byte{}, jpegBytes...), byte(i)))
		refs[i] = name
	}

	images, err := NewImageLoader(LoaderConfig{Root: dir, Concurrency: 3}).Load(context.Background(), refs, true)
	require.NoError(t, err)
	for i, img := range images {
		assert.Equal(t, byte(i), img.Data[len(img.Data)-1])
	}
}
