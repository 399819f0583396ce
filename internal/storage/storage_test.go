package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-whatsapp-inbox/internal/config"
)

func TestLocalStore_PutWritesFileAndReturnsURL(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, "http://cdn.local/media/", zerolog.Nop())
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "clients/5511/1700.jpg", strings.NewReader("jpeg-bytes"), 10, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.local/media/clients/5511/1700.jpg", url)

	b, err := os.ReadFile(filepath.Join(root, "clients", "5511", "1700.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(b))
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "http://x", zerolog.Nop())
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "a/../../b", "a//b"} {
		_, err := s.Put(context.Background(), key, strings.NewReader("x"), 1, "")
		assert.Error(t, err, key)
	}
}

func TestLocalStore_CanceledContext(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "http://x", zerolog.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, "a.txt", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_SelectsDriver(t *testing.T) {
	st, err := New(context.Background(), config.StorageConfig{Driver: "local", LocalPath: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, st)

	st, err = New(context.Background(), config.StorageConfig{Driver: "s3"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, st)

	_, err = New(context.Background(), config.StorageConfig{Driver: "ftp"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestS3Store_DisabledWithoutCredentials(t *testing.T) {
	s, err := NewS3Store(context.Background(), config.StorageConfig{S3Bucket: "media"}, zerolog.Nop())
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "a.jpg", strings.NewReader("x"), 1, "image/jpeg")
	assert.ErrorIs(t, err, ErrDisabled)
}

type fakePutter struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Store_Put(t *testing.T) {
	fp := &fakePutter{}
	s := &S3Store{bucket: "media", baseURL: "https://media.example.com", client: fp, log: zerolog.Nop()}

	url, err := s.Put(context.Background(), "/conversations/c1/17_receita.pdf", strings.NewReader("pdf"), 3, "")
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/conversations/c1/17_receita.pdf", url)
	assert.Equal(t, "media", aws.ToString(fp.in.Bucket))
	assert.Equal(t, "conversations/c1/17_receita.pdf", aws.ToString(fp.in.Key))
	assert.Equal(t, "application/octet-stream", aws.ToString(fp.in.ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(fp.in.ContentLength))
	assert.Equal(t, "pdf", fp.body)

	fp.err = errors.New("boom")
	_, err = s.Put(context.Background(), "a.pdf", strings.NewReader("pdf"), 3, "application/pdf")
	assert.ErrorContains(t, err, "boom")
}
