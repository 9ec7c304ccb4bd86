package proofs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A 1x1 transparent PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

func TestNewKeyAndURL(t *testing.T) {
	assert.Equal(t, "b1.png", NewKey("b1", "Facture.PNG"))
	assert.Equal(t, "b1", NewKey("b1", "noext"))
	assert.NotEmpty(t, NewKey("", "a.jpg"))
	assert.Equal(t, "http://h/proofs/b1.png", URL("http://h/proofs/", "b1.png"))
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"", "../x", "a/b", `a\b`, ".hidden"} {
		assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
	assert.NoError(t, ValidateKey("b1.png"))
}

func TestDisk(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, d.Put(ctx, "b1.png", "image/png", pngBytes))
	data, ct, err := d.Get(ctx, "b1.png")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", ct)

	_, _, err = d.Get(ctx, "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, d.Put(ctx, "../escape.png", "", pngBytes), ErrInvalidKey)
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	mimes   map[string]string
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.mimes[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: aws.String(f.mimes[aws.ToString(in.Key)]),
	}, nil
}

func TestS3(t *testing.T) {
	ctx := context.Background()
	fake := &fakeObjects{objects: map[string][]byte{}, mimes: map[string]string{}}
	s := NewS3WithClient(fake, "proofs")

	require.NoError(t, s.Put(ctx, "b1.jpg", "image/jpeg", []byte("jpeg")))
	assert.Contains(t, fake.objects, "proofs/b1.jpg")

	data, ct, err := s.Get(ctx, "b1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)
	assert.Equal(t, "image/jpeg", ct)

	_, _, err = s.Get(ctx, "nope.jpg")
	assert.True(t, errors.Is(err, ErrNotFound))
}
