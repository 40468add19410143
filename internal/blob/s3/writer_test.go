package s3blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{}, nil
}

func TestWriter_Put(t *testing.T) {
	up := &fakeUploader{}
	w := &Writer{up: up, bucket: "snapshots"}

	err := w.Put(context.Background(), "assets/2024/05/01/120000.json", strings.NewReader(`[]`), "application/json")
	require.NoError(t, err)

	assert.Equal(t, "snapshots", aws.ToString(up.input.Bucket))
	assert.Equal(t, "assets/2024/05/01/120000.json", aws.ToString(up.input.Key))
	assert.Equal(t, "application/json", aws.ToString(up.input.ContentType))
	assert.Equal(t, `[]`, up.body)
}

func TestWriter_PutError(t *testing.T) {
	boom := errors.New("denied")
	w := &Writer{up: &fakeUploader{err: boom}, bucket: "b"}

	err := w.Put(context.Background(), "k", strings.NewReader("x"), "")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "s3blob: upload k")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	require.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
}
