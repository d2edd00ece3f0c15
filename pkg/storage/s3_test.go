package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	putInput  *s3.PutObjectInput
	putBody   []byte
	putErr    error
	deleteKey string
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.putInput = in
	f.putBody, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.deleteKey = aws.StringValue(in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StorePutAndPublicURL(t *testing.T) {
	client := &fakeS3{}
	store := NewS3StoreWithClient(client, S3Config{Bucket: "dbos-uploads", Region: "ap-south-1"})

	key, err := store.Put(context.Background(), Object{Folder: "photos", ContentType: "image/jpeg", Data: []byte("jpeg")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "photos/"))
	assert.Equal(t, "dbos-uploads", aws.StringValue(client.putInput.Bucket))
	assert.Equal(t, "image/jpeg", aws.StringValue(client.putInput.ContentType))
	assert.Equal(t, []byte("jpeg"), client.putBody)

	link, err := store.URL(context.Background(), key, ModeView)
	require.NoError(t, err)
	assert.Equal(t, "https://dbos-uploads.s3.ap-south-1.amazonaws.com/"+key, link)

	require.NoError(t, store.Delete(context.Background(), key))
	assert.Equal(t, key, client.deleteKey)
}

func TestS3StoreCustomEndpointURL(t *testing.T) {
	store := NewS3StoreWithClient(&fakeS3{}, S3Config{Bucket: "b", Region: "r", Endpoint: "http://minio:9000/"})
	link, err := store.URL(context.Background(), "documents/x.pdf", ModePreview)
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/b/documents/x.pdf", link)
}

func TestS3StorePutError(t *testing.T) {
	store := NewS3StoreWithClient(&fakeS3{putErr: errors.New("denied")}, S3Config{Bucket: "b", Region: "r"})
	_, err := store.Put(context.Background(), Object{Folder: "photos", ContentType: "image/png", Data: []byte{1}})
	require.Error(t, err)
}
