package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	objects map[string][]byte
	pages   [][]types.Object
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; ok {
		return &s3.HeadObjectOutput{}, nil
	}
	if aws.ToString(in.Key) == "boom" {
		return nil, errors.New("access denied")
	}
	return nil, &types.NotFound{}
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if in.ContinuationToken != nil {
		page = 1
	}
	out := &s3.ListObjectsV2Output{Contents: f.pages[page]}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("next")
	}
	return out, nil
}

func newTestClient(prefix string) (*Client, *fakeAPI) {
	api := &fakeAPI{objects: map[string][]byte{}}
	cfg := DefaultConfig("bucket", "us-east-1")
	cfg.Prefix = prefix
	return &Client{cfg: cfg, client: api}, api
}

func TestKey(t *testing.T) {
	c, _ := newTestClient("/rejects/")
	assert.Equal(t, "rejects/BadData_2024-01-02_030405/a.csv", c.Key("BadData_2024-01-02_030405", "a.csv"))

	c, _ = newTestClient("")
	assert.Equal(t, "a.csv", c.Key("a.csv"))
}

func TestUploadAndExists(t *testing.T) {
	c, api := newTestClient("p")
	local := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(local, []byte("x,y\n"), 0644))

	key := c.Key("a.csv")
	require.NoError(t, c.Upload(context.Background(), key, local))
	assert.Equal(t, []byte("x,y\n"), api.objects["p/a.csv"])

	ok, err := c.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Exists(context.Background(), "boom")
	assert.Error(t, err)

	assert.Error(t, c.Upload(context.Background(), "k", filepath.Join(t.TempDir(), "nope")))
}

func TestListAll_Paginates(t *testing.T) {
	c, api := newTestClient("")
	api.pages = [][]types.Object{
		{{Key: aws.String("a"), Size: aws.Int64(1)}},
		{{Key: aws.String("b"), Size: aws.Int64(2)}},
	}

	objs, err := c.ListAll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "b", objs[1].Key)
	assert.Equal(t, int64(2), objs[1].Size)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("x.CSV"))
	assert.Equal(t, "application/vnd.apache.parquet", contentType("x.parquet"))
	assert.Equal(t, "application/octet-stream", contentType("x"))
}
