package s3mirror

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	keys   []string
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, *in.Bucket+"/"+*in.Key)
	f.bodies = append(f.bodies, string(b))
	return &s3.PutObjectOutput{}, nil
}

func TestMirrorPutUsesPrefix(t *testing.T) {
	p := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(p, []byte("a;b\n1;2\n"), 0o644))

	fake := &fakeS3{}
	m := NewWithClient(fake, "tip-bronze", "/diamantina/")
	require.NoError(t, m.Put(context.Background(), "bronze/inep/x/2024/extracted_at=2024-01-01T00-00-00Z/raw.csv", p, "text/csv"))

	assert.Equal(t, []string{"tip-bronze/diamantina/bronze/inep/x/2024/extracted_at=2024-01-01T00-00-00Z/raw.csv"}, fake.keys)
	assert.Equal(t, "a;b\n1;2\n", fake.bodies[0])
}

func TestMirrorPutPropagatesErrors(t *testing.T) {
	p := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	m := NewWithClient(&fakeS3{err: errors.New("denied")}, "b", "")
	err := m.Put(context.Background(), "bronze/k", p, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/bronze/k")
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
