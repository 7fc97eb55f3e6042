package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts       []*s3.PutObjectInput
	putBodies  []string
	putErr     error
	deletes    []*s3.DeleteObjectsInput
	deleteOut  *s3.DeleteObjectsOutput
	deleteErr  error
	listPages  []*s3.ListObjectsV2Output
	listCalls  int
	listTokens []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	if in.Body != nil {
		b, _ := io.ReadAll(in.Body)
		f.putBodies = append(f.putBodies, string(b))
	}
	return &s3.PutObjectOutput{}, f.putErr
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deletes = append(f.deletes, in)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	if f.deleteOut != nil {
		return f.deleteOut, nil
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listTokens = append(f.listTokens, aws.ToString(in.ContinuationToken))
	page := f.listPages[f.listCalls]
	f.listCalls++
	return page, nil
}

func newTestS3Store(f *fakeS3, publicBase string) *S3Store {
	return &S3Store{client: f, cfg: S3Config{Bucket: "intake", PublicBaseURL: publicBase, PresignTTL: time.Hour}}
}

func TestNewS3Store_AppliesConfig(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "auto", lo.Region)
		assert.NotNil(t, lo.Credentials, "static credentials expected")
		return aws.Config{Region: lo.Region}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return s3.New(s3.Options{Region: cfg.Region})
	}

	st, err := NewS3Store(context.Background(), S3Config{
		Region:       "auto",
		Bucket:       "intake",
		AccessKey:    "ak",
		SecretKey:    "sk",
		Endpoint:     "https://acct.r2.cloudflarestorage.com",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	require.NotNil(t, st)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "https://acct.r2.cloudflarestorage.com", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, time.Hour, st.cfg.PresignTTL)
}

func TestNewS3Store_Errors(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	require.EqualError(t, err, "s3 bucket is required")

	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no profile")
	}
	_, err = NewS3Store(context.Background(), S3Config{Bucket: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load aws config: no profile")
}

func TestS3Store_Upload(t *testing.T) {
	f := &fakeS3{}
	st := newTestS3Store(f, "")

	require.NoError(t, st.Upload(context.Background(), "k/a.pdf", strings.NewReader("body"), 4, "application/pdf"))
	require.Len(t, f.puts, 1)
	in := f.puts[0]
	assert.Equal(t, "intake", aws.ToString(in.Bucket))
	assert.Equal(t, "k/a.pdf", aws.ToString(in.Key))
	assert.Equal(t, int64(4), aws.ToInt64(in.ContentLength))
	assert.Equal(t, "application/pdf", aws.ToString(in.ContentType))
	assert.Equal(t, []string{"body"}, f.putBodies)
}

func TestS3Store_Upload_AccessDenied(t *testing.T) {
	f := &fakeS3{putErr: &smithy.GenericAPIError{Code: "AccessDenied", Message: "bucket policy"}}
	st := newTestS3Store(f, "")

	err := st.Upload(context.Background(), "k", strings.NewReader("x"), 1, "")
	require.ErrorIs(t, err, common.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "bucket policy")

	f.putErr = &smithy.GenericAPIError{Code: "SlowDown", Message: "throttled"}
	err = st.Upload(context.Background(), "k", strings.NewReader("x"), 1, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrPermissionDenied)
}

func TestS3Store_Remove_Batches(t *testing.T) {
	f := &fakeS3{}
	st := newTestS3Store(f, "")

	keys := make([]string, 1500)
	for i := range keys {
		keys[i] = fmt.Sprintf("k/%d", i)
	}
	require.NoError(t, st.Remove(context.Background(), keys))
	require.Len(t, f.deletes, 2)
	assert.Len(t, f.deletes[0].Delete.Objects, 1000)
	assert.Len(t, f.deletes[1].Delete.Objects, 500)
	assert.True(t, aws.ToBool(f.deletes[0].Delete.Quiet))
}

func TestS3Store_Remove_PartialErrors(t *testing.T) {
	f := &fakeS3{deleteOut: &s3.DeleteObjectsOutput{Errors: []s3types.Error{
		{Key: aws.String("a"), Code: aws.String("AccessDenied"), Message: aws.String("denied")},
	}}}
	st := newTestS3Store(f, "")
	err := st.Remove(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, common.ErrPermissionDenied)

	f.deleteOut = &s3.DeleteObjectsOutput{Errors: []s3types.Error{
		{Key: aws.String("b"), Code: aws.String("InternalError"), Message: aws.String("try later")},
	}}
	err = st.Remove(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "delete failed for b: try later")
}

func TestS3Store_List_Paginates(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	f := &fakeS3{listPages: []*s3.ListObjectsV2Output{
		{
			Contents:              []s3types.Object{{Key: aws.String("p/a.pdf"), Size: aws.Int64(3), LastModified: aws.Time(now)}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("t1"),
		},
		{
			Contents:    []s3types.Object{{Key: aws.String("p/b.pdf"), Size: aws.Int64(5)}},
			IsTruncated: aws.Bool(false),
		},
	}}
	st := newTestS3Store(f, "")

	items, err := st.List(context.Background(), "p/")
	require.NoError(t, err)
	assert.Equal(t, []ObjectInfo{
		{Key: "p/a.pdf", Size: 3, LastModified: now},
		{Key: "p/b.pdf", Size: 5},
	}, items)
	assert.Equal(t, []string{"", "t1"}, f.listTokens)
}

func TestS3Store_PublicURL(t *testing.T) {
	st := newTestS3Store(&fakeS3{}, "https://files.example.com/")
	u, err := st.PublicURL(context.Background(), "3d-request/Acme Co/P/a b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/3d-request/Acme%20Co/P/a%20b.pdf", u)

	orig := presignGetObject
	t.Cleanup(func() { presignGetObject = orig })
	presignGetObject = func(_ *s3.PresignClient, _ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		assert.Equal(t, time.Hour, po.Expires)
		return &v4.PresignedHTTPRequest{URL: "https://signed.example.com/" + aws.ToString(in.Key)}, nil
	}

	st = newTestS3Store(&fakeS3{}, "")
	u, err = st.PublicURL(context.Background(), "k/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example.com/k/a.pdf", u)

	presignGetObject = func(*s3.PresignClient, context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("no creds")
	}
	_, err = st.PublicURL(context.Background(), "k")
	require.EqualError(t, err, "presign get: no creds")
}
