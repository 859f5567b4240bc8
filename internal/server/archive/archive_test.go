package archive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Bucket:       "releases",
		Region:       "us-east-1",
		BaseEndpoint: "http://127.0.0.1:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
	}
}

type capture struct {
	put      *s3.PutObjectInput
	putBody  string
	endpoint string
	expires  bool
}

// stubS3 replaces the AWS seams for the duration of the test.
func stubS3(t *testing.T, putErr error) *capture {
	t.Helper()
	c := &capture{}

	origLoad, origNew, origPre, origPut, origGet := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient, putObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient, putObject, presignGetObject = origLoad, origNew, origPre, origPut, origGet
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		c.endpoint = aws.ToString(opts.BaseEndpoint)
		return &s3.Client{}
	}
	newS3PresignClient = func(*s3.Client) *s3.PresignClient {
		return &s3.PresignClient{}
	}
	putObject = func(_ *s3.Client, _ context.Context, in *s3.PutObjectInput) error {
		c.put = in
		b, err := io.ReadAll(in.Body)
		require.NoError(t, err)
		c.putBody = string(b)
		return putErr
	}
	presignGetObject = func(_ *s3.PresignClient, _ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		c.expires = po.Expires == LinkTTL
		return &v4.PresignedHTTPRequest{URL: "https://s3.example/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)}, nil
	}
	return c
}

func pdfServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("%PDF-1.7 signed"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestArchive(t *testing.T) {
	c := stubS3(t, nil)
	srv := pdfServer(t, http.StatusOK)

	link, err := New(testConfig()).Archive(context.Background(), "user", "sr1", srv.URL+"/files/sr1")
	require.NoError(t, err)

	require.NotNil(t, c.put)
	key := aws.ToString(c.put.Key)
	assert.True(t, strings.HasPrefix(key, "signed/user/sr1/"), key)
	assert.True(t, strings.HasSuffix(key, ".pdf"), key)
	assert.Equal(t, "releases", aws.ToString(c.put.Bucket))
	assert.Equal(t, "application/pdf", aws.ToString(c.put.ContentType))
	assert.Equal(t, "%PDF-1.7 signed", c.putBody)
	assert.Equal(t, int64(len(c.putBody)), aws.ToInt64(c.put.ContentLength))
	assert.Equal(t, "http://127.0.0.1:9000", c.endpoint)
	assert.True(t, c.expires)
	assert.Equal(t, "https://s3.example/releases/"+key, link)
}

func TestArchive_DownloadFailure(t *testing.T) {
	c := stubS3(t, nil)
	srv := pdfServer(t, http.StatusNotFound)

	_, err := New(testConfig()).Archive(context.Background(), "user", "sr1", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Nil(t, c.put)
}

func TestArchive_UploadFailure(t *testing.T) {
	stubS3(t, errors.New("bucket missing"))
	srv := pdfServer(t, http.StatusOK)

	_, err := New(testConfig()).Archive(context.Background(), "user", "sr1", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket missing")
}

func TestArchive_ConfigFailure(t *testing.T) {
	stubS3(t, nil)
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	srv := pdfServer(t, http.StatusOK)

	_, err := New(testConfig()).Archive(context.Background(), "user", "sr1", srv.URL)
	assert.ErrorContains(t, err, "load-fail")
}

func TestObjectKey_Unique(t *testing.T) {
	assert.NotEqual(t, ObjectKey("u", "r"), ObjectKey("u", "r"))
}
