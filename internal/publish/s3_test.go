package publish

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kx0101/perfgate/internal/artifact"
	"github.com/kx0101/perfgate/internal/scoring"
)

type putCall struct {
	key         string
	contentType string
	body        string
}

type fakePutter struct {
	calls []putCall
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.calls = append(f.calls, putCall{key: *in.Key, contentType: *in.ContentType, body: string(body)})
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct {
	ttl time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.ttl = opts.Expires

	return &v4.PresignedHTTPRequest{URL: "https://signed.example.com/" + *in.Bucket + "/" + *in.Key}, nil
}

func testBundle(html string) *Bundle {
	res := &scoring.Result{Mode: scoring.ModeEndpoint, Score: 50, Message: "1 of 2 endpoints passing"}
	a := artifact.FromResult(res, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	a.RunID = "run-1"

	b := &Bundle{Artifact: a, Result: res}
	if html != "" {
		b.HTMLReport = []byte(html)
	}
	return b
}

func TestS3PublisherPublish(t *testing.T) {
	putter := &fakePutter{}
	presigner := &fakePresigner{}
	p := newS3Publisher(putter, presigner, S3Config{Bucket: "ci-reports", KeyPrefix: "/perfgate/", PresignedTTL: time.Hour})

	link, err := p.Publish(context.Background(), testBundle("<html></html>"))
	require.NoError(t, err)

	require.Len(t, putter.calls, 2)
	assert.Equal(t, "perfgate/run-1/score_output.json", putter.calls[0].key)
	assert.Equal(t, "application/json", putter.calls[0].contentType)
	assert.Contains(t, putter.calls[0].body, `"success_rate": 50`)
	assert.Equal(t, "perfgate/run-1/report.html", putter.calls[1].key)
	assert.Equal(t, "<html></html>", putter.calls[1].body)

	assert.Equal(t, "https://signed.example.com/ci-reports/perfgate/run-1/report.html", link)
	assert.Equal(t, time.Hour, presigner.ttl)
}

func TestS3PublisherWithoutReport(t *testing.T) {
	putter := &fakePutter{}
	p := newS3Publisher(putter, nil, S3Config{Bucket: "ci-reports"})

	link, err := p.Publish(context.Background(), testBundle(""))
	require.NoError(t, err)

	require.Len(t, putter.calls, 1)
	assert.Equal(t, "s3://ci-reports/run-1/score_output.json", link)
	assert.Equal(t, 24*time.Hour, p.presignedTTL)
}

func TestS3PublisherErrors(t *testing.T) {
	p := newS3Publisher(&fakePutter{err: errors.New("access denied")}, nil, S3Config{Bucket: "ci-reports"})

	_, err := p.Publish(context.Background(), testBundle(""))
	assert.ErrorContains(t, err, "access denied")

	_, err = p.Publish(context.Background(), &Bundle{})
	assert.ErrorContains(t, err, "nothing to publish")

	_, err = NewS3Publisher(context.Background(), S3Config{})
	assert.ErrorContains(t, err, "bucket is required")
}
