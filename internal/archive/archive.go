// Package archive uploads completed test result bundles to an
// S3-compatible object store and atomically repoints a "latest" alias at
// the newest run, using the same optimistic-concurrency ETag dance a
// clustered key-value store uses to serialize concurrent writers.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var errMismatchedETag = errors.New("archive: mismatched ETags")

const latestKey = "latest.json"

// Config bundles the primitive values that configure an Archive.
type Config struct {
	Endpoint string
	Region   string
	Bucket   string
	User     string
	Password string
	Timeout  time.Duration
}

// Manifest records which run id the "latest" alias currently points to.
type Manifest struct {
	RunID string `json:"run_id"`
}

// Archive uploads result bundles to object storage.
type Archive struct {
	cfg Config

	mu     sync.Mutex // serializing ops reduces retries, same as the storage type this is adapted from
	client *s3.Client
}

// New constructs an Archive. It makes no request to the object store;
// call EnsureBucketExists before the first upload.
func New(cfg Config) *Archive {
	client := s3.New(s3.Options{
		Region:                     cfg.Region,
		BaseEndpoint:               aws.String(cfg.Endpoint),
		DefaultsMode:               aws.DefaultsModeStandard,
		Credentials:                credentials.NewStaticCredentialsProvider(cfg.User, cfg.Password, ""),
		UsePathStyle:               true,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenSupported,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenSupported,
		HTTPClient: &http.Client{
			Transport: &http.Transport{},
		},
	})
	return &Archive{cfg: cfg, client: client}
}

// EnsureBucketExists creates the bucket if it doesn't exist, tolerating
// the case where this process already owns it.
func (a *Archive) EnsureBucketExists() error {
	_, err := a.client.CreateBucket(context.Background(), &s3.CreateBucketInput{
		Bucket: aws.String(a.cfg.Bucket),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "BucketAlreadyOwnedByYou" {
			return nil
		}
	}
	return err
}

// PutObject uploads a single named artifact under a run's prefix (e.g.
// "history.json", "results.json", "messages.svg").
func (a *Archive) PutObject(runID, name string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout())
	defer cancel()
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(path.Join(runID, name)),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s/%s: %w", runID, name, err)
	}
	return nil
}

// GetObject downloads a single named artifact from a run's prefix.
func (a *Archive) GetObject(runID, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout())
	defer cancel()
	res, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(path.Join(runID, name)),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: get %s/%s: %w", runID, name, err)
	}
	defer res.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		return nil, fmt.Errorf("archive: read %s/%s: %w", runID, name, err)
	}
	return buf.Bytes(), nil
}

// SetLatest atomically repoints the "latest" alias at runID, retrying on
// concurrent-writer conflicts the same way the key-value store this is
// adapted from serializes concurrent SETs: read the current manifest and
// its ETag, write the new manifest conditioned on that ETag, and retry
// from the top on a precondition failure.
func (a *Archive) SetLatest(runID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		_, etag, err := a.getLatest()
		if err != nil {
			return err
		}
		err = a.putLatest(Manifest{RunID: runID}, etag)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errMismatchedETag) {
			return err
		}
	}
}

// Latest returns the run id the "latest" alias currently points to.
func (a *Archive) Latest() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, _, err := a.getLatest()
	if err != nil {
		return "", err
	}
	return m.RunID, nil
}

func (a *Archive) getLatest() (Manifest, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout())
	defer cancel()

	res, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(latestKey),
	})
	if err != nil {
		var errNoKey *types.NoSuchKey
		if errors.As(err, &errNoKey) {
			return Manifest{}, "", nil
		}
		return Manifest{}, "", fmt.Errorf("archive: get latest: %w", err)
	}
	defer res.Body.Close()
	if res.ETag == nil || *res.ETag == "" {
		return Manifest{}, "", errors.New("archive: latest object has no etag")
	}
	var m Manifest
	if err := json.NewDecoder(res.Body).Decode(&m); err != nil {
		return Manifest{}, "", fmt.Errorf("archive: decode latest: %w", err)
	}
	return m, *res.ETag, nil
}

func (a *Archive) putLatest(m Manifest, etag string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout())
	defer cancel()

	bs, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(latestKey),
		Body:   bytes.NewReader(bs),
	}
	if etag == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(etag)
	}

	_, err = a.client.PutObject(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return errMismatchedETag
		}
		return fmt.Errorf("archive: put latest: %w", err)
	}
	return nil
}

func (a *Archive) timeout() time.Duration {
	if a.cfg.Timeout > 0 {
		return a.cfg.Timeout
	}
	return time.Minute
}
