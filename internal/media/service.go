// Package media stores uploaded images and export artifacts in S3-compatible
// object storage and probes image dimensions so new image elements start at
// a sensible size.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"wanderboard/api/internal/util"
)

// Dimensions of a probed image in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Service struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewService connects to the object store and ensures the bucket exists.
func NewService(ctx context.Context, endpoint, accessKey, secretKey, bucket, baseURL string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &Service{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// ProbeDimensions decodes just the image header. This is the only place the
// editor inspects image bytes.
func ProbeDimensions(data []byte) (Dimensions, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Dimensions{}, fmt.Errorf("probe image: %w", err)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// UploadImage stores an uploaded image under a fresh object name and returns
// its public URL together with the probed dimensions.
func (s *Service) UploadImage(ctx context.Context, filename, contentType string, data []byte) (string, Dimensions, error) {
	dims, err := ProbeDimensions(data)
	if err != nil {
		return "", Dimensions{}, err
	}
	objectName := fmt.Sprintf("images/%s%s", util.NewID("img"), strings.ToLower(path.Ext(filename)))
	url, err := s.put(ctx, objectName, contentType, data)
	if err != nil {
		return "", Dimensions{}, err
	}
	return url, dims, nil
}

// StoreExport stores an export artifact and returns its download URL.
func (s *Service) StoreExport(ctx context.Context, boardID, format, contentType string, data []byte) (string, error) {
	objectName := fmt.Sprintf("exports/%s/%d.%s", boardID, time.Now().UTC().Unix(), format)
	return s.put(ctx, objectName, contentType, data)
}

func (s *Service) put(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("store object %s: %w", objectName, err)
	}
	return s.baseURL + "/" + s.bucket + "/" + objectName, nil
}
