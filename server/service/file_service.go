package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/minio/minio-go/v7"

	commonlog "semchat/server/common/log"
	"semchat/server/domain"
)

const presignTTL = 15 * time.Minute

type FileStore interface {
	Create(ctx context.Context, item domain.FileObject) (domain.FileObject, error)
	Get(ctx context.Context, id string) (domain.FileObject, error)
}

// FileService handles message attachments: presigned direct upload/download
// against object storage plus a registration step that records metadata and
// derives a thumbnail for images.
type FileService struct {
	files  FileStore
	client *minio.Client
	bucket string
}

func NewFileService(files FileStore, client *minio.Client, bucket string) *FileService {
	return &FileService{files: files, client: client, bucket: bucket}
}

func (s *FileService) PresignUpload(ctx context.Context, objectKey string) (string, error) {
	cleaned, err := cleanObjectKey(objectKey)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedPutObject(ctx, s.bucket, cleaned, presignTTL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Register records an uploaded object and, for images, derives a thumbnail
// next to it. Thumbnail failures are logged, not fatal.
func (s *FileService) Register(ctx context.Context, item domain.FileObject) (domain.FileObject, error) {
	cleaned, err := cleanObjectKey(item.ObjectKey)
	if err != nil {
		return domain.FileObject{}, err
	}
	item.ObjectKey = cleaned

	if strings.HasPrefix(item.ContentType, "image/") {
		thumbKey, err := s.makeThumbnail(ctx, item.ObjectKey)
		if err != nil {
			commonlog.Warnf("event=file_register action=thumbnail status=failed object_key=%s error=%v", item.ObjectKey, err)
		} else {
			item.ThumbnailKey = thumbKey
		}
	}
	return s.files.Create(ctx, item)
}

func (s *FileService) DownloadURL(ctx context.Context, fileID string) (string, error) {
	item, err := s.files.Get(ctx, fileID)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, item.ObjectKey, presignTTL, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *FileService) makeThumbnail(ctx context.Context, objectKey string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return "", err
	}
	defer obj.Close()

	img, _, err := image.Decode(obj)
	if err != nil {
		return "", err
	}

	thumb := imaging.Thumbnail(img, 320, 320, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}

	ext := filepath.Ext(objectKey)
	thumbKey := strings.TrimSuffix(objectKey, ext) + "_thumb.jpg"
	reader := bytes.NewReader(buf.Bytes())
	if _, err := s.client.PutObject(ctx, s.bucket, thumbKey, reader, int64(reader.Len()), minio.PutObjectOptions{ContentType: "image/jpeg"}); err != nil {
		return "", fmt.Errorf("upload thumb: %w", err)
	}
	return thumbKey, nil
}

func cleanObjectKey(objectKey string) (string, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(objectKey), "/")
	if cleaned == "" || strings.Contains(cleaned, "..") {
		return "", errors.New("object_key is invalid")
	}
	return cleaned, nil
}
