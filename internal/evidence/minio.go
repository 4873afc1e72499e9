// Package evidence хранит снимки данных датчиков в объектном хранилище
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore - хранилище снимков на MinIO/S3
type MinioStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinioStore подключается к MinIO и создает бакет при необходимости
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: bucket, now: time.Now}, nil
}

// ObjectKey - ключ объекта снимка: tickets/<ticket>/<kind>-<unix nano>.json
func ObjectKey(ticketID, kind string, at time.Time) string {
	return fmt.Sprintf("tickets/%s/%s-%d.json", ticketID, kind, at.UTC().UnixNano())
}

// PutSnapshot сериализует payload в JSON и возвращает ключ объекта
func (s *MinioStore) PutSnapshot(ctx context.Context, ticketID, kind string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	now := s.now()
	key := ObjectKey(ticketID, kind, now)

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"ticket-id":    ticketID,
			"sensor-kind":  kind,
			"created-time": now.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to store snapshot: %w", err)
	}
	return key, nil
}
