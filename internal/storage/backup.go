// Package storage хранит копии исходных изображений в MinIO, чтобы восстановление
// не зависело от того, живет ли еще старый адрес в CDN магазина.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/config"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
)

// defaultRegion избавляет от запроса расположения бакета при подписи ссылок.
const defaultRegion = "us-east-1"

// BackupStorage - архив исходных байтов изображений.
type BackupStorage interface {
	Archive(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// MinioBackup реализует BackupStorage для MinIO.
type MinioBackup struct {
	client     *minio.Client
	bucketName string
	log        *logger.Logger
}

// NewMinioBackup подключается к MinIO и создает бакет, если его нет.
func NewMinioBackup(ctx context.Context, cfg config.BackupConfig, log *logger.Logger) (*MinioBackup, error) {
	log.Info("Инициализация клиента MinIO", "endpoint", cfg.Endpoint)

	client, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки существования бакета '%s': %w", cfg.Bucket, err)
	}
	if !exists {
		log.Info("Бакет не найден, создаем", "bucket", cfg.Bucket)
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: defaultRegion}); err != nil {
			return nil, fmt.Errorf("ошибка создания бакета '%s': %w", cfg.Bucket, err)
		}
	}

	log.Info("Клиент MinIO инициализирован", "bucket", cfg.Bucket)
	return NewMinioBackupFromClient(client, cfg.Bucket, log), nil
}

// NewMinioBackupFromClient оборачивает готовый клиент без проверки бакета.
func NewMinioBackupFromClient(client *minio.Client, bucket string, log *logger.Logger) *MinioBackup {
	return &MinioBackup{client: client, bucketName: bucket, log: log.With("component", "Minio")}
}

func newMinioClient(cfg config.BackupConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}
	return client, nil
}

// Archive сохраняет исходные байты изображения под ключом key.
func (b *MinioBackup) Archive(ctx context.Context, key string, data []byte, contentType string) error {
	info, err := b.client.PutObject(ctx, b.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		b.log.Error("Ошибка архивации оригинала", "key", key, "error", err)
		return fmt.Errorf("ошибка загрузки оригинала в MinIO: %w", err)
	}
	b.log.Debug("Оригинал сохранен", "key", key, "size", info.Size, "etag", info.ETag)
	return nil
}

// PresignedURL возвращает временную ссылку на архивную копию.
func (b *MinioBackup) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.bucketName, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("ошибка подписи ссылки на '%s': %w", key, err)
	}
	return u.String(), nil
}

// Delete удаляет архивную копию. Отсутствие объекта ошибкой не считается.
func (b *MinioBackup) Delete(ctx context.Context, key string) error {
	err := b.client.RemoveObject(ctx, b.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) && minioErr.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("ошибка удаления '%s' из MinIO: %w", key, err)
	}
	return nil
}

// ObjectKey строит ключ архивной копии: {shop}/{owner}/{asset}{ext}.
func ObjectKey(shop, ownerID, assetID, sourceURL string) string {
	ext := ""
	if u, err := url.Parse(sourceURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	return path.Join(shop, ownerID, assetID) + ext
}
