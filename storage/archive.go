package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"CallBox/core/recording"
	"CallBox/model"

	"github.com/minio/minio-go/v7"
)

const archivePrefix = "recordings/"

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Archive keeps copies of recordings in a MinIO bucket.
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive uses the global client when client is nil.
func NewArchive(client *minio.Client, bucket string) *Archive {
	if client == nil {
		client = minioClient
	}
	return &Archive{client: client, bucket: bucket}
}

// ObjectKey 归档路径: recordings/<号码>/<年>/<月>/<文件名>
func ObjectKey(rec *model.Recording) string {
	phone := recording.GroupKey(rec.PhoneNumber)
	if phone == "" {
		phone = model.UnknownPhone
	}
	return path.Join(archivePrefix+phone, rec.Time().UTC().Format("2006/01"), filepath.Base(rec.FilePath))
}

// ContentType 根据扩展名推断 MIME 类型
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".amr":
		return "audio/amr"
	case ".3gp":
		return "audio/3gpp"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// Archive uploads the recording file and returns its object key.
func (a *Archive) Archive(ctx context.Context, rec *model.Recording) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("MinIO 客户端未初始化")
	}
	key := ObjectKey(rec)
	_, err := a.client.FPutObject(ctx, a.bucket, key, rec.FilePath, minio.PutObjectOptions{
		ContentType: ContentType(rec.FilePath),
		UserMetadata: map[string]string{
			"phone":     rec.PhoneNumber,
			"timestamp": fmt.Sprintf("%d", rec.Timestamp),
			"direction": string(rec.Direction),
		},
	})
	if err != nil {
		return "", fmt.Errorf("上传归档失败 %s: %w", key, err)
	}
	return key, nil
}

// Open returns a seekable reader for an archived object.
func (a *Archive) Open(ctx context.Context, key string) (*minio.Object, minio.ObjectInfo, error) {
	if a.client == nil {
		return nil, minio.ObjectInfo{}, fmt.Errorf("MinIO 客户端未初始化")
	}
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, minio.ObjectInfo{}, err
	}
	return obj, info, nil
}

// List 列出前缀下的对象并统计
func (a *Archive) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, *BucketStats, error) {
	if a.client == nil {
		return nil, nil, fmt.Errorf("MinIO 客户端未初始化")
	}
	stats := &BucketStats{}
	var objects []ObjectInfo

	for object := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}) {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
	}
	return objects, stats, nil
}

// DeletePrefix 删除前缀下的所有对象，返回删除数量
func (a *Archive) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if a.client == nil {
		return 0, fmt.Errorf("MinIO 客户端未初始化")
	}
	if prefix == "" {
		return 0, fmt.Errorf("删除操作需要指定前缀")
	}

	objects, _, err := a.List(ctx, prefix, true)
	if err != nil {
		return 0, err
	}

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, o := range objects {
			select {
			case objectsCh <- minio.ObjectInfo{Key: o.Key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := 0
	var firstErr error
	for rErr := range a.client.RemoveObjects(ctx, a.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if firstErr == nil {
			firstErr = fmt.Errorf("删除 %s 失败: %w", rErr.ObjectName, rErr.Err)
		}
		failed++
	}
	return len(objects) - failed, firstErr
}
