package filestore

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
)

const cacheForever = "public, max-age=31536000, immutable"

type ossStorage struct {
	bucket  *oss.Bucket
	prefix  string
	baseURL string
}

var _ core.FileStorage = (*ossStorage)(nil)

func NewOSSStorage(conf core.StorageConfig) (core.FileStorage, error) {
	if conf.OSSEndpoint == "" || conf.OSSAccessKeyID == "" || conf.OSSAccessSecret == "" || conf.OSSBucket == "" {
		return nil, errors.New("oss storage: endpoint, access key, secret and bucket are required")
	}
	client, err := oss.New(conf.OSSEndpoint, conf.OSSAccessKeyID, conf.OSSAccessSecret)
	if err != nil {
		return nil, errors.Wrap(err, "creating oss client")
	}
	bucket, err := client.Bucket(conf.OSSBucket)
	if err != nil {
		return nil, errors.Wrap(err, "opening oss bucket")
	}

	baseURL := conf.PublicBaseURL
	if baseURL == "" || strings.HasPrefix(baseURL, "/") {
		host := strings.TrimPrefix(strings.TrimPrefix(conf.OSSEndpoint, "https://"), "http://")
		baseURL = "https://" + conf.OSSBucket + "." + host
	}
	return &ossStorage{bucket: bucket, prefix: strings.Trim(conf.OSSPrefix, "/"), baseURL: baseURL}, nil
}

func (s *ossStorage) objectKey(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return key, nil
	}
	return path.Join(s.prefix, key), nil
}

func (s *ossStorage) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	obj, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	err = s.bucket.PutObject(obj, r,
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
		oss.CacheControl(cacheForever),
	)
	return errors.Wrapf(err, "putting oss object %s", obj)
}

func (s *ossStorage) Delete(ctx context.Context, key string) error {
	obj, err := s.objectKey(key)
	if err != nil {
		return err
	}
	err = s.bucket.DeleteObject(obj, oss.WithContext(ctx))
	if se, ok := err.(oss.ServiceError); ok && se.StatusCode == http.StatusNotFound {
		return nil
	}
	return errors.Wrapf(err, "deleting oss object %s", obj)
}

func (s *ossStorage) URL(key string) string {
	obj, err := s.objectKey(key)
	if err != nil {
		return ""
	}
	return joinURL(s.baseURL, obj)
}
