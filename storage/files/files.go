// Package filestore implements core.FileStorage on the local disk and on Aliyun OSS.
package filestore

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
)

var errInvalidKey = errors.New("invalid blob key")

// New returns the storage selected by conf.Storage.Driver.
func New(conf *core.Config) (core.FileStorage, error) {
	switch conf.Storage.Driver {
	case "", "local":
		return NewLocalStorage(conf.Storage.LocalDir, conf.Storage.PublicBaseURL)
	case "oss":
		return NewOSSStorage(conf.Storage)
	}
	return nil, errors.Errorf("unknown storage driver %q", conf.Storage.Driver)
}

// cleanKey rejects keys escaping the storage root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))[1:]
	if k == "" || k != strings.TrimPrefix(key, "/") {
		return "", errors.Wrap(errInvalidKey, key)
	}
	return k, nil
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
