package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Publish uploads a written map file under prefix, together with its .prj
// sidecar when one exists, and returns the info of the map itself.
func Publish(ctx context.Context, store Store, prefix, file string, metadata map[string]string) (Info, error) {
	if store == nil {
		return Info{}, fmt.Errorf("blob store is required")
	}
	key := path.Join(strings.Trim(prefix, "/"), filepath.Base(file))
	info, err := putFile(ctx, store, key, file, contentType(file), metadata)
	if err != nil {
		return Info{}, err
	}

	sidecar := strings.TrimSuffix(file, filepath.Ext(file)) + ".prj"
	if sidecar == file {
		return info, nil
	}
	if _, err := os.Stat(sidecar); errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}
	sidecarKey := path.Join(path.Dir(key), filepath.Base(sidecar))
	if _, err := putFile(ctx, store, sidecarKey, sidecar, "text/plain", metadata); err != nil {
		return Info{}, err
	}
	return info, nil
}

func putFile(ctx context.Context, store Store, key, file, ct string, metadata map[string]string) (Info, error) {
	f, err := os.Open(file)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = f.Close() }()
	info, err := store.Put(ctx, key, f, PutOptions{ContentType: ct, Metadata: metadata})
	if err != nil {
		return Info{}, fmt.Errorf("publish %s: %w", file, err)
	}
	return info, nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".asc", ".prj", ".txt":
		return "text/plain"
	case ".bmp":
		return "image/bmp"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
