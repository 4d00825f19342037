// Package fs stores blobs as files below a root directory, with a JSON sidecar
// per blob holding its metadata.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tbtr/internal/blob/core"
)

// DefaultRoot is used when New receives an empty root.
const DefaultRoot = "./tbtr-blobs"

const metaSuffix = ".meta"

// Store implements core.Store on the local filesystem. Writers must not share keys
// across processes; creation is atomic per file only.
type Store struct {
	root string
	now  func() time.Time
}

// New returns a filesystem-backed blob store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Root returns the directory blobs are stored in.
func (s *Store) Root() string { return s.root }

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// sanitizeKey rejects keys that could escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	if strings.HasSuffix(key, metaSuffix) {
		return "", fmt.Errorf("key %q uses the reserved %s suffix", key, metaSuffix)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid key traversal %q", key)
		}
	}
	return clean, nil
}

func (s *Store) pathFor(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, filepath.FromSlash(k))
	return dataPath, dataPath + metaSuffix, nil
}

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (m metaFile) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		Metadata:     cloneMetadata(m.Metadata),
		LastModified: m.CreatedAt,
	}
}

// Put implements core.Store. The content is streamed to a temporary file and renamed
// into place, so a crashed write never leaves a partial blob behind.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return core.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("write %s: %w", key, err)
	}

	mf := metaFile{
		ContentType: opts.ContentType,
		Metadata:    cloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		CreatedAt:   s.now(),
	}
	if err := writeMeta(metaPath, mf); err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		_ = os.Remove(metaPath)
		return core.Info{}, err
	}
	return mf.info(key), nil
}

// Get implements core.Store.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return core.Info{}, nil, notFound(key, err)
	}
	mf, err := readMeta(metaPath)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, notFound(key, err)
	}
	return mf.info(key), file, nil
}

// Head implements core.Store.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	_, metaPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	mf, err := readMeta(metaPath)
	if err != nil {
		return core.Info{}, notFound(key, err)
	}
	return mf.info(key), nil
}

// Delete implements core.Store.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List implements core.Store by walking the metadata sidecars below root.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		mf, err := readMeta(path)
		if err != nil {
			return err
		}
		infos = append(infos, mf.info(key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func notFound(key string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return err
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func writeMeta(path string, mf metaFile) error {
	b, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func readMeta(path string) (metaFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return metaFile{}, err
	}
	var mf metaFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return metaFile{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return mf, nil
}
