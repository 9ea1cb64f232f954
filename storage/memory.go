package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data []byte
	info ObjectInfo
}

// MemoryStore is an in-process ObjectStore for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memObject
	baseURL string

	// Now stamps LastModified; replaceable in tests.
	Now func() time.Time
}

// NewMemoryStore creates an empty store whose public URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*memObject),
		baseURL: strings.TrimRight(baseURL, "/"),
		Now:     time.Now,
	}
}

// PutObject reads r fully, honouring ctx cancellation between chunks.
func (s *MemoryStore) PutObject(ctx context.Context, path string, r io.Reader, size int64, opts PutOptions) error {
	if !opts.Upsert && s.has(path) {
		return fmt.Errorf("%w: %s", ErrObjectExists, path)
	}

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if opts.Progress != nil {
				opts.Progress(int64(buf.Len()))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read upload body: %w", err)
		}
	}
	if size >= 0 && int64(buf.Len()) != size {
		return fmt.Errorf("short upload for %s: got %d of %d bytes", path, buf.Len(), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; ok && !opts.Upsert {
		return fmt.Errorf("%w: %s", ErrObjectExists, path)
	}
	meta := make(map[string]string, len(opts.Metadata))
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	s.objects[path] = &memObject{
		data: buf.Bytes(),
		info: ObjectInfo{
			Path:         path,
			Size:         int64(buf.Len()),
			ContentType:  opts.ContentType,
			LastModified: s.Now(),
			Metadata:     meta,
		},
	}
	return nil
}

func (s *MemoryStore) has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[path]
	return ok
}

// PublicURL joins the base URL and path.
func (s *MemoryStore) PublicURL(path string) string {
	if path == "" {
		return ""
	}
	return s.baseURL + "/" + strings.TrimLeft(path, "/")
}

// DeleteObject removes path if present.
func (s *MemoryStore) DeleteObject(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// ListObjects returns objects under prefix sorted by path.
func (s *MemoryStore) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ObjectInfo
	for path, obj := range s.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Get returns a copy of the stored bytes.
func (s *MemoryStore) Get(path string) ([]byte, ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
	}
	return append([]byte(nil), obj.data...), obj.info, nil
}

// Len reports how many objects are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
