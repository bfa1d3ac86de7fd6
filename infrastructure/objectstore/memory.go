package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
}

// Memory is the in-process Store twin. Presigned URLs point at memory://bucket/key.
type Memory struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]memObject
}

var _ Store = (*Memory)(nil)

func NewMemory(bucket string) *Memory {
	return &Memory{bucket: bucket, objects: make(map[string]memObject)}
}

func (m *Memory) PresignPut(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s/%s?method=PUT&expires=%d", m.bucket, key, int(ttl.Seconds())), nil
}

func (m *Memory) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s/%s?method=GET&expires=%d", m.bucket, key, int(ttl.Seconds())), nil
}

func (m *Memory) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ObjectInfo{}, err
	}
	m.mu.Lock()
	m.objects[key] = memObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return m.info(key, data, contentType), nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (m *Memory) Stat(_ context.Context, key string) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return m.info(key, o.data, o.contentType), nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Has reports whether key is stored.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *Memory) info(key string, data []byte, contentType string) ObjectInfo {
	sum := md5.Sum(data)
	return ObjectInfo{Key: key, Size: int64(len(data)), ETag: hex.EncodeToString(sum[:]), ContentType: contentType}
}
