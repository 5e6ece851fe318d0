package redis

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is an in-memory Client for tests. Setting Err makes every call fail.
type MockClient struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
	ttls    map[string]time.Duration

	Err error
}

// NewMockClient creates an empty in-memory client
func NewMockClient() *MockClient {
	return &MockClient{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
		ttls:    make(map[string]time.Duration),
	}
}

func (m *MockClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.strings[key] = toString(value)
	if ttl > 0 {
		m.ttls[key] = ttl
	}
	return nil
}

func (m *MockClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	v, ok := m.strings[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}

func (m *MockClient) LPush(ctx context.Context, key string, values ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, v := range values {
		m.lists[key] = append([]string{toString(v)}, m.lists[key]...)
	}
	return nil
}

func (m *MockClient) LTrim(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	list := m.lists[key]
	lo, hi := clampRange(len(list), start, stop)
	m.lists[key] = append([]string(nil), list[lo:hi]...)
	return nil
}

func (m *MockClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	list := m.lists[key]
	lo, hi := clampRange(len(list), start, stop)
	return append([]string(nil), list[lo:hi]...), nil
}

func (m *MockClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.ttls[key] = ttl
	return nil
}

func (m *MockClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *MockClient) Close() error {
	return nil
}

// TTL returns the last TTL set on key
func (m *MockClient) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// clampRange converts inclusive redis indexes (negative counts from the end) into slice bounds
func clampRange(n int, start, stop int64) (int, int) {
	if start < 0 {
		start += int64(n)
	}
	if stop < 0 {
		stop += int64(n)
	}
	if start < 0 {
		start = 0
	}
	if stop >= int64(n) {
		stop = int64(n) - 1
	}
	if start > stop {
		return 0, 0
	}
	return int(start), int(stop) + 1
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
