package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// FakeRecordStore implements the RecordStore interface for testing.
// It keeps records in memory and rejects backward status moves the way a
// well-behaved remote datastore would.
type FakeRecordStore struct {
	mutex    sync.RWMutex
	records  map[string]RecordStatus
	UpsertFn func(ctx context.Context, targetID string, status RecordStatus) error
}

// NewFakeRecordStore creates a FakeRecordStore with default behavior.
func NewFakeRecordStore() *FakeRecordStore {
	s := &FakeRecordStore{
		records: make(map[string]RecordStatus),
	}

	s.UpsertFn = func(ctx context.Context, targetID string, status RecordStatus) error {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		current, exists := s.records[targetID]
		if exists && !CanAdvance(current, status) && status != StatusRecorded {
			return fmt.Errorf("cannot move record %s from %s to %s", targetID, current, status)
		}
		s.records[targetID] = status
		return nil
	}

	return s
}

// UpsertRecord creates the record if absent, else sets its status.
func (s *FakeRecordStore) UpsertRecord(ctx context.Context, targetID string, status RecordStatus) error {
	return s.UpsertFn(ctx, targetID, status)
}

// RecordStatusOf returns the current status of a record and whether it
// exists.
func (s *FakeRecordStore) RecordStatusOf(targetID string) (RecordStatus, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	status, ok := s.records[targetID]
	return status, ok
}

// FakeObjectStore implements the ObjectStore interface for testing.
// Repeated uploads to the same key overwrite in place, matching the
// content-addressed contract.
type FakeObjectStore struct {
	mutex       sync.RWMutex
	objects     map[string][]byte
	uploadCount map[string]int
	UploadFn    func(ctx context.Context, key string, r io.Reader, size int64) error
	SignedURLFn func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// NewFakeObjectStore creates a FakeObjectStore with default behavior.
func NewFakeObjectStore() *FakeObjectStore {
	s := &FakeObjectStore{
		objects:     make(map[string][]byte),
		uploadCount: make(map[string]int),
	}

	s.UploadFn = func(ctx context.Context, key string, r io.Reader, size int64) error {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, r); err != nil {
			return err
		}

		s.mutex.Lock()
		defer s.mutex.Unlock()
		s.objects[key] = buf.Bytes()
		s.uploadCount[key]++
		return nil
	}

	s.SignedURLFn = func(ctx context.Context, key string, ttl time.Duration) (string, error) {
		s.mutex.RLock()
		defer s.mutex.RUnlock()
		if _, ok := s.objects[key]; !ok {
			return "", fmt.Errorf("no object at %s", key)
		}
		return "https://objects.example.test/" + key + "?expires=" + ttl.String(), nil
	}

	return s
}

// Upload writes the artifact at key.
func (s *FakeObjectStore) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	return s.UploadFn(ctx, key, r, size)
}

// SignedURL issues a read handle for an uploaded object.
func (s *FakeObjectStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.SignedURLFn(ctx, key, ttl)
}

// Object returns the stored content for a key and whether it exists.
func (s *FakeObjectStore) Object(key string) ([]byte, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

// UploadCount returns how many uploads have been made to a key. Distinct
// keys, not upload counts, are what idempotency tests assert on; the count
// exists to show repeats landed on the same key.
func (s *FakeObjectStore) UploadCount(key string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.uploadCount[key]
}

// ObjectCount returns the number of distinct stored objects.
func (s *FakeObjectStore) ObjectCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.objects)
}

// FakeTrigger implements the Trigger interface for testing.
type FakeTrigger struct {
	mutex     sync.RWMutex
	requests  []TriggerRequest
	ProcessFn func(ctx context.Context, req TriggerRequest) error
}

// NewFakeTrigger creates a FakeTrigger that accepts every request.
func NewFakeTrigger() *FakeTrigger {
	t := &FakeTrigger{}

	t.ProcessFn = func(ctx context.Context, req TriggerRequest) error {
		t.mutex.Lock()
		defer t.mutex.Unlock()
		t.requests = append(t.requests, req)
		return nil
	}

	return t
}

// Process submits the trigger request.
func (t *FakeTrigger) Process(ctx context.Context, req TriggerRequest) error {
	return t.ProcessFn(ctx, req)
}

// Requests returns a snapshot of every accepted trigger request.
func (t *FakeTrigger) Requests() []TriggerRequest {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	out := make([]TriggerRequest, len(t.requests))
	copy(out, t.requests)
	return out
}

// NewFakeBridge bundles fresh fakes into a Bridge for tests.
func NewFakeBridge() (Bridge, *FakeRecordStore, *FakeObjectStore, *FakeTrigger) {
	records := NewFakeRecordStore()
	objects := NewFakeObjectStore()
	trigger := NewFakeTrigger()
	return Bridge{Records: records, Objects: objects, Trigger: trigger}, records, objects, trigger
}
