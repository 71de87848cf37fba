package lsm

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-faker/faker/v4"

	"lsmdb/pkg/iterator"
)

// randomWord generates a short filler string via faker, the same
// FakeData-into-tagged-struct pattern used to build random fixture
// payloads for SSTable-adjacent tests elsewhere in the pack.
func randomWord() string {
	fixture := struct {
		Word string `faker:"word"`
	}{}
	if err := faker.FakeData(&fixture); err != nil {
		return "fallback"
	}
	return fixture.Word
}

func ik(userKey string, seq uint64, typ ValueType) InternalKey {
	return InternalKey{UserKey: []byte(userKey), Seq: seq, Type: typ}
}

func meta(number, size uint64, smallestKey, largestKey string, seq uint64) *FileMetaData {
	return NewFileMetaData(number, size, ik(smallestKey, seq, TypeValue), ik(largestKey, seq, TypeValue))
}

// fakeManifestStorage is an in-memory ManifestStorage, keeping VersionSet's
// recovery/apply logic testable without touching a real filesystem.
type fakeManifestStorage struct {
	mu      sync.Mutex
	files   map[uint64][][]byte
	current uint64
}

func newFakeManifestStorage() *fakeManifestStorage {
	return &fakeManifestStorage{files: make(map[uint64][][]byte)}
}

type fakeManifestWriter struct {
	storage *fakeManifestStorage
	number  uint64
}

func (w *fakeManifestWriter) AppendRecord(payload []byte) error {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	cp := append([]byte(nil), payload...)
	w.storage.files[w.number] = append(w.storage.files[w.number], cp)
	return nil
}

func (w *fakeManifestWriter) Sync() error { return nil }
func (w *fakeManifestWriter) Close() error { return nil }

type fakeManifestReader struct {
	records [][]byte
	pos     int
}

func (r *fakeManifestReader) NextRecord() ([]byte, error) {
	if r.pos >= len(r.records) {
		return nil, io.EOF
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

func (r *fakeManifestReader) Close() error { return nil }

func (s *fakeManifestStorage) OpenManifestWriter(dir string, number uint64) (ManifestWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[number] = nil
	return &fakeManifestWriter{storage: s, number: number}, nil
}

func (s *fakeManifestStorage) OpenManifestReader(dir string, number uint64) (ManifestReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.files[number]
	if !ok {
		return nil, fmt.Errorf("fake manifest storage: no manifest %d", number)
	}
	cp := append([][]byte(nil), records...)
	return &fakeManifestReader{records: cp}, nil
}

func (s *fakeManifestStorage) SetCurrent(dir string, number uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = number
	return nil
}

func (s *fakeManifestStorage) ReadCurrent(dir string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *fakeManifestStorage) DeleteManifest(dir string, number uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, number)
	return nil
}

// fakeTableCache is a TableCache backed by an in-memory ikey -> value map
// per file number, so Version.Get can be exercised without real SSTables.
type fakeTableCache struct {
	tables map[uint64]map[string][]byte
}

func newFakeTableCache() *fakeTableCache {
	return &fakeTableCache{tables: make(map[uint64]map[string][]byte)}
}

func (c *fakeTableCache) put(fileNumber uint64, key InternalKey, value []byte) {
	table, ok := c.tables[fileNumber]
	if !ok {
		table = make(map[string][]byte)
		c.tables[fileNumber] = table
	}
	table[string(key.Encode())] = value
}

func (c *fakeTableCache) NewIterator(opts ReadOptions, fileNumber, fileSize uint64) (iterator.Iterator, error) {
	return nil, fmt.Errorf("fakeTableCache: NewIterator not supported")
}

func (c *fakeTableCache) Get(opts ReadOptions, fileNumber, fileSize uint64, ikey []byte, saver GetSaver) error {
	table, ok := c.tables[fileNumber]
	if !ok {
		return nil
	}
	// Linear scan for the entry whose internal key equals or is the closest
	// (user key, seq<=readSeq) match, mirroring an SSTable block seek.
	target, err := ParseInternalKey(ikey)
	if err != nil {
		return err
	}
	var bestKey InternalKey
	var bestVal []byte
	found := false
	for encoded, val := range table {
		pk, err := ParseInternalKey([]byte(encoded))
		if err != nil {
			continue
		}
		if !bytesEqual(pk.UserKey, target.UserKey) {
			continue
		}
		if pk.Seq > target.Seq {
			continue
		}
		if !found || pk.Seq > bestKey.Seq {
			bestKey, bestVal, found = pk, val, true
		}
	}
	if found {
		saver(bestKey.Encode(), bestVal)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
