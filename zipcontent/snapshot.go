package zipcontent

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/records"
	"github.com/meigma/nestedjar/internal/zipstring"
)

// DefaultInfoCacheSize bounds the number of derived values kept per snapshot.
const DefaultInfoCacheSize = 16

// snapshot is the parsed, immutable index of one Source shared by all
// Content handles opened on it.
type snapshot struct {
	source              Source
	kind                Kind
	data                *datablock.File
	centralDirectoryPos int64
	commentPos          int64
	commentLength       int64
	nameOffset          int
	hasJarSignatureFile bool

	// lookupIndexes maps original central directory order to sorted position.
	lookupIndexes []int
	// hashes, relOffsets are in sorted position order.
	hashes     []int32
	relOffsets []int64

	logger *slog.Logger

	info      *lru.Cache[infoKey, any]
	infoGroup singleflight.Group

	mu    sync.Mutex
	refs  int
	cache *Cache
}

func (s *snapshot) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// acquire takes a reference. It reports false without error when the
// snapshot has already been fully released and must not be revived.
func (s *snapshot) acquire() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return false, nil
	}
	if err := s.data.Open(); err != nil {
		return false, err
	}
	s.refs++
	return true, nil
}

// release drops a reference; the last one evicts the snapshot from its cache.
func (s *snapshot) release() error {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		return nil
	}
	s.refs--
	last := s.refs == 0
	cache := s.cache
	s.mu.Unlock()

	err := s.data.Close()
	if last {
		s.log().Debug("released zip content", "source", s.source.String())
		if cache != nil {
			cache.evict(s)
		}
	}
	return err
}

func (s *snapshot) refCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

func (s *snapshot) size() int {
	return len(s.lookupIndexes)
}

func (s *snapshot) centralRecordPos(lookupIndex int) int64 {
	return s.centralDirectoryPos + s.relOffsets[lookupIndex]
}

func (s *snapshot) firstLookupIndex(hash int32) int {
	i := sort.Search(len(s.hashes), func(i int) bool { return s.hashes[i] >= hash })
	if i < len(s.hashes) && s.hashes[i] == hash {
		return i
	}
	return -1
}

func nameHash(prefix, name string) int32 {
	h := zipstring.Hash(0, prefix, false)
	return zipstring.Hash(h, name, true)
}

// find returns the entry named prefix+name, or nil when there is none.
func (s *snapshot) find(prefix, name string) (*Entry, error) {
	hash := nameHash(prefix, name)
	for i := s.firstLookupIndex(hash); i >= 0 && i < len(s.hashes) && s.hashes[i] == hash; i++ {
		pos := s.centralRecordPos(i)
		record, err := s.loadRecord(pos)
		if err != nil {
			return nil, err
		}
		logical, err := s.readName(record, pos)
		if err != nil {
			return nil, err
		}
		if hasName(logical, prefix, name) {
			return newEntry(s, i, pos, record, string(logical)), nil
		}
	}
	return nil, nil //nolint:nilnil // absence is reported by the caller
}

func hasName(logical []byte, prefix, name string) bool {
	if prefix != "" {
		n := zipstring.StartsWith(logical, prefix)
		if n == -1 {
			return false
		}
		logical = logical[n:]
	}
	return zipstring.Matches(logical, name, true)
}

// entryAt returns the entry at the given original index.
func (s *snapshot) entryAt(index int) (*Entry, error) {
	if index < 0 || index >= s.size() {
		return nil, fmt.Errorf("%w: entry index %d out of range [0, %d)", ErrInvalidArgument, index, s.size())
	}
	lookupIndex := s.lookupIndexes[index]
	pos := s.centralRecordPos(lookupIndex)
	record, err := s.loadRecord(pos)
	if err != nil {
		return nil, err
	}
	logical, err := s.readName(record, pos)
	if err != nil {
		return nil, err
	}
	return newEntry(s, lookupIndex, pos, record, string(logical)), nil
}

func (s *snapshot) loadRecord(pos int64) (records.CentralDirectoryFileHeader, error) {
	record, err := records.LoadCentralDirectoryFileHeader(s.data, pos)
	if err != nil {
		return records.CentralDirectoryFileHeader{}, fmt.Errorf("%s: %w", s.source, err)
	}
	return record, nil
}

// readName reads the logical name, skipping the snapshot's name offset.
func (s *snapshot) readName(record records.CentralDirectoryFileHeader, pos int64) ([]byte, error) {
	n := int(record.FileNameLength) - s.nameOffset
	name, err := zipstring.ReadName(s.data, pos+records.CentralDirectoryHeaderSize+int64(s.nameOffset), n)
	if err != nil {
		return nil, fmt.Errorf("%s: reading entry name: %w", s.source, err)
	}
	return name, nil
}

func (s *snapshot) comment() (string, error) {
	c, err := zipstring.ReadString(s.data, s.commentPos, s.commentLength)
	if err != nil {
		return "", fmt.Errorf("%s: reading comment: %w", s.source, err)
	}
	return c, nil
}
