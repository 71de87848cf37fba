package lsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// edit tags, per spec §6. Tag 8 (kCompactPointer in the original, folded
// here into tag 5) is intentionally unused to keep the numbering aligned
// with the original wire format's historical gaps.
const (
	tagComparator    = 1
	tagLogNumber     = 2
	tagNextFileNum   = 3
	tagLastSequence  = 4
	tagCompactPtr    = 5
	tagDeletedFile   = 6
	tagNewFile       = 7
	tagPrevLogNumber = 9
)

type deletedFileKey struct {
	level  int
	number uint64
}

// VersionEdit is a single delta against a Version: the set of files added
// and removed, plus whichever metadata fields changed, per spec §2.2.
type VersionEdit struct {
	ComparatorName string
	LogNumber      uint64
	PrevLogNumber  uint64
	NextFileNumber uint64
	LastSequence   uint64

	hasComparator    bool
	hasLogNumber     bool
	hasPrevLogNumber bool
	hasNextFileNum   bool
	hasLastSequence  bool

	compactPointers []compactPointerEdit
	deletedFiles    map[deletedFileKey]struct{}
	newFiles        []newFileEdit
}

type compactPointerEdit struct {
	level int
	key   InternalKey
}

type newFileEdit struct {
	level int
	meta  FileMetaData
}

func (e *VersionEdit) Clear() {
	*e = VersionEdit{}
}

func (e *VersionEdit) SetComparatorName(name string) {
	e.ComparatorName, e.hasComparator = name, true
}

func (e *VersionEdit) SetLogNumber(n uint64) {
	e.LogNumber, e.hasLogNumber = n, true
}

func (e *VersionEdit) SetPrevLogNumber(n uint64) {
	e.PrevLogNumber, e.hasPrevLogNumber = n, true
}

func (e *VersionEdit) SetNextFile(n uint64) {
	e.NextFileNumber, e.hasNextFileNum = n, true
}

func (e *VersionEdit) SetLastSequence(s uint64) {
	e.LastSequence, e.hasLastSequence = s, true
}

func (e *VersionEdit) SetCompactPointer(level int, key InternalKey) {
	e.compactPointers = append(e.compactPointers, compactPointerEdit{level, key})
}

// AddFile records a new file at level, mirroring VersionEdit::AddFile. The
// allowed-seeks budget is derived fresh by the caller (NewFileMetaData);
// only the durable fields travel over the wire.
func (e *VersionEdit) AddFile(level int, number, fileSize uint64, smallest, largest InternalKey) {
	e.newFiles = append(e.newFiles, newFileEdit{
		level: level,
		meta: FileMetaData{
			Number:   number,
			FileSize: fileSize,
			Smallest: smallest,
			Largest:  largest,
		},
	})
}

// DeleteFile records that a file is removed from level.
func (e *VersionEdit) DeleteFile(level int, number uint64) {
	if e.deletedFiles == nil {
		e.deletedFiles = make(map[deletedFileKey]struct{})
	}
	e.deletedFiles[deletedFileKey{level, number}] = struct{}{}
}

// sortedDeletedFileKeys returns m's keys ordered by (level, number), so
// EncodeTo and String produce the same byte stream on every call instead
// of depending on Go's randomized map iteration order.
func sortedDeletedFileKeys(m map[deletedFileKey]struct{}) []deletedFileKey {
	keys := make([]deletedFileKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].level != keys[j].level {
			return keys[i].level < keys[j].level
		}
		return keys[i].number < keys[j].number
	})
	return keys
}

func putVarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putLengthPrefixed(buf *bytes.Buffer, s []byte) {
	putVarint(buf, uint64(len(s)))
	buf.Write(s)
}

func putInternalKey(buf *bytes.Buffer, k InternalKey) {
	putLengthPrefixed(buf, k.Encode())
}

// EncodeTo serializes the edit as a sequence of (tag, payload) records,
// matching the manifest record format spec §6 documents.
func (e *VersionEdit) EncodeTo(buf *bytes.Buffer) {
	if e.hasComparator {
		putVarint(buf, tagComparator)
		putLengthPrefixed(buf, []byte(e.ComparatorName))
	}
	if e.hasLogNumber {
		putVarint(buf, tagLogNumber)
		putVarint(buf, e.LogNumber)
	}
	if e.hasPrevLogNumber {
		putVarint(buf, tagPrevLogNumber)
		putVarint(buf, e.PrevLogNumber)
	}
	if e.hasNextFileNum {
		putVarint(buf, tagNextFileNum)
		putVarint(buf, e.NextFileNumber)
	}
	if e.hasLastSequence {
		putVarint(buf, tagLastSequence)
		putVarint(buf, e.LastSequence)
	}
	for _, cp := range e.compactPointers {
		putVarint(buf, tagCompactPtr)
		putVarint(buf, uint64(cp.level))
		putInternalKey(buf, cp.key)
	}
	for _, k := range sortedDeletedFileKeys(e.deletedFiles) {
		putVarint(buf, tagDeletedFile)
		putVarint(buf, uint64(k.level))
		putVarint(buf, k.number)
	}
	for _, nf := range e.newFiles {
		putVarint(buf, tagNewFile)
		putVarint(buf, uint64(nf.level))
		putVarint(buf, nf.meta.Number)
		putVarint(buf, nf.meta.FileSize)
		putInternalKey(buf, nf.meta.Smallest)
		putInternalKey(buf, nf.meta.Largest)
	}
}

type byteReader struct {
	b []byte
}

func (r *byteReader) varint() (uint64, error) {
	v, n := binary.Uvarint(r.b)
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint", ErrCorruption)
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *byteReader) lengthPrefixed() ([]byte, error) {
	n, err := r.varint()
	if err != nil {
		return nil, err
	}
	if uint64(len(r.b)) < n {
		return nil, fmt.Errorf("%w: truncated length-prefixed field", ErrCorruption)
	}
	s := r.b[:n]
	r.b = r.b[n:]
	return s, nil
}

func (r *byteReader) internalKey() (InternalKey, error) {
	s, err := r.lengthPrefixed()
	if err != nil {
		return InternalKey{}, err
	}
	return ParseInternalKey(s)
}

func (r *byteReader) empty() bool { return len(r.b) == 0 }

// DecodeFrom parses an edit previously written by EncodeTo, rejecting
// unrecognized tags as corruption per spec §6's "unknown tag -> reject,
// don't skip" rule.
func (e *VersionEdit) DecodeFrom(data []byte) error {
	e.Clear()
	r := &byteReader{b: data}
	for !r.empty() {
		tag, err := r.varint()
		if err != nil {
			return err
		}
		switch tag {
		case tagComparator:
			name, err := r.lengthPrefixed()
			if err != nil {
				return err
			}
			e.SetComparatorName(string(name))
		case tagLogNumber:
			n, err := r.varint()
			if err != nil {
				return err
			}
			e.SetLogNumber(n)
		case tagPrevLogNumber:
			n, err := r.varint()
			if err != nil {
				return err
			}
			e.SetPrevLogNumber(n)
		case tagNextFileNum:
			n, err := r.varint()
			if err != nil {
				return err
			}
			e.SetNextFile(n)
		case tagLastSequence:
			n, err := r.varint()
			if err != nil {
				return err
			}
			e.SetLastSequence(n)
		case tagCompactPtr:
			level, err := r.varint()
			if err != nil {
				return err
			}
			key, err := r.internalKey()
			if err != nil {
				return err
			}
			e.SetCompactPointer(int(level), key)
		case tagDeletedFile:
			level, err := r.varint()
			if err != nil {
				return err
			}
			number, err := r.varint()
			if err != nil {
				return err
			}
			e.DeleteFile(int(level), number)
		case tagNewFile:
			level, err := r.varint()
			if err != nil {
				return err
			}
			number, err := r.varint()
			if err != nil {
				return err
			}
			size, err := r.varint()
			if err != nil {
				return err
			}
			smallest, err := r.internalKey()
			if err != nil {
				return err
			}
			largest, err := r.internalKey()
			if err != nil {
				return err
			}
			e.AddFile(int(level), number, size, smallest, largest)
		default:
			return fmt.Errorf("%w: unknown version edit tag %d", ErrCorruption, tag)
		}
	}
	return nil
}

// String renders a VersionEdit::DebugString-style summary.
func (e *VersionEdit) String() string {
	var buf bytes.Buffer
	buf.WriteString("VersionEdit {")
	if e.hasComparator {
		fmt.Fprintf(&buf, " Comparator: %s", e.ComparatorName)
	}
	if e.hasLogNumber {
		fmt.Fprintf(&buf, " LogNumber: %d", e.LogNumber)
	}
	if e.hasPrevLogNumber {
		fmt.Fprintf(&buf, " PrevLogNumber: %d", e.PrevLogNumber)
	}
	if e.hasNextFileNum {
		fmt.Fprintf(&buf, " NextFile: %d", e.NextFileNumber)
	}
	if e.hasLastSequence {
		fmt.Fprintf(&buf, " LastSeq: %d", e.LastSequence)
	}
	for _, cp := range e.compactPointers {
		fmt.Fprintf(&buf, " CompactPointer: %d %q", cp.level, cp.key.UserKey)
	}
	for _, k := range sortedDeletedFileKeys(e.deletedFiles) {
		fmt.Fprintf(&buf, " DeleteFile: %d %d", k.level, k.number)
	}
	for _, nf := range e.newFiles {
		fmt.Fprintf(&buf, " AddFile: %d %d %d %q .. %q", nf.level, nf.meta.Number, nf.meta.FileSize, nf.meta.Smallest.UserKey, nf.meta.Largest.UserKey)
	}
	buf.WriteString(" }")
	return buf.String()
}
