package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// manifestLogWriter frames each record as length(4) ‖ crc32(4) ‖ payload,
// the same shape the write-ahead log uses elsewhere in lsmdb, so a
// manifest and a WAL segment can share one mental model of "a log is a
// sequence of checksummed length-prefixed records".
type manifestLogWriter struct {
	f  io.WriteCloser
	w  *bufio.Writer
	fs syncer
}

type syncer interface {
	Sync() error
}

func newManifestLogWriter(f interface {
	io.WriteCloser
	syncer
}) *manifestLogWriter {
	return &manifestLogWriter{f: f, w: bufio.NewWriter(f), fs: f}
}

func (w *manifestLogWriter) AppendRecord(payload []byte) error {
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	return nil
}

func (w *manifestLogWriter) Sync() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.fs.Sync()
}

func (w *manifestLogWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

type manifestLogReader struct {
	f io.ReadCloser
	r *bufio.Reader
}

func newManifestLogReader(f io.ReadCloser) *manifestLogReader {
	return &manifestLogReader{f: f, r: bufio.NewReader(f)}
}

func (r *manifestLogReader) NextRecord() ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated manifest record: %v", ErrCorruption, err)
	}
	if gotCRC := crc32.ChecksumIEEE(payload); gotCRC != wantCRC {
		return nil, fmt.Errorf("%w: manifest record checksum mismatch", ErrCorruption)
	}
	return payload, nil
}

func (r *manifestLogReader) Close() error { return r.f.Close() }
