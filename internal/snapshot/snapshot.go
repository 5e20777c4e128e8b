// Package snapshot persists generation sessions.
//
// A snapshot file is a zstd stream wrapping a single msgpack-encoded
// Snapshot value. Decoding never yields a partially populated Snapshot:
// callers either get a complete value or an error wrapping ErrCorrupt or
// ErrVersion.
package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Version is the payload layout written by Encode. Decode rejects anything else.
const Version uint16 = 1

var (
	// ErrCorrupt reports a stream that could not be decompressed or decoded.
	ErrCorrupt = errors.New("snapshot: corrupt data")
	// ErrVersion reports a payload written by an incompatible layout.
	ErrVersion = errors.New("snapshot: unsupported version")
)

// Snapshot is the serialized form of a generation session.
type Snapshot struct {
	Version uint16 `msgpack:"version"`
	// Model is the fingerprint of the model the session was bound to.
	Model string `msgpack:"model"`
	// Precision of the key/value memory ("f16" or "f32").
	Precision string  `msgpack:"precision"`
	Position  int     `msgpack:"position"`
	Tokens    []int32 `msgpack:"tokens"`
	// Memory holds the backend's raw key/value memory.
	Memory []byte `msgpack:"memory"`
}

// Clone returns a deep copy so callers can hand out independent sessions.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Tokens = append([]int32(nil), s.Tokens...)
	out.Memory = append([]byte(nil), s.Memory...)
	return &out
}

// Encode writes s to w as a zstd-compressed msgpack payload.
func Encode(w io.Writer, s *Snapshot) error {
	if s == nil {
		return errors.New("snapshot: nil snapshot")
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("snapshot: zstd writer: %w", err)
	}
	payload := *s
	payload.Version = Version
	if err := msgpack.NewEncoder(enc).Encode(&payload); err != nil {
		_ = enc.Close()
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("snapshot: flush: %w", err)
	}
	return nil
}

// Decode reads a snapshot previously written by Encode.
func Decode(r io.Reader) (*Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer dec.Close()
	var s Snapshot
	if err := msgpack.NewDecoder(dec).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersion, s.Version, Version)
	}
	return &s, nil
}

// Load opens path and decodes the snapshot stored there.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open: %w", err)
	}
	defer f.Close()
	s, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path. The file is replaced atomically so a reader never
// observes a half-written snapshot.
func Save(path string, s *Snapshot) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, s); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}
