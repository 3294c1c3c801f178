package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
)

// --------------------------------------------------------------------------
// Snapshot File Format
// --------------------------------------------------------------------------

const (
	snapMagic   = "CRABCAGE"     // File format identifier
	snapVersion = uint8(1)       // Bumped on incompatible layout changes
	snapBufSize = 1024 * 1024    // 1 MB buffer for save and load
)

// ErrNoSnapshot is returned by LoadSnapshot when no snapshot file
// exists, which is a normal first boot.
var ErrNoSnapshot = errors.New("persistence: no snapshot")

// WriteSnapshot encodes a dump to w.
//
// Layout, all integers little-endian:
//
//	magic (8 bytes) | version (u8) | entry count (u64)
//	per entry: key | kind (u8) | expireAt (i64) | payload count (u32) | payload strings
//	strings as: length (u32) | bytes
func WriteSnapshot(w io.Writer, dump []engine.DumpEntry) error {
	bw := bufio.NewWriterSize(w, snapBufSize)

	if _, err := bw.WriteString(snapMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, snapVersion); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(dump))); err != nil {
		return err
	}

	for _, d := range dump {
		if err := writeString(bw, d.Key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint8(d.Kind)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, d.ExpireAt); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(d.Payload))); err != nil {
			return err
		}
		for _, s := range d.Payload {
			if err := writeString(bw, s); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// ReadSnapshot decodes a dump from r, verifying magic and version.
func ReadSnapshot(r io.Reader) ([]engine.DumpEntry, error) {
	br := bufio.NewReaderSize(r, snapBufSize)

	magic := make([]byte, len(snapMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, err
	}
	if string(magic) != snapMagic {
		return nil, fmt.Errorf("persistence: snapshot magic mismatch")
	}
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != snapVersion {
		return nil, fmt.Errorf("persistence: unsupported snapshot version %d", version)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	dump := make([]engine.DumpEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var d engine.DumpEntry
		var err error
		if d.Key, err = readString(br); err != nil {
			return nil, err
		}
		var kind uint8
		if err := binary.Read(br, binary.LittleEndian, &kind); err != nil {
			return nil, err
		}
		d.Kind = engine.Kind(kind)
		if err := binary.Read(br, binary.LittleEndian, &d.ExpireAt); err != nil {
			return nil, err
		}
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		d.Payload = make([]string, 0, n)
		for j := uint32(0); j < n; j++ {
			s, err := readString(br)
			if err != nil {
				return nil, err
			}
			d.Payload = append(d.Payload, s)
		}
		dump = append(dump, d)
	}
	return dump, nil
}

// SaveSnapshot writes the dump to a temporary file and atomically
// renames it over path, so a crash mid-write never leaves a truncated
// snapshot behind.
func SaveSnapshot(path string, dump []engine.DumpEntry) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteSnapshot(f, dump); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadSnapshot reads the snapshot at path.
func LoadSnapshot(path string) ([]engine.DumpEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
