package persistence

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MagicNumber identifies snapshot files (ASCII: "ANNB").
	MagicNumber = 0x424E4E41
	// Version is the current file format version.
	Version = 1
)

var (
	ErrBadMagic           = errors.New("invalid magic number")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrUnknownCompression = errors.New("unknown compression")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrCorrupt            = errors.New("corrupt snapshot")
)

// Compression selects the body codec.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZSTD
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// ParseCompression maps a name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// FileHeader is the fixed-size header at the start of every snapshot.
type FileHeader struct {
	Magic          uint32
	Version        uint32
	Compression    uint8
	Metric         uint8
	Heuristic      uint8
	Padding1       [1]byte
	Dimension      uint32
	M              uint32
	EFConstruction uint32
	EF             uint32
	Count          uint64
	EntryPoint     uint32
	MaxLayer       int32
	RandomSeed     int64
	Reserved       [12]byte
}
