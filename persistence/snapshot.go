package persistence

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/annbench/distance"
	"github.com/hupe1980/annbench/internal/hnsw"
	"github.com/hupe1980/annbench/model"
	"github.com/hupe1980/annbench/resource"
)

const (
	bufferSize = 256 * 1024
	// maxLayers bounds the per-node layer count read from untrusted input.
	maxLayers = 64
	// maxDimension bounds the vector width read from untrusted input.
	maxDimension = 1 << 24
	// readChunk caps how far slices are preallocated from header counts.
	readChunk = 1 << 16
	// nodeOverheadBytes approximates the per-node slice headers of a decoded graph.
	nodeOverheadBytes = 2 * 24
)

// IndexSnapshot is what a snapshot file holds: the graph state plus the
// query-time search width.
type IndexSnapshot struct {
	Graph *hnsw.Snapshot
	EF    int
}

// Options configures Write and Read.
type Options struct {
	Compression Compression
	// Resource throttles IO when it carries an IO limit. Nil disables throttling.
	Resource *resource.Controller
}

// Option mutates Options.
type Option func(o *Options)

// WithCompression selects the body codec used by Write.
func WithCompression(c Compression) Option {
	return func(o *Options) { o.Compression = c }
}

// WithResourceController throttles snapshot IO through rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *Options) { o.Resource = rc }
}

func applyOptions(optFns []Option) Options {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Write serializes s to w.
func Write(ctx context.Context, w io.Writer, s *IndexSnapshot, optFns ...Option) error {
	opts := applyOptions(optFns)
	if s == nil || s.Graph == nil {
		return errors.New("persistence: nil snapshot")
	}
	g := s.Graph

	header := FileHeader{
		Magic:          MagicNumber,
		Version:        Version,
		Compression:    uint8(opts.Compression),
		Metric:         uint8(g.Options.DistanceType),
		Dimension:      uint32(g.Options.Dimension),
		M:              uint32(g.Options.M),
		EFConstruction: uint32(g.Options.EFConstruction),
		EF:             uint32(s.EF),
		Count:          uint64(len(g.Labels)),
		EntryPoint:     uint32(g.EntryPoint),
		MaxLayer:       int32(g.MaxLayer),
		RandomSeed:     g.Options.RandomSeed,
	}
	if g.Options.Heuristic {
		header.Heuristic = 1
	}

	if opts.Resource != nil {
		w = resource.NewRateLimitedWriter(ctx, w, opts.Resource)
	}
	bw := bufio.NewWriterSize(w, bufferSize)

	if err := binary.Write(bw, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	cw, err := compressWriter(bw, opts.Compression)
	if err != nil {
		return err
	}
	sum := NewChecksumWriter(cw)
	if err := writeBody(ctx, sum, g); err != nil {
		_ = cw.Close()
		return err
	}

	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], sum.Sum())
	if _, err := cw.Write(trailer[:]); err != nil {
		_ = cw.Close()
		return fmt.Errorf("write checksum: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("close %s writer: %w", opts.Compression, err)
	}
	return bw.Flush()
}

func writeBody(ctx context.Context, w io.Writer, g *hnsw.Snapshot) error {
	buf := make([]byte, 0, bufferSize)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		_, err := w.Write(buf)
		buf = buf[:0]
		return err
	}
	reserve := func(n int) error {
		if len(buf)+n > cap(buf) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return flush()
		}
		return nil
	}

	for _, f := range g.Vectors {
		if err := reserve(4); err != nil {
			return err
		}
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	for _, l := range g.Labels {
		if err := reserve(8); err != nil {
			return err
		}
		buf = binary.LittleEndian.AppendUint64(buf, uint64(l))
	}
	for _, layers := range g.Links {
		if err := reserve(2); err != nil {
			return err
		}
		if len(layers) > math.MaxUint16 {
			return fmt.Errorf("persistence: %d layers exceed the format limit", len(layers))
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(layers)))
		for _, ids := range layers {
			if len(ids) > math.MaxUint16 {
				return fmt.Errorf("persistence: degree %d exceeds the format limit", len(ids))
			}
			if err := reserve(2 + 4*len(ids)); err != nil {
				return err
			}
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ids)))
			for _, id := range ids {
				buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadHeader reads and checks the header without decoding the body.
func ReadHeader(r io.Reader) (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: %08x", ErrBadMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}
	if header.Dimension == 0 || header.Dimension > maxDimension || header.Count > math.MaxUint32 {
		return nil, fmt.Errorf("%w: dimension %d, count %d", ErrCorrupt, header.Dimension, header.Count)
	}
	return &header, nil
}

// DecodedBytes estimates the memory a decoded body with this header occupies.
func (h *FileHeader) DecodedBytes() int64 {
	// Both factors are bounded by ReadHeader, so the product fits.
	perNode := uint64(h.Dimension)*4 + 8 + nodeOverheadBytes
	return int64(h.Count * perNode)
}

// Read decodes a snapshot written by Write. The graph is not validated here;
// hnsw.FromSnapshot does that.
func Read(ctx context.Context, r io.Reader, optFns ...Option) (*IndexSnapshot, error) {
	opts := applyOptions(optFns)
	if opts.Resource != nil {
		r = resource.NewRateLimitedReader(ctx, r, opts.Resource)
	}
	br := bufio.NewReaderSize(r, bufferSize)

	header, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	if header.M == 0 || header.M > hnsw.MaxM {
		return nil, fmt.Errorf("%w: M %d", ErrCorrupt, header.M)
	}

	// Decoding is charged against the memory limit until the snapshot is handed over.
	need := header.DecodedBytes()
	if err := opts.Resource.ReserveMemory(need); err != nil {
		return nil, fmt.Errorf("decode %d vectors: %w", header.Count, err)
	}
	defer opts.Resource.ReleaseMemory(need)

	dr, release, err := decompressReader(br, Compression(header.Compression))
	if err != nil {
		return nil, err
	}
	defer release()

	sum := NewChecksumReader(dr)
	g, err := readBody(ctx, sum, header)
	if err != nil {
		return nil, err
	}

	var trailer [4]byte
	if _, err := io.ReadFull(dr, trailer[:]); err != nil {
		return nil, fmt.Errorf("%w: read checksum: %w", ErrCorrupt, err)
	}
	if err := sum.Verify(binary.LittleEndian.Uint32(trailer[:])); err != nil {
		return nil, err
	}

	return &IndexSnapshot{Graph: g, EF: int(header.EF)}, nil
}

func readBody(ctx context.Context, r io.Reader, h *FileHeader) (*hnsw.Snapshot, error) {
	count := int(h.Count)
	dim := int(h.Dimension)

	g := &hnsw.Snapshot{
		Options: hnsw.Options{
			Dimension:      dim,
			M:              int(h.M),
			EFConstruction: int(h.EFConstruction),
			Heuristic:      h.Heuristic != 0,
			DistanceType:   distance.Metric(h.Metric),
			RandomSeed:     h.RandomSeed,
			Capacity:       count,
		},
		EntryPoint: model.ID(h.EntryPoint),
		MaxLayer:   int(h.MaxLayer),
	}

	br := &bodyReader{r: r}

	// Slices grow as data arrives so a forged header cannot force a huge
	// allocation ahead of a short body.
	total := count * dim
	g.Vectors = make([]float32, 0, min(total, readChunk))
	for i := 0; i < total && br.err == nil; i++ {
		if i%bufferSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		g.Vectors = append(g.Vectors, math.Float32frombits(br.uint32()))
	}

	g.Labels = make([]model.Label, 0, min(count, readChunk))
	for i := 0; i < count && br.err == nil; i++ {
		g.Labels = append(g.Labels, model.Label(br.uint64()))
	}

	g.Links = make([][][]model.ID, 0, min(count, readChunk))
	for i := 0; i < count && br.err == nil; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		layers := int(br.uint16())
		if br.err == nil && (layers == 0 || layers > maxLayers) {
			return nil, fmt.Errorf("%w: node %d has %d layers", ErrCorrupt, i, layers)
		}
		links := make([][]model.ID, layers)
		for l := 0; l < layers && br.err == nil; l++ {
			degree := int(br.uint16())
			ids := make([]model.ID, degree)
			for j := range ids {
				ids[j] = model.ID(br.uint32())
			}
			links[l] = ids
		}
		g.Links = append(g.Links, links)
	}

	if br.err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrCorrupt, br.err)
	}
	return g, nil
}

// bodyReader decodes little-endian integers and keeps the first error.
type bodyReader struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (b *bodyReader) fill(n int) []byte {
	if b.err != nil {
		return b.buf[:n]
	}
	if _, err := io.ReadFull(b.r, b.buf[:n]); err != nil {
		b.err = err
	}
	return b.buf[:n]
}

func (b *bodyReader) uint16() uint16 { return binary.LittleEndian.Uint16(b.fill(2)) }
func (b *bodyReader) uint32() uint32 { return binary.LittleEndian.Uint32(b.fill(4)) }
func (b *bodyReader) uint64() uint64 { return binary.LittleEndian.Uint64(b.fill(8)) }
