// Package pmtiles writes and inspects single-directory PMTiles v3 archives.
//
// Only the subset needed for exported fire map layers is implemented: one
// gzip-compressed root directory, gzip MVT tiles, no leaf directories and
// no tile deduplication.
//
// Format: PMTiles version 3, github.com/protomaps/PMTiles.
package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// Compression is the compression algorithm of tiles and directories.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
)

// TileType is the format of tile contents.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
)

// HeaderLen is the size of the fixed binary header.
const HeaderLen = 127

const magic = "PMTiles"

// ErrNotPMTiles is returned for data without the PMTiles magic number.
var ErrNotPMTiles = errors.New("pmtiles: magic number not detected")

// Header is the binary header of a v3 archive. Coordinates are in E7
// fixed point.
type Header struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// Entry is one root directory entry.
type Entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// ZxyToID converts tile coordinates to a Hilbert tile ID.
func ZxyToID(z uint8, x, y uint32) uint64 {
	acc := (uint64(1)<<(z*2) - 1) / 3
	n := uint32(z - 1)
	for s := uint32(1 << n); s > 0; s >>= 1 {
		rx := s & x
		ry := s & y
		acc += uint64((3*rx)^ry) << n
		x, y = rotate(s, x, y, rx, ry)
		n--
	}
	return acc
}

func rotate(n, x, y, rx, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx != 0 {
			x = n - 1 - x
			y = n - 1 - y
		}
		return y, x
	}
	return x, y
}

// MarshalHeader encodes h. The version byte is always 3.
func MarshalHeader(h Header) []byte {
	b := make([]byte, HeaderLen)
	copy(b[0:7], magic)
	b[7] = 3
	le := binary.LittleEndian
	le.PutUint64(b[8:], h.RootOffset)
	le.PutUint64(b[16:], h.RootLength)
	le.PutUint64(b[24:], h.MetadataOffset)
	le.PutUint64(b[32:], h.MetadataLength)
	le.PutUint64(b[40:], h.LeafDirectoryOffset)
	le.PutUint64(b[48:], h.LeafDirectoryLength)
	le.PutUint64(b[56:], h.TileDataOffset)
	le.PutUint64(b[64:], h.TileDataLength)
	le.PutUint64(b[72:], h.AddressedTilesCount)
	le.PutUint64(b[80:], h.TileEntriesCount)
	le.PutUint64(b[88:], h.TileContentsCount)
	if h.Clustered {
		b[96] = 1
	}
	b[97] = uint8(h.InternalCompression)
	b[98] = uint8(h.TileCompression)
	b[99] = uint8(h.TileType)
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	le.PutUint32(b[102:], uint32(h.MinLonE7))
	le.PutUint32(b[106:], uint32(h.MinLatE7))
	le.PutUint32(b[110:], uint32(h.MaxLonE7))
	le.PutUint32(b[114:], uint32(h.MaxLatE7))
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], uint32(h.CenterLonE7))
	le.PutUint32(b[123:], uint32(h.CenterLatE7))
	return b
}

// UnmarshalHeader decodes the first HeaderLen bytes of d.
func UnmarshalHeader(d []byte) (Header, error) {
	var h Header
	if len(d) < HeaderLen {
		return h, fmt.Errorf("pmtiles: header needs %d bytes, got %d", HeaderLen, len(d))
	}
	if string(d[0:7]) != magic {
		return h, ErrNotPMTiles
	}
	le := binary.LittleEndian
	h.SpecVersion = d[7]
	h.RootOffset = le.Uint64(d[8:])
	h.RootLength = le.Uint64(d[16:])
	h.MetadataOffset = le.Uint64(d[24:])
	h.MetadataLength = le.Uint64(d[32:])
	h.LeafDirectoryOffset = le.Uint64(d[40:])
	h.LeafDirectoryLength = le.Uint64(d[48:])
	h.TileDataOffset = le.Uint64(d[56:])
	h.TileDataLength = le.Uint64(d[64:])
	h.AddressedTilesCount = le.Uint64(d[72:])
	h.TileEntriesCount = le.Uint64(d[80:])
	h.TileContentsCount = le.Uint64(d[88:])
	h.Clustered = d[96] == 1
	h.InternalCompression = Compression(d[97])
	h.TileCompression = Compression(d[98])
	h.TileType = TileType(d[99])
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.MinLonE7 = int32(le.Uint32(d[102:]))
	h.MinLatE7 = int32(le.Uint32(d[106:]))
	h.MaxLonE7 = int32(le.Uint32(d[110:]))
	h.MaxLatE7 = int32(le.Uint32(d[114:]))
	h.CenterZoom = d[118]
	h.CenterLonE7 = int32(le.Uint32(d[119:]))
	h.CenterLatE7 = int32(le.Uint32(d[123:]))
	return h, nil
}

// ReadHeader reads the header of the archive at path.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	buf := make([]byte, HeaderLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		return Header{}, fmt.Errorf("pmtiles: reading header: %w", err)
	}
	return UnmarshalHeader(buf)
}

func gzipBytes(p []byte) ([]byte, error) {
	var b bytes.Buffer
	w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// marshalEntries encodes a directory as varint columns: count, tile ID
// deltas, run lengths, lengths, then offsets (0 when contiguous, else
// offset+1).
func marshalEntries(entries []Entry) []byte {
	var b bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		n := binary.PutUvarint(tmp, v)
		b.Write(tmp[:n])
	}

	put(uint64(len(entries)))
	last := uint64(0)
	for _, e := range entries {
		put(e.TileID - last)
		last = e.TileID
	}
	for _, e := range entries {
		put(uint64(e.RunLength))
	}
	for _, e := range entries {
		put(uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			put(0)
			continue
		}
		put(e.Offset + 1)
	}
	return b.Bytes()
}

// Tile is one encoded tile of an archive.
type Tile struct {
	Z    uint8
	X, Y uint32
	Data []byte
}

// Archive describes the archive Write produces.
type Archive struct {
	MinZoom, MaxZoom uint8
	// Bounds as [minLon, minLat, maxLon, maxLat].
	Bounds   [4]float64
	Metadata map[string]any
}

func e7(v float64) int32 { return int32(v * 1e7) }

// Write encodes tiles, which must already be gzip MVT, as a clustered
// archive to w.
func Write(w io.Writer, tiles []Tile, a Archive) error {
	if len(tiles) == 0 {
		return errors.New("pmtiles: no tiles to write")
	}

	type keyed struct {
		id   uint64
		data []byte
	}
	sorted := make([]keyed, 0, len(tiles))
	for _, t := range tiles {
		sorted = append(sorted, keyed{id: ZxyToID(t.Z, t.X, t.Y), data: t.Data})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	entries := make([]Entry, 0, len(sorted))
	var data bytes.Buffer
	offset := uint64(0)
	for _, t := range sorted {
		entries = append(entries, Entry{TileID: t.id, Offset: offset, Length: uint32(len(t.data)), RunLength: 1})
		data.Write(t.data)
		offset += uint64(len(t.data))
	}

	root, err := gzipBytes(marshalEntries(entries))
	if err != nil {
		return fmt.Errorf("pmtiles: directory: %w", err)
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("pmtiles: metadata: %w", err)
	}
	if meta, err = gzipBytes(meta); err != nil {
		return fmt.Errorf("pmtiles: metadata: %w", err)
	}

	h := Header{
		SpecVersion:         3,
		RootOffset:          HeaderLen,
		RootLength:          uint64(len(root)),
		MetadataOffset:      HeaderLen + uint64(len(root)),
		MetadataLength:      uint64(len(meta)),
		TileDataOffset:      HeaderLen + uint64(len(root)) + uint64(len(meta)),
		TileDataLength:      uint64(data.Len()),
		AddressedTilesCount: uint64(len(entries)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(entries)),
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     Gzip,
		TileType:            Mvt,
		MinZoom:             a.MinZoom,
		MaxZoom:             a.MaxZoom,
		MinLonE7:            e7(a.Bounds[0]),
		MinLatE7:            e7(a.Bounds[1]),
		MaxLonE7:            e7(a.Bounds[2]),
		MaxLatE7:            e7(a.Bounds[3]),
		CenterZoom:          a.MinZoom,
		CenterLonE7:         e7((a.Bounds[0] + a.Bounds[2]) / 2),
		CenterLatE7:         e7((a.Bounds[1] + a.Bounds[3]) / 2),
	}

	for _, part := range [][]byte{MarshalHeader(h), root, meta, data.Bytes()} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}
