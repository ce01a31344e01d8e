package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

var indexMagic = [4]byte{'S', 'C', 'R', 'X'}

const indexVersion uint16 = 1

// ErrCorruptIndex is returned when a serialized index cannot be decoded.
var ErrCorruptIndex = errors.New("corrupt index file")

type fileHeader struct {
	Magic   [4]byte
	Version uint16
	Metric  uint8
	_       uint8
	Dim     uint32
	Rows    uint32
}

// MarshalBinary encodes the index as a fixed header followed by the rows as
// little-endian float32 values.
func (f *Flat) MarshalBinary() ([]byte, error) {
	rows := f.Len()
	if uint64(rows) > math.MaxUint32 || uint64(f.dim) > math.MaxUint32 {
		return nil, fmt.Errorf("index too large to encode: %d rows of dim %d", rows, f.dim)
	}
	var buf bytes.Buffer
	buf.Grow(16 + len(f.data)*4)
	hdr := fileHeader{
		Magic:   indexMagic,
		Version: indexVersion,
		Metric:  uint8(f.metric),
		Dim:     uint32(f.dim),
		Rows:    uint32(rows),
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	buf.Write(encodeFloat32s(f.data))
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the index contents with the decoded data.
func (f *Flat) UnmarshalBinary(data []byte) error {
	var hdr fileHeader
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: reading header: %v", ErrCorruptIndex, err)
	}
	if hdr.Magic != indexMagic {
		return fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, hdr.Magic[:])
	}
	if hdr.Version != indexVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, hdr.Version)
	}
	metric := Metric(hdr.Metric)
	if metric != MetricInnerProduct && metric != MetricL2 {
		return fmt.Errorf("%w: unknown metric %d", ErrCorruptIndex, hdr.Metric)
	}
	body := data[len(data)-r.Len():]
	want := int(hdr.Dim) * int(hdr.Rows) * 4
	if len(body) != want {
		return fmt.Errorf("%w: body has %d bytes, want %d", ErrCorruptIndex, len(body), want)
	}
	vals, err := decodeFloat32s(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	f.dim = int(hdr.Dim)
	f.metric = metric
	f.data = vals
	return nil
}

// Save writes the index to path, creating parent directories as needed.
func (f *Flat) Save(path string) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads an index previously written by Save.
func Load(path string) (*Flat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := &Flat{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return f, nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
