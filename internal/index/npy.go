package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Matrix is a row-major float32 matrix, the in-memory form of the embedding
// artifact.
type Matrix struct {
	Rows int
	Dim  int
	Data []float32
}

// Row returns row i. The slice aliases matrix memory.
func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Dim : (i+1)*m.Dim]
}

// NewMatrix packs equally sized vectors into a Matrix.
func NewMatrix(dim int, vectors [][]float32) (Matrix, error) {
	m := Matrix{Rows: len(vectors), Dim: dim, Data: make([]float32, 0, len(vectors)*dim)}
	for i, v := range vectors {
		if len(v) != dim {
			return Matrix{}, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		m.Data = append(m.Data, v...)
	}
	return m, nil
}

var npyMagic = []byte("\x93NUMPY")

// ErrNpyFormat is returned for .npy files this reader does not understand.
var ErrNpyFormat = errors.New("unsupported npy format")

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// WriteNpy writes m as a version 1.0 .npy file with dtype '<f4'.
func WriteNpy(w io.Writer, m Matrix) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", m.Rows, m.Dim)
	// magic(6) + version(2) + header length(2) + header + '\n' must be a multiple of 64.
	total := 10 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	bw := bufio.NewWriter(w)
	bw.Write(npyMagic)
	bw.Write([]byte{1, 0})
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	bw.WriteString(header)
	bw.Write(encodeFloat32s(m.Data))
	return bw.Flush()
}

// ReadNpy reads a two-dimensional C-ordered .npy file of '<f4' or '<f8'
// values. Float64 data is narrowed to float32.
func ReadNpy(r io.Reader) (Matrix, error) {
	br := bufio.NewReader(r)
	descr, rows, dim, err := readNpyHeader(br)
	if err != nil {
		return Matrix{}, err
	}

	width := 4
	if descr == "<f8" {
		width = 8
	}
	body := make([]byte, rows*dim*width)
	if _, err := io.ReadFull(br, body); err != nil {
		return Matrix{}, fmt.Errorf("%w: reading %d rows: %v", ErrNpyFormat, rows, err)
	}

	m := Matrix{Rows: rows, Dim: dim, Data: make([]float32, rows*dim)}
	for i := range m.Data {
		if width == 8 {
			m.Data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:])))
		} else {
			m.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
		}
	}
	return m, nil
}

func readNpyHeader(br *bufio.Reader) (descr string, rows, dim int, err error) {
	pre := make([]byte, 8)
	if _, err := io.ReadFull(br, pre); err != nil {
		return "", 0, 0, fmt.Errorf("%w: reading preamble: %v", ErrNpyFormat, err)
	}
	if !bytes.Equal(pre[:6], npyMagic) {
		return "", 0, 0, fmt.Errorf("%w: bad magic", ErrNpyFormat)
	}

	var hlen int
	switch pre[6] {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return "", 0, 0, fmt.Errorf("%w: reading header length: %v", ErrNpyFormat, err)
		}
		hlen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return "", 0, 0, fmt.Errorf("%w: reading header length: %v", ErrNpyFormat, err)
		}
		hlen = int(n)
	default:
		return "", 0, 0, fmt.Errorf("%w: version %d.%d", ErrNpyFormat, pre[6], pre[7])
	}

	hdr := make([]byte, hlen)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return "", 0, 0, fmt.Errorf("%w: reading header: %v", ErrNpyFormat, err)
	}
	return parseNpyHeader(string(hdr))
}

// NpyShape reads only the header of the .npy file at path.
func NpyShape(path string) (rows, dim int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	_, rows, dim, err = readNpyHeader(bufio.NewReader(f))
	if err != nil {
		return 0, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, dim, nil
}

func parseNpyHeader(h string) (descr string, rows, dim int, err error) {
	dm := descrRe.FindStringSubmatch(h)
	if dm == nil {
		return "", 0, 0, fmt.Errorf("%w: missing descr", ErrNpyFormat)
	}
	descr = dm[1]
	if descr != "<f4" && descr != "<f8" {
		return "", 0, 0, fmt.Errorf("%w: dtype %s", ErrNpyFormat, descr)
	}
	if fm := fortranRe.FindStringSubmatch(h); fm == nil || fm[1] != "False" {
		return "", 0, 0, fmt.Errorf("%w: fortran order", ErrNpyFormat)
	}
	sm := shapeRe.FindStringSubmatch(h)
	if sm == nil {
		return "", 0, 0, fmt.Errorf("%w: missing shape", ErrNpyFormat)
	}
	var dims []int
	for _, part := range strings.Split(sm[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, convErr := strconv.Atoi(part)
		if convErr != nil || n < 0 {
			return "", 0, 0, fmt.Errorf("%w: shape %q", ErrNpyFormat, sm[1])
		}
		dims = append(dims, n)
	}
	if len(dims) != 2 {
		return "", 0, 0, fmt.Errorf("%w: want 2 dimensions, got %d", ErrNpyFormat, len(dims))
	}
	return descr, dims[0], dims[1], nil
}

// SaveNpy writes m to path.
func SaveNpy(path string, m Matrix) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteNpy(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadNpy reads a matrix from path.
func LoadNpy(path string) (Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return Matrix{}, err
	}
	defer f.Close()
	m, err := ReadNpy(f)
	if err != nil {
		return Matrix{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return m, nil
}
