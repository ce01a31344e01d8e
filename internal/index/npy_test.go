package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestNpy_RoundTrip(t *testing.T) {
	m, err := NewMatrix(3, [][]float32{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteNpy(&buf, m); err != nil {
		t.Fatalf("WriteNpy: %v", err)
	}
	// Data must start on a 64-byte boundary.
	if (buf.Len()-len(m.Data)*4)%64 != 0 {
		t.Errorf("header size %d is not a multiple of 64", buf.Len()-len(m.Data)*4)
	}

	got, err := ReadNpy(&buf)
	if err != nil {
		t.Fatalf("ReadNpy: %v", err)
	}
	if got.Rows != 2 || got.Dim != 3 {
		t.Fatalf("shape = (%d, %d), want (2, 3)", got.Rows, got.Dim)
	}
	for i, v := range m.Data {
		if got.Data[i] != v {
			t.Errorf("Data[%d] = %f, want %f", i, got.Data[i], v)
		}
	}
	if r := got.Row(1); r[0] != 4 || r[2] != 6 {
		t.Errorf("Row(1) = %v, want [4 5 6]", r)
	}
}

func TestNpy_Float64Narrowed(t *testing.T) {
	header := "{'descr': '<f8', 'fortran_order': False, 'shape': (1, 2), }"
	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)+1))
	buf.WriteString(header + "\n")
	for _, v := range []float64{0.5, -1.25} {
		binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
	}

	m, err := ReadNpy(&buf)
	if err != nil {
		t.Fatalf("ReadNpy: %v", err)
	}
	if m.Data[0] != 0.5 || m.Data[1] != -1.25 {
		t.Errorf("Data = %v, want [0.5 -1.25]", m.Data)
	}
}

func TestNpy_RejectsFortranOrder(t *testing.T) {
	header := "{'descr': '<f4', 'fortran_order': True, 'shape': (1, 1), }\n"
	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	buf.Write(make([]byte, 4))

	if _, err := ReadNpy(&buf); !errors.Is(err, ErrNpyFormat) {
		t.Errorf("err = %v, want ErrNpyFormat", err)
	}
}

func TestNpy_RejectsGarbage(t *testing.T) {
	if _, err := ReadNpy(bytes.NewReader([]byte("not a numpy file"))); !errors.Is(err, ErrNpyFormat) {
		t.Errorf("err = %v, want ErrNpyFormat", err)
	}
}

func TestSaveLoadNpy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.npy")
	m, _ := NewMatrix(2, [][]float32{{0.6, 0.8}})

	if err := SaveNpy(path, m); err != nil {
		t.Fatalf("SaveNpy: %v", err)
	}
	got, err := LoadNpy(path)
	if err != nil {
		t.Fatalf("LoadNpy: %v", err)
	}
	if got.Rows != 1 || got.Data[1] != 0.8 {
		t.Errorf("got %+v", got)
	}

	rows, dim, err := NpyShape(path)
	if err != nil {
		t.Fatalf("NpyShape: %v", err)
	}
	if rows != 1 || dim != 2 {
		t.Errorf("NpyShape = (%d, %d), want (1, 2)", rows, dim)
	}

	idx := FromMatrix(got, MetricInnerProduct)
	if idx.Len() != 1 || idx.Dim() != 2 {
		t.Errorf("FromMatrix: Len=%d Dim=%d, want 1, 2", idx.Len(), idx.Dim())
	}
}

func TestNewMatrix_DimensionMismatch(t *testing.T) {
	if _, err := NewMatrix(2, [][]float32{{1, 2}, {1}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}
