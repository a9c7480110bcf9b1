package loader

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/born-ml/spinesight/internal/tensor"
	"github.com/klauspost/compress/zstd"
	"github.com/x448/float16"
)

// SafeTensorsDType represents supported SafeTensors data types.
type SafeTensorsDType string

// Supported SafeTensors dtypes.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsF64  SafeTensorsDType = "F64"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsI32  SafeTensorsDType = "I32"
	SafeTensorsI64  SafeTensorsDType = "I64"
	SafeTensorsU8   SafeTensorsDType = "U8"
	SafeTensorsBool SafeTensorsDType = "BOOL"
)

// Size returns the element size in bytes.
func (d SafeTensorsDType) Size() int {
	switch d {
	case SafeTensorsF64, SafeTensorsI64:
		return 8
	case SafeTensorsF32, SafeTensorsI32:
		return 4
	case SafeTensorsF16, SafeTensorsBF16:
		return 2
	case SafeTensorsU8, SafeTensorsBool:
		return 1
	default:
		return 0
	}
}

// IsFloat reports whether the dtype holds floating point weights.
func (d SafeTensorsDType) IsFloat() bool {
	switch d {
	case SafeTensorsF16, SafeTensorsF32, SafeTensorsF64, SafeTensorsBF16:
		return true
	default:
		return false
	}
}

// maxHeaderSize bounds the JSON header (100MB).
const maxHeaderSize = 100 * 1024 * 1024

// zstdMagic is the little-endian zstd frame magic number 0xFD2FB528.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end]
}

// SafeTensorsHeader is the JSON header in SafeTensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string         `json:"__metadata__"`
	Tensors  map[string]SafeTensorInfo `json:"-"`
}

// UnmarshalJSON implements custom JSON unmarshaling for SafeTensorsHeader.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}

	return nil
}

// SafeTensors is a parsed, fully in-memory SafeTensors file.
type SafeTensors struct {
	header SafeTensorsHeader
	data   []byte // tensor data section
}

// ReadFile reads and parses a SafeTensors file, decompressing it first if it
// is a zstd stream.
func ReadFile(path string) (*SafeTensors, error) {
	//nolint:gosec // G304: model paths come from configuration
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if bytes.HasPrefix(raw, zstdMagic) {
		raw, err = decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
		}
	}
	return Parse(raw)
}

func decompress(raw []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(raw, nil)
}

// Parse parses an uncompressed SafeTensors buffer. The returned value
// references buf.
func Parse(buf []byte) (*SafeTensors, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("file too short: %d bytes", len(buf))
	}

	headerSize := binary.LittleEndian.Uint64(buf[:8])
	if headerSize > maxHeaderSize {
		return nil, fmt.Errorf("invalid header size: %d (too large)", headerSize)
	}
	if uint64(len(buf)-8) < headerSize {
		return nil, fmt.Errorf("truncated header: need %d bytes, have %d", headerSize, len(buf)-8)
	}

	var header SafeTensorsHeader
	if err := json.Unmarshal(buf[8:8+headerSize], &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	st := &SafeTensors{header: header, data: buf[8+headerSize:]}
	for name, info := range header.Tensors {
		if err := st.validate(name, info); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (st *SafeTensors) validate(name string, info SafeTensorInfo) error {
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start || end > int64(len(st.data)) {
		return fmt.Errorf("invalid data offsets for tensor %s: [%d, %d] (data section is %d bytes)",
			name, start, end, len(st.data))
	}
	size := info.DType.Size()
	if size == 0 {
		return fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
	elements := 1
	for _, d := range info.Shape {
		if d < 0 {
			return fmt.Errorf("tensor %s: negative dimension in shape %v", name, info.Shape)
		}
		elements *= d
	}
	if int64(elements*size) != end-start {
		return fmt.Errorf("tensor %s: shape %v of %s needs %d bytes, offsets span %d",
			name, info.Shape, info.DType, elements*size, end-start)
	}
	return nil
}

// Metadata returns the metadata map from the header.
func (st *SafeTensors) Metadata() map[string]string {
	return st.header.Metadata
}

// TensorNames returns all tensor names in sorted order.
func (st *SafeTensors) TensorNames() []string {
	names := make([]string, 0, len(st.header.Tensors))
	for name := range st.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a specific tensor.
func (st *SafeTensors) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := st.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	return &info, nil
}

// Tensor decodes a floating point tensor into a float32 CPU tensor.
func (st *SafeTensors) Tensor(name string) (*tensor.Tensor, error) {
	info, err := st.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	if !info.DType.IsFloat() {
		return nil, fmt.Errorf("tensor %s: dtype %s is not a floating point type", name, info.DType)
	}

	shape := tensor.Shape(info.Shape)
	if len(shape) == 0 {
		shape = tensor.Shape{1} // scalars
	}
	out, err := tensor.New(shape, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", name, err)
	}

	decodeFloats(out.Data(), st.data[info.DataOffsets[0]:info.DataOffsets[1]], info.DType)
	return out, nil
}

// StateDict decodes every floating point tensor. Integer and boolean
// tensors are skipped.
func (st *SafeTensors) StateDict() (map[string]*tensor.Tensor, error) {
	sd := make(map[string]*tensor.Tensor, len(st.header.Tensors))
	for name, info := range st.header.Tensors {
		if !info.DType.IsFloat() {
			continue
		}
		t, err := st.Tensor(name)
		if err != nil {
			return nil, err
		}
		sd[name] = t
	}
	return sd, nil
}

// decodeFloats converts little-endian src of dtype into dst.
func decodeFloats(dst []float32, src []byte, dtype SafeTensorsDType) {
	switch dtype {
	case SafeTensorsF32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case SafeTensorsF16:
		for i := range dst {
			dst[i] = float16.Frombits(binary.LittleEndian.Uint16(src[i*2:])).Float32()
		}
	case SafeTensorsBF16:
		// bfloat16 is the upper half of an IEEE-754 float32.
		for i := range dst {
			dst[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(src[i*2:])) << 16)
		}
	case SafeTensorsF64:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:])))
		}
	default:
		panic(fmt.Sprintf("decodeFloats: unsupported dtype %s", dtype))
	}
}
