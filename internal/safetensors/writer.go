package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/example/go-graphsplit/internal/tensor"
)

// EncodeTensors serializes tensors into a safetensors payload. Entries are
// laid out in sorted name order so the output is deterministic.
func EncodeTensors(tensors map[string]*tensor.Tensor) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}

	sort.Strings(names)

	header := make(map[string]storeHeaderEntry, len(names))

	var data bytes.Buffer

	for _, name := range names {
		if name == "" {
			return nil, errors.New("safetensors: tensor name must not be empty")
		}

		t := tensors[name]
		if t == nil {
			return nil, fmt.Errorf("safetensors: tensor %q is nil", name)
		}

		start := data.Len()

		dtype, err := encodeTensorData(&data, t)
		if err != nil {
			return nil, fmt.Errorf("safetensors: encode tensor %q: %w", name, err)
		}

		header[name] = storeHeaderEntry{
			DType:   dtype,
			Shape:   t.Shape(),
			Offsets: [2]int{start, data.Len()},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 0, 8+len(headerJSON)+data.Len())
	out = binary.LittleEndian.AppendUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, data.Bytes()...)

	return out, nil
}

// WriteFile encodes tensors and writes them to path.
func WriteFile(path string, tensors map[string]*tensor.Tensor) error {
	payload, err := EncodeTensors(tensors)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}

func encodeTensorData(buf *bytes.Buffer, t *tensor.Tensor) (string, error) {
	switch t.DType() {
	case tensor.Float32:
		vals, err := t.Float32s()
		if err != nil {
			return "", err
		}

		for _, v := range vals {
			var b [4]byte

			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			buf.Write(b[:])
		}

		return dtypeF32, nil
	case tensor.Int64:
		vals, err := t.Int64s()
		if err != nil {
			return "", err
		}

		for _, v := range vals {
			var b [8]byte

			binary.LittleEndian.PutUint64(b[:], uint64(v))
			buf.Write(b[:])
		}

		return dtypeI64, nil
	case tensor.Bool:
		vals, err := t.Bools()
		if err != nil {
			return "", err
		}

		for _, v := range vals {
			if v {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}

		return dtypeBool, nil
	default:
		return "", fmt.Errorf("unsupported dtype %v", t.DType())
	}
}
