// Package wire encodes and decodes the numeric arrays exchanged on the state
// and command channels.
package wire

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

var ErrMalformedPayload = errors.New("malformed Float64Array payload")

// minPayloadSize is the root offset plus the smallest possible table header.
const minPayloadSize = 8

// Array is a decoded Float64Array.
type Array struct {
	Label   string
	Data    []float64
	StampNs int64
}

// Encode serializes data under label.
func Encode(label string, data []float64, stampNs int64) []byte {
	builder := flatbuffers.NewBuilder(64 + 8*len(data))
	labelOffset := builder.CreateString(label)

	Float64ArrayStartDataVector(builder, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		builder.PrependFloat64(data[i])
	}
	dataOffset := builder.EndVector(len(data))

	Float64ArrayStart(builder)
	Float64ArrayAddLabel(builder, labelOffset)
	Float64ArrayAddData(builder, dataOffset)
	Float64ArrayAddStampNs(builder, stampNs)
	builder.Finish(Float64ArrayEnd(builder))
	return builder.FinishedBytes()
}

// Decode parses buf. Out-of-range offsets in a corrupt buffer are reported
// as ErrMalformedPayload instead of panicking.
func Decode(buf []byte) (arr *Array, err error) {
	if len(buf) < minPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(buf))
	}
	defer func() {
		if r := recover(); r != nil {
			arr = nil
			err = fmt.Errorf("%w: %v", ErrMalformedPayload, r)
		}
	}()

	root := GetRootAsFloat64Array(buf, 0)
	if end := root.dataEnd(); end > len(buf) {
		return nil, fmt.Errorf("%w: data vector ends at %d, buffer has %d bytes", ErrMalformedPayload, end, len(buf))
	}

	n := root.DataLength()
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		data[i] = root.Data(i)
	}
	return &Array{
		Label:   string(root.Label()),
		Data:    data,
		StampNs: root.StampNs(),
	}, nil
}

// DecodeFixed decodes buf and requires exactly n entries.
func DecodeFixed(buf []byte, n int) (*Array, error) {
	arr, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if len(arr.Data) != n {
		return nil, fmt.Errorf("%w: %q has %d entries, want %d", ErrMalformedPayload, arr.Label, len(arr.Data), n)
	}
	return arr, nil
}
