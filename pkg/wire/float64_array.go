package wire

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// Float64Array is the flatbuffers table from schemas/float64_array.fbs.
type Float64Array struct {
	_tab flatbuffers.Table
}

func GetRootAsFloat64Array(buf []byte, offset flatbuffers.UOffsetT) *Float64Array {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &Float64Array{}
	x.Init(buf, n+offset)
	return x
}

func (rcv *Float64Array) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *Float64Array) Label() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *Float64Array) Data(j int) float64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o != 0 {
		a := rcv._tab.Vector(o)
		return rcv._tab.GetFloat64(a + flatbuffers.UOffsetT(j*8))
	}
	return 0
}

func (rcv *Float64Array) DataLength() int {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o != 0 {
		return rcv._tab.VectorLen(o)
	}
	return 0
}

// dataEnd is the byte offset just past the data vector, 0 if absent.
func (rcv *Float64Array) dataEnd() int {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o == 0 {
		return 0
	}
	return int(rcv._tab.Vector(o)) + rcv._tab.VectorLen(o)*8
}

func (rcv *Float64Array) StampNs() int64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(8))
	if o != 0 {
		return rcv._tab.GetInt64(o + rcv._tab.Pos)
	}
	return 0
}

func Float64ArrayStart(builder *flatbuffers.Builder) {
	builder.StartObject(3)
}

func Float64ArrayAddLabel(builder *flatbuffers.Builder, label flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(0, flatbuffers.UOffsetT(label), 0)
}

func Float64ArrayAddData(builder *flatbuffers.Builder, data flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(1, flatbuffers.UOffsetT(data), 0)
}

func Float64ArrayStartDataVector(builder *flatbuffers.Builder, numElems int) flatbuffers.UOffsetT {
	return builder.StartVector(8, numElems, 8)
}

func Float64ArrayAddStampNs(builder *flatbuffers.Builder, stampNs int64) {
	builder.PrependInt64Slot(2, stampNs, 0)
}

func Float64ArrayEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
