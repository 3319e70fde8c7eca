package fb

import (
	"bytes"

	flatbuffers "github.com/google/flatbuffers/go"
)

type Record struct {
	_tab flatbuffers.Table
}

func GetRootAsRecord(buf []byte, offset flatbuffers.UOffsetT) *Record {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &Record{}
	x.Init(buf, n+offset)
	return x
}

func FinishRecordBuffer(builder *flatbuffers.Builder, offset flatbuffers.UOffsetT) {
	builder.Finish(offset)
}

func (rcv *Record) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *Record) Table() flatbuffers.Table {
	return rcv._tab
}

func (rcv *Record) Key() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *Record) Hash() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Record) MutateHash(n uint32) bool {
	return rcv._tab.MutateUint32Slot(6, n)
}

func (rcv *Record) Slot() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(8))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Record) MutateSlot(n uint32) bool {
	return rcv._tab.MutateUint32Slot(8, n)
}

func (rcv *Record) Address() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(10))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Record) MutateAddress(n uint32) bool {
	return rcv._tab.MutateUint32Slot(10, n)
}

func (rcv *Record) State() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(12))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Record) MutateState(n uint32) bool {
	return rcv._tab.MutateUint32Slot(12, n)
}

func (rcv *Record) Flags() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(14))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Record) MutateFlags(n uint32) bool {
	return rcv._tab.MutateUint32Slot(14, n)
}

func (rcv *Record) CreationTimeNs() int64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(16))
	if o != 0 {
		return rcv._tab.GetInt64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Record) MutateCreationTimeNs(n int64) bool {
	return rcv._tab.MutateInt64Slot(16, n)
}

func (rcv *Record) ReuseCount() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(18))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Record) MutateReuseCount(n uint32) bool {
	return rcv._tab.MutateUint32Slot(18, n)
}

func (rcv *Record) RefetchCount() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(20))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Record) MutateRefetchCount(n uint32) bool {
	return rcv._tab.MutateUint32Slot(20, n)
}

func (rcv *Record) Streams(obj *Stream, j int) bool {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(22))
	if o != 0 {
		x := rcv._tab.Vector(o)
		x += flatbuffers.UOffsetT(j) * 4
		x = rcv._tab.Indirect(x)
		obj.Init(rcv._tab.Bytes, x)
		return true
	}
	return false
}

func (rcv *Record) StreamsLength() int {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(22))
	if o != 0 {
		return rcv._tab.VectorLen(o)
	}
	return 0
}

func RecordKeyCompare(o1, o2 flatbuffers.UOffsetT, buf []byte) bool {
	obj1 := &Record{}
	obj2 := &Record{}
	obj1.Init(buf, flatbuffers.UOffsetT(len(buf))-o1)
	obj2.Init(buf, flatbuffers.UOffsetT(len(buf))-o2)
	return string(obj1.Key()) < string(obj2.Key())
}

func (rcv *Record) LookupByKey(key string, vectorLocation flatbuffers.UOffsetT, buf []byte) bool {
	span := flatbuffers.GetUOffsetT(buf[vectorLocation-4:])
	start := flatbuffers.UOffsetT(0)
	bKey := []byte(key)
	for span != 0 {
		middle := span / 2
		tableOffset := vectorLocation + 4*(start+middle)
		tableOffset += flatbuffers.GetUOffsetT(buf[tableOffset:])
		obj := &Record{}
		obj.Init(buf, tableOffset)
		comp := bytes.Compare(obj.Key(), bKey)
		if comp > 0 {
			span = middle
		} else if comp < 0 {
			middle += 1
			start += middle
			span -= middle
		} else {
			rcv.Init(buf, tableOffset)
			return true
		}
	}
	return false
}

func RecordStart(builder *flatbuffers.Builder) {
	builder.StartObject(10)
}
func RecordAddKey(builder *flatbuffers.Builder, key flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(0, flatbuffers.UOffsetT(key), 0)
}
func RecordAddHash(builder *flatbuffers.Builder, hash uint32) {
	builder.PrependUint32Slot(1, hash, 0)
}
func RecordAddSlot(builder *flatbuffers.Builder, slot uint32) {
	builder.PrependUint32Slot(2, slot, 0)
}
func RecordAddAddress(builder *flatbuffers.Builder, address uint32) {
	builder.PrependUint32Slot(3, address, 0)
}
func RecordAddState(builder *flatbuffers.Builder, state uint32) {
	builder.PrependUint32Slot(4, state, 0)
}
func RecordAddFlags(builder *flatbuffers.Builder, flags uint32) {
	builder.PrependUint32Slot(5, flags, 0)
}
func RecordAddCreationTimeNs(builder *flatbuffers.Builder, creationTimeNs int64) {
	builder.PrependInt64Slot(6, creationTimeNs, 0)
}
func RecordAddReuseCount(builder *flatbuffers.Builder, reuseCount uint32) {
	builder.PrependUint32Slot(7, reuseCount, 0)
}
func RecordAddRefetchCount(builder *flatbuffers.Builder, refetchCount uint32) {
	builder.PrependUint32Slot(8, refetchCount, 0)
}
func RecordAddStreams(builder *flatbuffers.Builder, streams flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(9, flatbuffers.UOffsetT(streams), 0)
}
func RecordStartStreamsVector(builder *flatbuffers.Builder, numElems int) flatbuffers.UOffsetT {
	return builder.StartVector(4, numElems, 4)
}
func RecordEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
