// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/medline/core"
)

// batchMagic prefixes every batch file.
var batchMagic = []byte("MDLB")

// BatchFormatVersion is the current batch file layout version.
const BatchFormatVersion byte = 1

// Serializers for the domain types. They follow the mus.Serializer contract
// so they compose with the primitive serializers from mus-go.
var (
	OptionalStringMUS = optionalStringSer{}
	RecordMUS         = recordSer{}
	BatchInfoMUS      = batchInfoSer{}
	CheckpointMUS     = checkpointSer{}
)

var (
	_ mus.Serializer[*string]         = OptionalStringMUS
	_ mus.Serializer[core.Record]     = RecordMUS
	_ mus.Serializer[core.BatchInfo]  = BatchInfoMUS
	_ mus.Serializer[core.Checkpoint] = CheckpointMUS
)

// optionalStringSer encodes a presence flag followed by the string.
type optionalStringSer struct{}

func (optionalStringSer) Marshal(v *string, bs []byte) (n int) {
	n = ord.Bool.Marshal(v != nil, bs)
	if v != nil {
		n += ord.String.Marshal(*v, bs[n:])
	}
	return
}

func (optionalStringSer) Unmarshal(bs []byte) (v *string, n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	s, n1, err := ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v = &s
	return
}

func (optionalStringSer) Size(v *string) (size int) {
	size = ord.Bool.Size(v != nil)
	if v != nil {
		size += ord.String.Size(*v)
	}
	return
}

func (optionalStringSer) Skip(bs []byte) (n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	n1, err := ord.String.Skip(bs[n:])
	n += n1
	return
}

type recordSer struct{}

func (recordSer) Marshal(v core.Record, bs []byte) (n int) {
	n = varint.Int.Marshal(v.Index, bs)
	n += OptionalStringMUS.Marshal(v.Title, bs[n:])
	n += OptionalStringMUS.Marshal(v.Content, bs[n:])
	n += OptionalStringMUS.Marshal(v.Permalink, bs[n:])
	return
}

func (recordSer) Unmarshal(bs []byte) (v core.Record, n int, err error) {
	v.Index, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Title, n1, err = OptionalStringMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Content, n1, err = OptionalStringMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Permalink, n1, err = OptionalStringMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (recordSer) Size(v core.Record) (size int) {
	size = varint.Int.Size(v.Index)
	size += OptionalStringMUS.Size(v.Title)
	size += OptionalStringMUS.Size(v.Content)
	return size + OptionalStringMUS.Size(v.Permalink)
}

func (recordSer) Skip(bs []byte) (n int, err error) {
	n, err = varint.Int.Skip(bs)
	if err != nil {
		return
	}
	for range 3 {
		var n1 int
		n1, err = OptionalStringMUS.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

type batchInfoSer struct{}

func (batchInfoSer) Marshal(v core.BatchInfo, bs []byte) (n int) {
	n = varint.Int.Marshal(v.Part, bs)
	n += ord.String.Marshal(v.Path, bs[n:])
	n += varint.Int.Marshal(v.Records, bs[n:])
	n += ord.String.Marshal(string(v.Checksum), bs[n:])
	return
}

func (batchInfoSer) Unmarshal(bs []byte) (v core.BatchInfo, n int, err error) {
	v.Part, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Path, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Records, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var sum string
	sum, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if sum != "" {
		v.Checksum = []byte(sum)
	}
	return
}

func (batchInfoSer) Size(v core.BatchInfo) (size int) {
	size = varint.Int.Size(v.Part)
	size += ord.String.Size(v.Path)
	size += varint.Int.Size(v.Records)
	return size + ord.String.Size(string(v.Checksum))
}

func (batchInfoSer) Skip(bs []byte) (n int, err error) {
	_, n, err = BatchInfoMUS.Unmarshal(bs)
	return
}

type checkpointSer struct{}

func (checkpointSer) Marshal(v core.Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(v.OutputDir, bs)
	n += ord.String.Marshal(v.Source, bs[n:])
	n += varint.Int.Marshal(v.Processed, bs[n:])
	n += varint.Int.Marshal(v.Invalid, bs[n:])
	n += varint.Int.Marshal(len(v.Batches), bs[n:])
	for _, b := range v.Batches {
		n += BatchInfoMUS.Marshal(b, bs[n:])
	}
	n += varint.Int64.Marshal(v.UpdatedAt.UnixMicro(), bs[n:])
	return
}

func (checkpointSer) Unmarshal(bs []byte) (v core.Checkpoint, n int, err error) {
	v.OutputDir, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Source, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Processed, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Invalid, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var count int
	count, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if count < 0 || count > len(bs)-n {
		err = ErrTruncatedData
		return
	}
	if count > 0 {
		v.Batches = make([]core.BatchInfo, count)
	}
	for i := range count {
		v.Batches[i], n1, err = BatchInfoMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	var micros int64
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt = time.UnixMicro(micros).UTC()
	return
}

func (checkpointSer) Size(v core.Checkpoint) (size int) {
	size = ord.String.Size(v.OutputDir)
	size += ord.String.Size(v.Source)
	size += varint.Int.Size(v.Processed)
	size += varint.Int.Size(v.Invalid)
	size += varint.Int.Size(len(v.Batches))
	for _, b := range v.Batches {
		size += BatchInfoMUS.Size(b)
	}
	return size + varint.Int64.Size(v.UpdatedAt.UnixMicro())
}

func (checkpointSer) Skip(bs []byte) (n int, err error) {
	_, n, err = CheckpointMUS.Unmarshal(bs)
	return
}

// MarshalBatch serializes an ordered batch of records.
// Layout: magic, version, record count, records.
func MarshalBatch(records []core.Record) []byte {
	size := len(batchMagic) + 1 + varint.Int.Size(len(records))
	for i := range records {
		size += RecordMUS.Size(records[i])
	}
	buf := make([]byte, size)
	n := copy(buf, batchMagic)
	buf[n] = BatchFormatVersion
	n++
	n += varint.Int.Marshal(len(records), buf[n:])
	for i := range records {
		n += RecordMUS.Marshal(records[i], buf[n:])
	}
	return buf
}

// UnmarshalBatch deserializes a batch produced by MarshalBatch.
func UnmarshalBatch(data []byte) ([]core.Record, error) {
	header := len(batchMagic) + 1
	if len(data) < header {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}
	if !bytes.Equal(data[:len(batchMagic)], batchMagic) {
		return nil, fmt.Errorf("%w: bad batch header", ErrSerializationFailed)
	}
	if v := data[len(batchMagic)]; v != BatchFormatVersion {
		return nil, fmt.Errorf("%w: unsupported batch version %d", ErrSerializationFailed, v)
	}

	n := header
	count, n1, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	n += n1
	// every record takes at least four bytes
	if count < 0 || count > (len(data)-n)/4 {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}

	records := make([]core.Record, count)
	for i := range count {
		records[i], n1, err = RecordMUS.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrSerializationFailed, i, err)
		}
		n += n1
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return records, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	buf := make([]byte, CheckpointMUS.Size(*checkpoint))
	CheckpointMUS.Marshal(*checkpoint, buf)
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	checkpoint, _, err := CheckpointMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &checkpoint, nil
}
