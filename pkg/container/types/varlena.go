// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import "encoding/binary"

const (
	VarlenaSize       = 24
	VarlenaInlineSize = 23
	varlenaBigMark    = 0xff
)

// Varlena is the in-vector cell of variable length types. Values up to
// VarlenaInlineSize bytes are stored inline, longer ones live in the
// vector's area and the cell keeps (offset, length).
//
// Layout: byte 0 is the inline length, or varlenaBigMark for spilled
// values; spilled cells keep offset at bytes [4,8) and length at [8,12).
type Varlena [VarlenaSize]byte

func (v *Varlena) IsSmall() bool {
	return v[0] != varlenaBigMark
}

func (v *Varlena) SetSmall(data []byte) {
	v[0] = byte(len(data))
	copy(v[1:], data)
}

func (v *Varlena) SetBig(offset, length uint32) {
	v[0] = varlenaBigMark
	binary.LittleEndian.PutUint32(v[4:8], offset)
	binary.LittleEndian.PutUint32(v[8:12], length)
}

func (v *Varlena) OffsetLen() (uint32, uint32) {
	return binary.LittleEndian.Uint32(v[4:8]), binary.LittleEndian.Uint32(v[8:12])
}

func (v *Varlena) Len() int {
	if v.IsSmall() {
		return int(v[0])
	}
	_, length := v.OffsetLen()
	return int(length)
}

// GetByteSlice returns the value bytes, resolving spilled cells through area.
func (v *Varlena) GetByteSlice(area []byte) []byte {
	if v.IsSmall() {
		return v[1 : 1+v[0]]
	}
	offset, length := v.OffsetLen()
	return area[offset : offset+length]
}

// BuildVarlena writes data into area if it does not fit inline and returns
// the cell plus the possibly reallocated area.
func BuildVarlena(data []byte, area []byte) (Varlena, []byte) {
	var v Varlena
	if len(data) <= VarlenaInlineSize {
		v.SetSmall(data)
		return v, area
	}
	offset := len(area)
	area = append(area, data...)
	v.SetBig(uint32(offset), uint32(len(data)))
	return v, area
}
