// Package entry defines RID, the value half of a hash bucket's
// key/value entries.
package entry

import (
	"encoding/binary"
	"fmt"
)

// RID identifies a tuple's location: the page it lives on and its slot
// within that page.
type RID struct {
	PageID  int32
	SlotNum uint32
}

// String renders an RID as "(pageID, slotNum)".
func (rid RID) String() string {
	return fmt.Sprintf("(%d, %d)", rid.PageID, rid.SlotNum)
}

// Size is the number of bytes an RID occupies once marshaled.
const Size = 8

// Marshal serializes an RID into an 8-byte array (4 bytes page id, 4
// bytes slot num).
func (rid RID) Marshal() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rid.PageID))
	binary.LittleEndian.PutUint32(buf[4:8], rid.SlotNum)
	return buf
}

// UnmarshalRID deserializes an 8-byte array into an RID.
func UnmarshalRID(data []byte) RID {
	return RID{
		PageID:  int32(binary.LittleEndian.Uint32(data[0:4])),
		SlotNum: binary.LittleEndian.Uint32(data[4:8]),
	}
}
