//go:build debug_mem_utils

package memutils

import (
	"encoding/binary"
	"fmt"
)

const (
	// DebugMargin is the number of bytes of debug data that should be placed at the end of each allocation
	// in heaps managed by memutils
	DebugMargin int = 16
	// corruptionDetectionMagicValue is a 4-byte pattern that should be copied into debug data placed
	// at the end of allocations in heaps managed by memutils
	corruptionDetectionMagicValue uint32 = 0x7F84E666
)

// WriteMagicValue writes an easy-to-identify marker across DebugMargin bytes at the provided offset.
// This method no-ops unless the debug_mem_utils build tag is present.
func WriteMagicValue(data []byte, offset int) {
	for i := 0; i < DebugMargin; i += 4 {
		binary.LittleEndian.PutUint32(data[offset+i:], corruptionDetectionMagicValue)
	}
}

// ValidateMagicValue verifies that the easy-to-identify marker written by WriteMagicValue is still present.
// It returns true if the value is still present and false otherwise.
// This method no-ops unless the debug_mem_utils build tag is present.
func ValidateMagicValue(data []byte, offset int) bool {
	for i := 0; i < DebugMargin; i += 4 {
		if binary.LittleEndian.Uint32(data[offset+i:]) != corruptionDetectionMagicValue {
			return false
		}
	}

	return true
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckPow2(value uint, name string) {
	err := CheckPow2(value, name)
	if err != nil {
		panic(err)
	}
}

// DebugCheckPointer will verify that offset is aligned to alignment and lies within [lo, hi), and panics
// if it does not. This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckPointer(offset, alignment, lo, hi int) {
	if !IsAligned(offset, alignment) {
		panic(fmt.Sprintf("pointer %d is not aligned to %d bytes", offset, alignment))
	}
	if offset < lo || offset >= hi {
		panic(fmt.Sprintf("pointer %d is outside of the heap [%d, %d)", offset, lo, hi))
	}
}
