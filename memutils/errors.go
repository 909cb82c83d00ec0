package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrOutOfMemory is returned, usually wrapped with more detail, when the host refuses to extend a heap
// any further. Callers should test for it with errors.Is.
var ErrOutOfMemory error = errors.New("out of memory")

// ErrCorruption is the error returned by CheckCorruption when a debug margin following an allocation
// has been overwritten
var ErrCorruption error = errors.New("memory corruption detected after allocation")
