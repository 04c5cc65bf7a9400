package hashtable

import "errors"

// ErrKeyNotFound is returned by At when the requested key is absent.
var ErrKeyNotFound = errors.New("hashtable: key not found")

// ErrAllocation is returned by Reserve/Rehash when the configured Allocator
// fails to produce storage of the requested size; automatic growth during an
// insert, WithCapacity and SetMaxLoadFactor panic with it instead. The default
// Allocator never returns this error; it exists for callers that supply an
// Allocator over a bounded arena.
var ErrAllocation = errors.New("hashtable: allocation failed")
