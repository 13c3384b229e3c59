package cache

import "github.com/tridemax/CART/internal/util"

// CompoundKey pairs a cache key with user data that rides along for the
// client's convenience (the loader receives the full compound key, so the
// extra context is available in Acquire).
//
// Shard placement hashes only the Key component. Go map equality still
// compares the whole struct, so user data must be canonical per key: two
// lookups for the same Key must carry equal UserData or they address
// different entries.
type CompoundKey[K comparable, U comparable] struct {
	Key      K
	UserData U
}

// Hash64 places compound keys by the key component only.
// Recognized by util.Hash64.
func (k CompoundKey[K, U]) Hash64() uint64 { return util.Hash64(k.Key) }

// NewCompoundKey builds a compound key.
func NewCompoundKey[K comparable, U comparable](key K, userData U) CompoundKey[K, U] {
	return CompoundKey[K, U]{Key: key, UserData: userData}
}
