// Package superfasthash implements Paul Hsieh's SuperFastHash, the hash the
// blockfile cache uses to place keys in the index table.
package superfasthash

// Sum32 returns the hash of key.
//
// Trailing bytes are sign-extended before mixing, matching implementations
// that read the input as signed chars.
func Sum32(key string) uint32 {
	return Sum32Bytes([]byte(key))
}

// Sum32Bytes returns the hash of data.
func Sum32Bytes(data []byte) uint32 {
	n := len(data)
	if n == 0 {
		return 0
	}
	hash := uint32(n) //nolint:gosec // keys are far below 4GiB
	rem := n & 3

	for n >>= 2; n > 0; n-- {
		hash += get16(data)
		tmp := (get16(data[2:]) << 11) ^ hash
		hash = (hash << 16) ^ tmp
		data = data[4:]
		hash += hash >> 11
	}

	switch rem {
	case 3:
		hash += get16(data)
		hash ^= hash << 16
		hash ^= signed(data[2]) << 18
		hash += hash >> 11
	case 2:
		hash += get16(data)
		hash ^= hash << 11
		hash += hash >> 17
	case 1:
		hash += signed(data[0])
		hash ^= hash << 10
		hash += hash >> 1
	}

	hash ^= hash << 3
	hash += hash >> 5
	hash ^= hash << 4
	hash += hash >> 17
	hash ^= hash << 25
	hash += hash >> 6
	return hash
}

func get16(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8
}

// signed sign-extends a byte to 32 bits.
func signed(b byte) uint32 {
	return uint32(int32(int8(b))) //nolint:gosec // intentional sign extension
}
