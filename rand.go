package forkjoin

// pcgNext advances a PCG-style generator and returns 32 bits of output.
// Not suitable for anything but spreading load.
func pcgNext(state *uint64) uint32 {
	current := *state
	*state = current*6364136223846793005 + 0xda3e39cb94b95bdb
	return uint32((current ^ (current >> 22)) >> (22 + (current >> 61)))
}

// mixSeed folds the inputs through splitmix64 so that workers started on
// neighbouring threads do not begin with correlated streams.
func mixSeed(parts ...uint64) uint64 {
	var h uint64
	for _, p := range parts {
		h ^= p
		h += 0x9e3779b97f4a7c15
		z := h
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		h = z ^ (z >> 31)
	}
	return h
}

// coprimes returns every i in [1, n] with gcd(i, n) == 1.
//
// Stepping through n queues with a stride taken from this table visits each
// queue exactly once before repeating.
func coprimes(n int) []uint32 {
	var out []uint32
	for i := 1; i <= n; i++ {
		a, b := uint32(i), uint32(n)
		for b != 0 {
			a, b = b, a%b
		}
		if a == 1 {
			out = append(out, uint32(i))
		}
	}
	return out
}
