package main

import "math/rand/v2"

// burn spins for roughly n iterations of arithmetic and returns a value the
// compiler cannot discard.
func burn(n int) uint64 {
	x := uint64(n) | 1
	for i := 0; i < n; i++ {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
	}
	return x
}

// taskWork picks the amount of work for one task: fixed, or uniform in
// [0, 2*work) when jitter is set so the mean stays the same.
func taskWork(work int, jitter bool) int {
	if !jitter || work <= 0 {
		return work
	}
	return rand.IntN(2 * work)
}
