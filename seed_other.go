//go:build !linux

package forkjoin

import "time"

// threadSeed has no portable thread id to draw on outside Linux.
func threadSeed() uint64 {
	return uint64(time.Now().UnixNano())
}
