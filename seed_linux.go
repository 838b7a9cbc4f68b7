//go:build linux

package forkjoin

import "golang.org/x/sys/unix"

// threadSeed identifies the OS thread the caller is running on.
func threadSeed() uint64 {
	return uint64(unix.Gettid())
}
