// Command poolbench drives a forkjoin pool with synthetic workloads and
// reports what the scheduler did.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
