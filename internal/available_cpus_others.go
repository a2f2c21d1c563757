// Count available CPUs based on affinity

//go:build !linux

package latesched_internal

import (
	"runtime"
)

func GetAvailableCPUCount() int {
	return runtime.NumCPU()
}
