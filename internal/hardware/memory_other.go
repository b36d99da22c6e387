//go:build !linux && !darwin && !windows

package hardware

import (
	"fmt"
	"runtime"
)

func totalMemoryBytes() (uint64, error) {
	return 0, fmt.Errorf("total memory detection unsupported on %s", runtime.GOOS)
}
