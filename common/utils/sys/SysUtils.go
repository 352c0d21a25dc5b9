package sys

import (
	"runtime/debug"

	"gplan/common/logger"

	"github.com/petermattis/goid"
)

func GetGID() uint64 {
	id := goid.Get()
	return uint64(id)
}

// CatchPanic logs a recovered panic with its stack instead of letting a
// background goroutine take down the process.
func CatchPanic() {
	if err := recover(); err != nil {
		logger.Errorf("recovered panic in goroutine %d: %v\n%s",
			GetGID(), err, string(debug.Stack()))
	}
}
