package mach

import (
	"fmt"

	"github.com/raymyers/ralph-ssa/pkg/ir"
)

// Fail panics with an InternalError located at f. Machine passes share
// the IR error type so the pipeline recovers both the same way.
func Fail(pass string, f *Function, format string, args ...any) {
	panic(&ir.InternalError{Pass: pass, Func: f.Name, Block: -1, Index: -1, Msg: fmt.Sprintf(format, args...)})
}
