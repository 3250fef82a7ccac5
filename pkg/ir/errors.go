package ir

import "fmt"

// InternalError reports a broken invariant inside a pass. It is raised
// with panic by Fail and recovered at the pipeline boundary.
type InternalError struct {
	Pass  string
	Func  string
	Block int // -1 when not tied to a block
	Index int // instruction index within Block, -1 when unknown
	Msg   string
}

func (e *InternalError) Error() string {
	loc := e.Func
	if e.Block >= 0 {
		loc = fmt.Sprintf("%s, B%d", loc, e.Block)
		if e.Index >= 0 {
			loc = fmt.Sprintf("%s #%d", loc, e.Index)
		}
	}
	return fmt.Sprintf("internal error in %s (%s): %s", e.Pass, loc, e.Msg)
}

// Fail panics with an InternalError located at inst
func Fail(pass string, inst Instruction, format string, args ...any) {
	e := &InternalError{Pass: pass, Block: -1, Index: -1, Msg: fmt.Sprintf(format, args...)}
	if b := inst.Parent(); b != nil {
		e.Block = b.No
		e.Index = Index(inst)
		if b.fn != nil {
			e.Func = b.fn.Name
		}
	}
	panic(e)
}

// FailBlock panics with an InternalError located at b
func FailBlock(pass string, b *BasicBlock, format string, args ...any) {
	e := &InternalError{Pass: pass, Block: b.No, Index: -1, Msg: fmt.Sprintf(format, args...)}
	if b.fn != nil {
		e.Func = b.fn.Name
	}
	panic(e)
}

// FailFunc panics with an InternalError located at fn
func FailFunc(pass string, fn *Function, format string, args ...any) {
	panic(&InternalError{Pass: pass, Func: fn.Name, Block: -1, Index: -1, Msg: fmt.Sprintf(format, args...)})
}
