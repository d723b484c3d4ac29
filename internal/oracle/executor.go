package oracle

// Executor runs oracle work off the tick loop.
type Executor interface {
	Go(task func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func())

// Go implements Executor.
func (f ExecutorFunc) Go(task func()) { f(task) }

var (
	// Async runs each task on its own goroutine.
	Async Executor = ExecutorFunc(func(task func()) { go task() })
	// Inline runs tasks on the caller's goroutine; used for deterministic
	// tests and batch runs.
	Inline Executor = ExecutorFunc(func(task func()) { task() })
)
