package core

// Handler processes a request within a Task's pipeline and produces (or
// amends) the response carried on the Task.
type Handler func(*Task) error

// AspectFunc is one side (pre or post) of an Aspect's interception pair.
type AspectFunc func(*Task) error

// Aspect is a pre/post interception pair run around a Handler. Pre runs
// before the handler in registration order; Post runs after the handler in
// reverse registration order, and only for aspects whose Pre ran.
type Aspect struct {
	Pre  AspectFunc
	Post AspectFunc
}
