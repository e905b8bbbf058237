// Package pipeline provides a directed acyclic graph of steps.
//
// Steps are added with typed handles: passing the handle of a step to another one creates a data edge,
// and the result of the parent becomes an argument of the child. DependsOn creates ordering edges for
// steps that must wait for another one without reading its result. Edges closing a cycle are rejected
// when they are added.
//
// The graph can be exported as a Definition, to be handed to a remote scheduler, or executed in the
// current process with Run. Run starts every step in its own goroutine as soon as its parents are
// done, so independent branches run concurrently, and stops on the first error. Step results are
// JSON encoded in a ResultStore, which lets a step run in another process with RunStep.
package pipeline
