// Package model provides the data structures shared by the pipeline package and its options.
// It defines the step descriptions, the typed step handles, the edges between steps and the hooks
// a pipeline option can implement.
package model
