// Package steps holds the step functions that do not depend on a model provider: dataset
// preprocessing, evaluation of a deployed model and selection of the best model.
package steps
