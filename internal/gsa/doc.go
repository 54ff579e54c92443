// Package gsa implements the sample designs and sensitivity estimators of
// the supported global sensitivity analysis methods.
//
// Samplers build a design in the unit hypercube and scale it linearly into
// the problem bounds. Analyzers take the design and one observation vector,
// whose i-th entry is the model output for sample row i, and return an
// IndexSet. Every random draw comes from the caller's seeded source.
package gsa
