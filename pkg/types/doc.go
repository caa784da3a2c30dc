// Package types defines the Forest and Storage interfaces, the Node entity,
// and the standard errors for the grove tree store.
//
// A forest is an ordered collection of nodes linked by parent ids. Parent id
// RootID (zero) marks a top-level node. Callers obtain a Forest from
// grove.Open, perform one operation per request, and Close it when done.
package types
