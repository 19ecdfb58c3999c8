// Package engine sequences a wraith pipeline run.
//
// The orchestrator loads the project, builds and rebuilds the program
// around optional code generation, stages lint fixes in a mirrored tree and
// emits the primary and metadata artifacts, in that order. Collaborators are
// injected through Dependencies; DependencyFactory provides the defaults.
package engine
