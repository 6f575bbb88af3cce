// Package job defines the unit of asynchronous work: the Job model and its
// lifecycle states, per-job options, the typed Mux that routes job types to
// handlers, and the in-handler progress reporting API.
package job
