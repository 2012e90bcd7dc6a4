// Package memory provides in-memory implementations of the storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory
