// Package artifact contains implementations of core.ReportStore, the store
// for terminal session reports.
//
// The ReportStore interface lives in the core package so the group chat loop
// can persist reports without knowing the backend. This package provides the
// in-memory store; sub-packages provide durable backends (sqlite).
package artifact
