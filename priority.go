package gvthread

import "github.com/kestrelrun/gvthread/internal/vtcore"

// Priority is re-exported from internal/vtcore so callers never import
// an internal package to name a scheduling class.
type Priority = vtcore.Priority

const (
	Critical = vtcore.Critical
	High     = vtcore.High
	Normal   = vtcore.Normal
	Low      = vtcore.Low
)
