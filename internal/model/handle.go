package model

// RequestHandle is an arena-relative index into World.Requests. Maps keyed
// by handle sort and marshal deterministically, unlike maps keyed by
// pointer identity.
type RequestHandle int

// VehicleHandle is an arena-relative index into World.Vehicles.
type VehicleHandle int

// World owns the per-run arenas. Every other structure in the pipeline
// holds handles into these arenas rather than copies or pointers; the
// arenas outlive every handle taken from them for the duration of a run.
type World struct {
	Requests []Request
	Vehicles []Vehicle
	Network  *Network
}

// Request returns a pointer into the arena for in-place mutation
// (flags, timestamps) by handle.
func (w *World) Request(h RequestHandle) *Request { return &w.Requests[h] }

// Vehicle returns a pointer into the arena for in-place mutation by handle.
func (w *World) Vehicle(h VehicleHandle) *Vehicle { return &w.Vehicles[h] }
