// Package sofa declares the read-only accessor interfaces a caller
// implements to hand a SOFA (Spatially Oriented Format for Acoustics)
// data set to filterlib and delaytable. No concrete SOFA file reader
// ships in this module: parsing the underlying netCDF/HDF5 container is
// out of scope, per spec. Callers bring their own parser and adapt it
// to these interfaces.
package sofa

// Source exposes the impulse responses of a SOFA data set, indexed by
// measurement, receiver, and emitter, in the canonical SOFA iteration
// order m -> r -> e with offset m*NumReceivers()*NumEmitters() +
// r*NumEmitters() + e.
type Source interface {
	NumMeasurements() int
	NumReceivers() int
	NumEmitters() int
	SampleRate() float64
	IRLength() int

	// IR returns the impulse response for measurement m, receiver r,
	// emitter e. The returned slice must not be mutated by the caller.
	IR(m, r, e int) []float64
}

// DelaySource exposes per-(measurement, receiver, emitter) delay values
// from a SOFA data set's Data.Delay array. A SOFA file may carry fewer
// delay measurements than audio measurements (NumDelayMeasurements() <=
// the Source's NumMeasurements()); delay lookups then wrap the
// measurement index modulo NumDelayMeasurements().
type DelaySource interface {
	NumDelayMeasurements() int
	NumReceivers() int
	NumEmitters() int

	// Delay returns the raw delay value, in seconds (the SOFA Data.Delay
	// convention), for delay measurement dm, receiver r, emitter e. The
	// caller converts to samples using the Source's SampleRate().
	Delay(dm, r, e int) float64
}

// Offset computes the canonical SOFA flat index for (m, r, e) given the
// receiver and emitter counts.
func Offset(m, r, e, numReceivers, numEmitters int) int {
	return m*numReceivers*numEmitters + r*numEmitters + e
}
