package observability

import "time"

// ObserveCall records one upstream request on the external-call metrics.
// Callers pass the time they started the request and the error they got back.
func ObserveCall(service, operation string, start time.Time, err error) {
	m := Current()
	if m == nil {
		return
	}
	status := "completed"
	if err != nil {
		status = "error"
	}
	m.ObserveExternalCall(service, operation, status, time.Since(start))
}
