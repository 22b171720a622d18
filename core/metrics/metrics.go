// Package metrics holds the backend-neutral instrumentation types shared by
// the router and its adapters. Concrete implementations live in
// adapters/prometheus.
package metrics

// Timer measures one operation. Call ObserveDuration when it completes.
type Timer interface {
	ObserveDuration()
}
