package metrics

import "sync/atomic"

// Registry counts the pipeline's silent degradation paths so that a
// classifier outage or a flaky endpoint shows up in logs instead of
// being masked by the fallback layers.
type Registry struct {
	classifierFallbacks     atomic.Int64
	extractorFallbacks      atomic.Int64
	lookupSuccesses         atomic.Int64
	lookupParseFailures     atomic.Int64
	lookupTransportFailures atomic.Int64
	lookupTimeouts          atomic.Int64
	formatterRecoveries     atomic.Int64
	repliesSent             atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) ClassifierFallback()     { r.classifierFallbacks.Add(1) }
func (r *Registry) ExtractorFallback()      { r.extractorFallbacks.Add(1) }
func (r *Registry) LookupSuccess()          { r.lookupSuccesses.Add(1) }
func (r *Registry) LookupParseFailure()     { r.lookupParseFailures.Add(1) }
func (r *Registry) LookupTransportFailure() { r.lookupTransportFailures.Add(1) }
func (r *Registry) LookupTimeout()          { r.lookupTimeouts.Add(1) }
func (r *Registry) FormatterRecovery()      { r.formatterRecoveries.Add(1) }
func (r *Registry) ReplySent()              { r.repliesSent.Add(1) }

func (r *Registry) Snapshot() map[string]int64 {
	return map[string]int64{
		"classifier_fallbacks":      r.classifierFallbacks.Load(),
		"extractor_fallbacks":       r.extractorFallbacks.Load(),
		"lookup_successes":          r.lookupSuccesses.Load(),
		"lookup_parse_failures":     r.lookupParseFailures.Load(),
		"lookup_transport_failures": r.lookupTransportFailures.Load(),
		"lookup_timeouts":           r.lookupTimeouts.Load(),
		"formatter_recoveries":      r.formatterRecoveries.Load(),
		"replies_sent":              r.repliesSent.Load(),
	}
}
