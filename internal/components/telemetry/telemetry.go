package telemetry

import (
	"fmt"
)

// API is what every component reports through instead of logging directly, so tests can
// assert on what was reported.
//
// Ids name the component that reported, not the line of code: `tracker.stabilize` rather
// than `tracker.stabilize-poll-3`. Details go into params or a wrapped error. Ids are
// lowercase, dots separate a type from its method and dashes join words in a method name.
// The package prefix comes from NewScopedAPI and is not repeated in the id.
//
// note: fault injection point
type API interface {
	// ReportBroken is for failures someone has to look at: a login that could not
	// produce cookies, a cache file that could not be written.
	ReportBroken(id string, params ...any)
	// ReportWarning is for failures the caller recovers from, like a subtype fetch
	// that came back empty or a token that never showed up.
	ReportWarning(id string, params ...any)
	// ReportDebug is dropped outside of debug logging.
	ReportDebug(msg string, params ...any)
	// ReportCount records a gauge-like value at the current time (polls until a token
	// settled, failed refreshes in a daemon pass). Values are not meant to be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace before passing it on.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scoped(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scoped(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scoped(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scoped(id), count)
}
