package telemetry

import "sync"

// Report is a single call recorded by MemoryAPI.
type Report struct {
	Level  string
	ID     string
	Params []any
}

// MemoryAPI records every report in memory, it is meant for tests that assert on
// what a component reported.
type MemoryAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func (m *MemoryAPI) record(level, id string, params []any) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.reports = append(m.reports, Report{Level: level, ID: id, Params: params})
}

func (m *MemoryAPI) ReportBroken(id string, params ...any) {
	m.record("broken", id, params)
}

func (m *MemoryAPI) ReportWarning(id string, params ...any) {
	m.record("warning", id, params)
}

func (m *MemoryAPI) ReportDebug(msg string, params ...any) {
	m.record("debug", msg, params)
}

func (m *MemoryAPI) ReportCount(id string, count int64) {
	m.record("count", id, []any{count})
}

// Reports returns the recorded reports of the given level, all of them if level is empty.
func (m *MemoryAPI) Reports(level string) []Report {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := []Report{}
	for _, r := range m.reports {
		if level == "" || r.Level == level {
			out = append(out, r)
		}
	}
	return out
}
