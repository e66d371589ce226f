package models

import "sort"

// TimeField is the name of the mandatory time column of every event log.
const TimeField = "time"

// Event is one timestamped set of variable updates.
// Variables that were not observed at Time are absent, which is distinct from
// being present with a zero value.
type Event struct {
	Time   float64
	values map[string]interface{}
}

// NewEvent creates an event without any variable values
func NewEvent(t float64) *Event {
	return &Event{Time: t, values: make(map[string]interface{})}
}

// Set assigns a value to the named variable
func (e *Event) Set(name string, value interface{}) {
	if e.values == nil {
		e.values = make(map[string]interface{})
	}
	e.values[name] = value
}

// Get returns the value of the named variable and whether it is present
func (e *Event) Get(name string) (interface{}, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Has reports whether the named variable was observed
func (e *Event) Has(name string) bool {
	_, ok := e.values[name]
	return ok
}

// Len returns the number of observed variables
func (e *Event) Len() int {
	return len(e.values)
}

// Names returns the observed variable names in lexical order
func (e *Event) Names() []string {
	names := make([]string, 0, len(e.values))
	for name := range e.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns a copy of the observed variables
func (e *Event) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}
