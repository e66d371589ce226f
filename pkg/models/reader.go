package models

// EventReader is implemented by every event log reader.
// Next returns io.EOF once all events were consumed.
type EventReader interface {
	Header() map[string]SimulationDataType
	Next() (*Event, error)
}
