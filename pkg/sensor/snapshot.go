package sensor

import "time"

// Entry is the state of one sensor in a Snapshot.
type Entry struct {
	ID       ID
	Name     string
	Location string
	Kind     Kind
	Status   Status
	Reading  Reading
}

// Values returns the values to report for the entry. Entries without
// valid data report zero values of the declared types.
func (e *Entry) Values() []Value {
	if e.Status.HasData() && e.Reading != nil {
		return e.Reading.Values()
	}
	return ZeroValues(e.Kind)
}

// Snapshot is a point-in-time copy of all sensors, taken from one
// acquisition pass. It's never modified once created.
type Snapshot struct {
	Seq     uint64
	Taken   time.Time
	Entries []Entry
}

// Entry finds the entry of a sensor.
func (s *Snapshot) Entry(id ID) (Entry, bool) {
	if int(id) >= len(s.Entries) {
		return Entry{}, false
	}
	return s.Entries[id], true
}

// Len returns the number of sensors.
func (s *Snapshot) Len() int {
	return len(s.Entries)
}

// EmptySnapshot reports every sensor as disconnected. It stands in
// before the first acquisition pass.
func EmptySnapshot(defs []Definition) Snapshot {
	s := Snapshot{Entries: make([]Entry, len(defs))}
	for n := range defs {
		s.Entries[n] = entryOf(&defs[n], StatusDisconnected, nil)
	}
	return s
}

func entryOf(def *Definition, status Status, reading Reading) Entry {
	return Entry{
		ID:       def.ID,
		Name:     def.Name,
		Location: def.Location,
		Kind:     def.Kind,
		Status:   status,
		Reading:  reading,
	}
}
