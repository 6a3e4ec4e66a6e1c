package chrono

import (
	"time"
	_ "time/tzdata"
)

// API is the interface that anything depending on the system clock should use.
//
// note: fault injection point
type API interface {
	// Now returns the current time in Location().
	Now() time.Time
	Location() *time.Location
}

// StandardImpl is the standard implementation of API, pinned to the portal's timezone
// so that year boundaries match the ones used by the publisher.
type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl() (StandardImpl, error) {
	location, err := time.LoadLocation("Europe/Lisbon")
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl always reports the same instant.
type FixedImpl struct {
	At time.Time
}

func (f FixedImpl) Now() time.Time {
	return f.At
}

func (f FixedImpl) Location() *time.Location {
	return f.At.Location()
}
