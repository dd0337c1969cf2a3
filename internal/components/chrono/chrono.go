package chrono

import "time"

// DefaultLocation is the timezone the portal reports due times in.
const DefaultLocation = "Asia/Shanghai"

type API interface {
	Now() time.Time
	Location() *time.Location
}

type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl loads the named location, an empty name means DefaultLocation.
func NewStandardImpl(name string) (StandardImpl, error) {
	if name == "" {
		name = DefaultLocation
	}
	location, err := time.LoadLocation(name)
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

// Static is an API frozen at a single instant.
type Static struct {
	At time.Time
}

func (s Static) Now() time.Time {
	return s.At
}

func (s Static) Location() *time.Location {
	return s.At.Location()
}
