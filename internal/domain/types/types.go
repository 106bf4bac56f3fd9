package types

// RideStatus is the lifecycle state of a ride.
//
// REQUESTED --accept--> ACCEPTED --start--> STARTED --end--> ENDED
// REQUESTED --cancel--> CANCELLED
// ACCEPTED  --cancel--> CANCELLED
type RideStatus string

func (s RideStatus) String() string {
	return string(s)
}

const (
	StatusRequested RideStatus = "REQUESTED"
	StatusAccepted  RideStatus = "ACCEPTED"
	StatusStarted   RideStatus = "STARTED"
	StatusEnded     RideStatus = "ENDED"
	StatusCancelled RideStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RideStatus) IsTerminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// EntityType distinguishes the two participant kinds.
type EntityType string

func (e EntityType) String() string {
	return string(e)
}

const (
	Driver    EntityType = "driver"
	Passenger EntityType = "passenger"
)
