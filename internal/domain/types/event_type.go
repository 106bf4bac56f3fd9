package types

type RideEvent string

func (s RideEvent) String() string {
	return string(s)
}

const (
	EventRideRequested RideEvent = "RIDE_REQUESTED"
	EventRideAccepted  RideEvent = "RIDE_ACCEPTED"
	EventRideStarted   RideEvent = "RIDE_STARTED"
	EventRideEnded     RideEvent = "RIDE_ENDED"
	EventRideCancelled RideEvent = "RIDE_CANCELLED"
)
