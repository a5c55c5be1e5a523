package models

// NotificationKind discriminates the event union carried over the
// message queue. Consumers dispatch on it with a switch.
type NotificationKind string

const (
	NotificationCalled   NotificationKind = "called"
	NotificationNoShow   NotificationKind = "no_show"
	NotificationPosition NotificationKind = "position"
)

// Notification is a fire-and-forget push event. EventID is stable per
// logical event ("call:<waitingId>", "noshow:<waitingId>") so consumers
// can deduplicate redeliveries.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	EventID        string           `json:"event_id"`
	UserID         string           `json:"user_id"`
	BoothID        string           `json:"booth_id"`
	BoothName      string           `json:"booth_name,omitempty"`
	CalledPosition int              `json:"called_position,omitempty"`
	Position       int              `json:"position,omitempty"`
}

func (n Notification) RoutingKey() string {
	return "waiting." + string(n.Kind)
}
