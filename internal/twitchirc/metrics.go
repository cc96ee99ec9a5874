package twitchirc

import "sync/atomic"

var (
	messagesReceived atomic.Int64
	messagesSent     atomic.Int64
	timeoutsReceived atomic.Int64
	subsReceived     atomic.Int64
)

// Stats is a point-in-time snapshot of transport counters.
type Stats struct {
	MessagesReceived int64
	MessagesSent     int64
	TimeoutsReceived int64
	SubsReceived     int64
}

func Snapshot() Stats {
	return Stats{
		MessagesReceived: messagesReceived.Load(),
		MessagesSent:     messagesSent.Load(),
		TimeoutsReceived: timeoutsReceived.Load(),
		SubsReceived:     subsReceived.Load(),
	}
}
