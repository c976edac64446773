package powermon

import (
	"math"
	"time"

	"github.com/TheCacophonyProject/dc-powermon/stats"
	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
)

const (
	powerReadingEvent  = "powerReading"
	sensorFailureEvent = "powerMonitorSensorFailure"
)

type eventAdder func(eventclient.Event) error

var addEvent eventAdder = eventclient.AddEvent

func finiteOrZero(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

func readingDetails(s stats.Stats) map[string]interface{} {
	details := map[string]interface{}{
		"samples": s.Samples,
	}
	for _, c := range stats.Channels() {
		details[c.String()] = s.Avg(c)
		details[c.String()+"Min"] = finiteOrZero(s.Min(c))
		details[c.String()+"Max"] = finiteOrZero(s.Max(c))
	}
	return details
}

func reportReading(add eventAdder, now time.Time, s stats.Stats) error {
	log.Debug("Reporting ", powerReadingEvent)
	return add(eventclient.Event{
		Timestamp: now,
		Type:      powerReadingEvent,
		Details:   readingDetails(s),
	})
}

func reportSensorFailure(add eventAdder, sensorErr error) {
	err := add(eventclient.Event{
		Timestamp: time.Now(),
		Type:      sensorFailureEvent,
		Details: map[string]interface{}{
			"error": sensorErr.Error(),
		},
	})
	if err != nil {
		log.Error("Error adding sensor failure event: ", err)
	}
}
