package powermon

import (
	"errors"
	"time"

	"github.com/TheCacophonyProject/dc-powermon/stats"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.powermon"
	dbusPath = "/org/cacophony/powermon"

	serviceRequestTimeout = 5 * time.Second
)

// serviceRequest is handled by the loop between samples so the engine only
// has one writer.
type serviceRequest struct {
	reset    bool
	response chan stats.Stats
}

type service struct {
	requests chan<- serviceRequest
}

func startService(requests chan<- serviceRequest) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{requests: requests}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

func (s *service) do(reset bool) (stats.Stats, error) {
	req := serviceRequest{reset: reset, response: make(chan stats.Stats, 1)}
	select {
	case s.requests <- req:
	case <-time.After(serviceRequestTimeout):
		return stats.Stats{}, errors.New("timed out waiting for the sampling loop")
	}
	select {
	case st := <-req.response:
		return st, nil
	case <-time.After(serviceRequestTimeout):
		return stats.Stats{}, errors.New("timed out waiting for statistics")
	}
}

// Stats returns the averages and extremes of every channel.
func (s *service) Stats() (map[string]float64, *dbus.Error) {
	st, err := s.do(false)
	if err != nil {
		return nil, makeDbusError(".Stats", err)
	}
	out := map[string]float64{}
	for k, v := range readingDetails(st) {
		switch val := v.(type) {
		case float64:
			out[k] = val
		case int:
			out[k] = float64(val)
		}
	}
	return out, nil
}

// Reset clears the statistics.
func (s *service) Reset() *dbus.Error {
	if _, err := s.do(true); err != nil {
		return makeDbusError(".Reset", err)
	}
	return nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}
