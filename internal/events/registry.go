package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// session
	"session.started": {},
	"session.reset":   {},
	"session.ended":   {},

	// state
	"state.changed": {},

	// engine
	"engine.loading": {},
	"engine.ready":   {},
	"engine.failed":  {},

	// capability
	"capability.probed": {},

	// scene
	"scene.built":       {},
	"scene.injected":    {},
	"scene.ready":       {},
	"scene.init_failed": {},
	"scene.timeout":     {},
	"scene.cleared":     {},

	// mode
	"mode.ar":       {},
	"mode.fallback": {},

	// marker
	"marker.attached": {},
	"marker.found":    {},
	"marker.lost":     {},
	"marker.missing":  {},

	// notification
	"notify.toast": {},

	// transport
	"transport.connected":    {},
	"transport.disconnected": {},
	"transport.error":        {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
