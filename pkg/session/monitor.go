package session

import (
	"context"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"github.com/melophonic/audiotest/pkg/logger"
)

// RouteChangeReason explains why the route was re-read
type RouteChangeReason string

const (
	ReasonDeviceAdded   RouteChangeReason = "device_added"
	ReasonDeviceRemoved RouteChangeReason = "device_removed"
	ReasonDeviceChanged RouteChangeReason = "device_changed"
	ReasonPoll          RouteChangeReason = "poll"
)

// RouteChange reports a change of the current route
type RouteChange struct {
	Previous Route
	Current  Route
	Reason   RouteChangeReason
}

// RouteMonitor reports route changes. Hotplug is picked up from udev
// sound events; jack plugging does not raise uevents on most codecs, so
// the route is also polled.
type RouteMonitor struct {
	source   RouteSource
	interval time.Duration
	onChange func(RouteChange)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	done    chan struct{}
	running bool
	last    Route
}

// NewRouteMonitor creates a monitor over src. A zero interval disables polling.
func NewRouteMonitor(src RouteSource, interval time.Duration, onChange func(RouteChange)) *RouteMonitor {
	return &RouteMonitor{
		source:   src,
		interval: interval,
		onChange: onChange,
	}
}

// Start reads the initial route and begins monitoring
func (m *RouteMonitor) Start(ctx context.Context) error {
	log := logger.WithComponent("route-monitor")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	route, err := m.source.CurrentRoute(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read initial audio route")
	}
	m.last = route

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		log.Warn().Err(err).Msg("Failed to connect to udev netlink socket; hotplug detection unavailable")
		conn = nil
	}
	if conn == nil && m.interval <= 0 {
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.loop(ctx, conn, m.quit, m.done)

	log.Info().Bool("udev", conn != nil).Dur("interval", m.interval).Msg("Route monitor started")
	return nil
}

// Stop ends monitoring and waits for the loop to exit
func (m *RouteMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.quit)
	done := m.done
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
	m.mu.Unlock()

	<-done
	logger.WithComponent("route-monitor").Info().Msg("Route monitor stopped")
}

// Running reports whether the monitor is active
func (m *RouteMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *RouteMonitor) loop(ctx context.Context, conn *netlink.UEventConn, quit, done chan struct{}) {
	defer close(done)
	log := logger.WithComponent("route-monitor")

	var (
		events <-chan netlink.UEvent
		errs   <-chan error
	)
	if conn != nil {
		queue := make(chan netlink.UEvent)
		errCh := make(chan error)
		monitorQuit := conn.Monitor(queue, errCh, soundMatcher())
		defer close(monitorQuit)
		events, errs = queue, errCh
	}

	var tick <-chan time.Time
	if m.interval > 0 {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case ev := <-events:
			log.Debug().Str("action", string(ev.Action)).Str("kobj", ev.KObj).Msg("Sound device event")
			m.check(ctx, reasonFor(ev.Action))
		case err := <-errs:
			log.Warn().Err(err).Msg("udev monitor error")
		case <-tick:
			m.check(ctx, ReasonPoll)
		}
	}
}

func (m *RouteMonitor) check(ctx context.Context, reason RouteChangeReason) {
	route, err := m.source.CurrentRoute(ctx)
	if err != nil {
		logger.WithComponent("route-monitor").Debug().Err(err).Msg("Route lookup failed")
		return
	}

	m.mu.Lock()
	prev := m.last
	changed := !prev.Equal(route)
	m.last = route
	m.mu.Unlock()

	if changed && m.onChange != nil {
		m.onChange(RouteChange{Previous: prev, Current: route, Reason: reason})
	}
}

// soundMatcher matches add, remove and change events of sound devices
// and of the jack-detect input devices sound cards register
func soundMatcher() netlink.Matcher {
	action := "^(add|remove|change)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^sound$",
		},
	})
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^input$",
			"DEVPATH":   "/sound/card[0-9]+/input[0-9]+",
		},
	})
	return rules
}

func reasonFor(action netlink.KObjAction) RouteChangeReason {
	switch action {
	case netlink.ADD:
		return ReasonDeviceAdded
	case netlink.REMOVE:
		return ReasonDeviceRemoved
	default:
		return ReasonDeviceChanged
	}
}
