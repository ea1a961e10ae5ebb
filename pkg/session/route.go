package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jfreymuth/pulse/proto"
)

// PortType classifies an audio input or output port
type PortType string

const (
	PortHeadphones     PortType = "headphones"
	PortBuiltInSpeaker PortType = "speaker"
	PortHDMI           PortType = "hdmi"
	PortUSBAudio       PortType = "usb_audio"
	PortBluetoothA2DP  PortType = "bluetooth_a2dp"
	PortBluetoothHFP   PortType = "bluetooth_hfp"
	PortLineOut        PortType = "line_out"
	PortBuiltInMic     PortType = "builtin_mic"
	PortHeadsetMic     PortType = "headset_mic"
	PortLineIn         PortType = "line_in"
	PortUnknown        PortType = "unknown"
)

// PortDescription describes one port of the current route
type PortDescription struct {
	PortType PortType
	PortName string
	UID      string
}

// Route is the set of ports audio currently flows through
type Route struct {
	Inputs  []PortDescription
	Outputs []PortDescription
}

// HasOutput reports whether an output of type t is part of the route
func (r Route) HasOutput(t PortType) bool {
	for _, p := range r.Outputs {
		if p.PortType == t {
			return true
		}
	}
	return false
}

// Equal reports whether two routes carry the same ports
func (r Route) Equal(o Route) bool {
	return equalPorts(r.Inputs, o.Inputs) && equalPorts(r.Outputs, o.Outputs)
}

func equalPorts(a, b []PortDescription) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RouteSource looks up the current route
type RouteSource interface {
	CurrentRoute(ctx context.Context) (Route, error)
}

// RouteFunc adapts a function to RouteSource
type RouteFunc func(ctx context.Context) (Route, error)

func (f RouteFunc) CurrentRoute(ctx context.Context) (Route, error) { return f(ctx) }

// PulseSource reads the route from the PulseAudio (or pipewire-pulse)
// server over its native protocol.
type PulseSource struct {
	// Server overrides PULSE_SERVER and the default socket
	Server string

	// Timeout bounds each request; zero keeps the client default
	Timeout time.Duration
}

// pulseRequester is the part of proto.Client route lookups use
type pulseRequester interface {
	Request(req proto.RequestArgs, rpl proto.Reply) error
}

// CurrentRoute implements RouteSource
func (p PulseSource) CurrentRoute(ctx context.Context) (Route, error) {
	client, conn, err := proto.Connect(p.Server)
	if err != nil {
		return Route{}, fmt.Errorf("connect to pulse server: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if p.Timeout > 0 {
		client.SetTimeout(p.Timeout)
	}
	props := proto.PropList{"application.name": proto.PropListString("audiotest")}
	if err := client.Request(&proto.SetClientName{Props: props}, &proto.SetClientNameReply{}); err != nil {
		return Route{}, fmt.Errorf("register pulse client: %w", err)
	}
	return queryRoute(client)
}

func queryRoute(c pulseRequester) (Route, error) {
	var info proto.GetServerInfoReply
	if err := c.Request(&proto.GetServerInfo{}, &info); err != nil {
		return Route{}, fmt.Errorf("get server info: %w", err)
	}
	var sinks proto.GetSinkInfoListReply
	if err := c.Request(&proto.GetSinkInfoList{}, &sinks); err != nil {
		return Route{}, fmt.Errorf("list sinks: %w", err)
	}
	var sources proto.GetSourceInfoListReply
	if err := c.Request(&proto.GetSourceInfoList{}, &sources); err != nil {
		return Route{}, fmt.Errorf("list sources: %w", err)
	}

	outputs := make([]pulseDevice, 0, len(sinks))
	for _, sink := range sinks {
		outputs = append(outputs, newPulseDevice(sink.SinkName, sink.ActivePortName, sink.Ports, sink.Properties))
	}
	inputs := make([]pulseDevice, 0, len(sources))
	for _, src := range sources {
		inputs = append(inputs, newPulseDevice(src.SourceName, src.ActivePortName, src.Ports, src.Properties))
	}
	return buildRoute(info.DefaultSinkName, info.DefaultSourceName, outputs, inputs), nil
}

// pulsePortInfo is the port entry of sink and source info replies
type pulsePortInfo = struct {
	Name        string
	Description string
	Priority    uint32
	Available   uint32 "24"
}

type pulsePort struct {
	name        string
	description string
	kind        string
}

type pulseDevice struct {
	name       string
	activePort string
	ports      map[string]pulsePort
}

func newPulseDevice(name, activePort string, ports []pulsePortInfo, props proto.PropList) pulseDevice {
	d := pulseDevice{name: name, activePort: activePort, ports: make(map[string]pulsePort, len(ports))}

	// the protocol carries no port type; the device form factor stands in
	// for single port devices such as USB or Bluetooth headphones
	kind := ""
	if len(ports) <= 1 {
		if ff, ok := props["device.form_factor"]; ok {
			kind = formFactorKind(ff.String())
		}
	}
	for _, p := range ports {
		d.ports[p.Name] = pulsePort{name: p.Name, description: p.Description, kind: kind}
	}
	if len(ports) == 0 && kind != "" {
		d.ports[""] = pulsePort{kind: kind}
	}
	return d
}

func formFactorKind(ff string) string {
	switch ff {
	case "headphone":
		return "headphones"
	case "headset", "hands-free":
		return "headset"
	case "speaker":
		return "speaker"
	case "tv":
		return "hdmi"
	case "microphone":
		return "mic"
	}
	return ""
}

func buildRoute(defaultSink, defaultSource string, sinks, sources []pulseDevice) Route {
	var route Route
	for _, d := range sinks {
		if d.name == defaultSink {
			route.Outputs = append(route.Outputs, d.describe(false))
		}
	}
	for _, d := range sources {
		if d.name == defaultSource && !strings.HasSuffix(d.name, ".monitor") {
			route.Inputs = append(route.Inputs, d.describe(true))
		}
	}
	return route
}

func (d pulseDevice) describe(input bool) PortDescription {
	port := d.ports[d.activePort]
	desc := PortDescription{
		PortName: port.description,
		UID:      d.name,
	}
	if d.activePort != "" {
		desc.UID = d.name + ":" + d.activePort
	}
	if desc.PortName == "" {
		desc.PortName = d.name
	}
	desc.PortType = classifyPort(d.name, d.activePort, port.kind, input)
	return desc
}

func classifyPort(device, port, kind string, input bool) PortType {
	device = strings.ToLower(device)
	port = strings.ToLower(port)

	if strings.HasPrefix(device, "bluez") {
		if strings.Contains(port, "headset") || strings.Contains(port, "handsfree") || input {
			return PortBluetoothHFP
		}
		return PortBluetoothA2DP
	}

	switch strings.ToLower(kind) {
	case "headphones":
		return PortHeadphones
	case "speaker":
		return PortBuiltInSpeaker
	case "hdmi":
		return PortHDMI
	case "headset":
		if input {
			return PortHeadsetMic
		}
		return PortHeadphones
	case "mic":
		return PortBuiltInMic
	case "line":
		if input {
			return PortLineIn
		}
		return PortLineOut
	}

	switch {
	case strings.Contains(port, "headphone"):
		return PortHeadphones
	case strings.Contains(port, "headset"):
		if input {
			return PortHeadsetMic
		}
		return PortHeadphones
	case strings.Contains(port, "hdmi") || strings.Contains(device, "hdmi"):
		return PortHDMI
	case strings.Contains(port, "speaker"):
		return PortBuiltInSpeaker
	case strings.Contains(port, "lineout") || strings.Contains(port, "line-out"):
		return PortLineOut
	case strings.Contains(port, "linein") || strings.Contains(port, "line-in"):
		return PortLineIn
	case strings.Contains(port, "mic"):
		return PortBuiltInMic
	case strings.Contains(device, "usb"):
		return PortUSBAudio
	}
	return PortUnknown
}
