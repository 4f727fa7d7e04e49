package mediasession

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

const (
	busPrefix   = "org.mpris.MediaPlayer2."
	objectPath  = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	rootIface   = "org.mpris.MediaPlayer2"
	playerIface = "org.mpris.MediaPlayer2.Player"
	noTrack     = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")

	minRate = 0.5
	maxRate = 2.0
)

// MPRIS exposes the session on the D-Bus session bus.
type MPRIS struct {
	conn  *dbus.Conn
	props *prop.Properties
	name  string

	mu       sync.Mutex
	handlers Handlers
	logger   *log.Logger
}

// NewMPRIS connects to the session bus and claims
// org.mpris.MediaPlayer2.<name>.
func NewMPRIS(name string, logger *log.Logger) (*MPRIS, error) {
	if logger == nil {
		logger = log.Default()
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	m := &MPRIS{conn: conn, name: busPrefix + name, logger: logger}
	if err := m.export(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	reply, err := conn.RequestName(m.name, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", m.name)
	}

	logger.Debug("media session registered", "name", m.name)
	return m, nil
}

func (m *MPRIS) export() error {
	root := &rootObject{}
	player := &playerObject{m: m}

	if err := m.conn.Export(root, objectPath, rootIface); err != nil {
		return fmt.Errorf("export %s: %w", rootIface, err)
	}
	if err := m.conn.Export(player, objectPath, playerIface); err != nil {
		return fmt.Errorf("export %s: %w", playerIface, err)
	}

	props, err := prop.Export(m.conn, objectPath, prop.Map{
		rootIface: {
			"CanQuit":             {Value: false, Emit: prop.EmitTrue},
			"CanRaise":            {Value: false, Emit: prop.EmitTrue},
			"HasTrackList":        {Value: false, Emit: prop.EmitTrue},
			"Identity":            {Value: "pmocast", Emit: prop.EmitTrue},
			"SupportedUriSchemes": {Value: []string{}, Emit: prop.EmitTrue},
			"SupportedMimeTypes":  {Value: []string{}, Emit: prop.EmitTrue},
		},
		playerIface: {
			"PlaybackStatus": {Value: string(StatusStopped), Emit: prop.EmitTrue},
			"Rate":           {Value: 1.0, Writable: true, Emit: prop.EmitTrue, Callback: m.onRate},
			"Metadata":       {Value: metadata(NowPlaying{}), Emit: prop.EmitTrue},
			"Volume":         {Value: 1.0, Emit: prop.EmitTrue},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"MinimumRate":    {Value: minRate, Emit: prop.EmitTrue},
			"MaximumRate":    {Value: maxRate, Emit: prop.EmitTrue},
			"CanGoNext":      {Value: false, Emit: prop.EmitTrue},
			"CanGoPrevious":  {Value: false, Emit: prop.EmitTrue},
			"CanPlay":        {Value: true, Emit: prop.EmitTrue},
			"CanPause":       {Value: true, Emit: prop.EmitTrue},
			"CanSeek":        {Value: false, Emit: prop.EmitTrue},
			"CanControl":     {Value: true, Emit: prop.EmitTrue},
		},
	})
	if err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	m.props = props

	node := &introspect.Node{
		Name: string(objectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{Name: rootIface, Methods: introspect.Methods(root), Properties: props.Introspection(rootIface)},
			{Name: playerIface, Methods: introspect.Methods(player), Properties: props.Introspection(playerIface)},
		},
	}
	if err := m.conn.Export(introspect.NewIntrospectable(node), objectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

// Update publishes a new descriptor.
func (m *MPRIS) Update(np NowPlaying) {
	m.set("PlaybackStatus", string(np.Status))
	m.set("Metadata", metadata(np))
	m.set("Position", np.Position.Microseconds())
	m.set("CanGoNext", np.CanGoNext)
	m.set("CanGoPrevious", np.CanGoPrevious)
	if np.Rate > 0 {
		m.set("Rate", np.Rate)
	}
}

// Clear resets the descriptor.
func (m *MPRIS) Clear() {
	m.Update(NowPlaying{Status: StatusStopped})
}

// SetHandlers registers the transport actions.
func (m *MPRIS) SetHandlers(h Handlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()

	m.set("CanPlay", h.Play != nil)
	m.set("CanPause", h.Pause != nil)
}

// Close releases the bus name and the connection.
func (m *MPRIS) Close() error {
	if _, err := m.conn.ReleaseName(m.name); err != nil {
		m.logger.Debug("release bus name", "error", err)
	}
	return m.conn.Close()
}

// set stores a property from our side. SetMust skips the write callback
// and the read-only check that apply to bus clients.
func (m *MPRIS) set(name string, value any) {
	m.props.SetMust(playerIface, name, value)
}

// onRate handles a Rate write from a bus client. It runs with the property
// lock held, so the handler is dispatched rather than called: the handler
// publishes back through Update.
func (m *MPRIS) onRate(c *prop.Change) *dbus.Error {
	rate, ok := c.Value.(float64)
	if !ok {
		return prop.ErrInvalidArg
	}
	if rate < minRate || rate > maxRate {
		return prop.ErrInvalidArg
	}
	m.mu.Lock()
	fn := m.handlers.SetRate
	m.mu.Unlock()
	if fn == nil {
		return nil
	}
	go func() {
		if err := fn(rate); err != nil {
			m.logger.Warn("media session rate rejected", "rate", rate, "error", err)
		}
	}()
	return nil
}

// dispatch runs a handler off the D-Bus goroutine.
func (m *MPRIS) dispatch(pick func(Handlers) func()) {
	m.mu.Lock()
	fn := pick(m.handlers)
	m.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

func metadata(np NowPlaying) map[string]dbus.Variant {
	track := noTrack
	if np.TrackID != "" {
		track = dbus.ObjectPath("/org/pmocast/track/" + sanitize(np.TrackID))
	}
	md := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(track),
	}
	if np.Title != "" {
		md["xesam:title"] = dbus.MakeVariant(np.Title)
	}
	if np.Artist != "" {
		md["xesam:artist"] = dbus.MakeVariant([]string{np.Artist})
	}
	if np.Album != "" {
		md["xesam:album"] = dbus.MakeVariant(np.Album)
	}
	if np.Length > 0 {
		md["mpris:length"] = dbus.MakeVariant(np.Length.Microseconds())
	}
	return md
}

// sanitize maps an id onto the characters allowed in an object path element.
func sanitize(id string) string {
	b := []byte(id)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

type rootObject struct{}

func (rootObject) Raise() *dbus.Error { return nil }
func (rootObject) Quit() *dbus.Error  { return nil }

type playerObject struct {
	m *MPRIS
}

func (p *playerObject) Next() *dbus.Error {
	p.m.dispatch(func(h Handlers) func() { return h.Next })
	return nil
}

func (p *playerObject) Previous() *dbus.Error {
	p.m.dispatch(func(h Handlers) func() { return h.Previous })
	return nil
}

func (p *playerObject) Pause() *dbus.Error {
	p.m.dispatch(func(h Handlers) func() { return h.Pause })
	return nil
}

func (p *playerObject) PlayPause() *dbus.Error {
	p.m.dispatch(func(h Handlers) func() { return h.PlayPause })
	return nil
}

func (p *playerObject) Stop() *dbus.Error {
	p.m.dispatch(func(h Handlers) func() { return h.Stop })
	return nil
}

func (p *playerObject) Play() *dbus.Error {
	p.m.dispatch(func(h Handlers) func() { return h.Play })
	return nil
}

// Seek and SetPosition are accepted and ignored; CanSeek is false.
func (p *playerObject) Seek(int64) *dbus.Error                         { return nil }
func (p *playerObject) SetPosition(dbus.ObjectPath, int64) *dbus.Error { return nil }
func (p *playerObject) OpenUri(string) *dbus.Error                     { return nil }

var _ Session = (*MPRIS)(nil)
