package playback

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/roomcast/roomcast/internal/realtime"
)

// Command is the wire shape of a playback command. Position, volume and
// muted decode leniently: a wrong-typed value takes the zero value instead
// of failing the whole command.
type Command struct {
	Type       string      `json:"type"`
	SourceType string      `json:"sourceType,omitempty"`
	URL        string      `json:"url,omitempty"`
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name,omitempty"`
	Position   *LooseFloat `json:"position,omitempty"`
	Volume     *LooseInt   `json:"volume,omitempty"`
	Muted      *LooseBool  `json:"muted,omitempty"`
}

// LooseFloat decodes any JSON value, keeping 0 unless it is a number.
type LooseFloat float64

func (f *LooseFloat) UnmarshalJSON(b []byte) error {
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*f = 0
		return nil
	}
	*f = LooseFloat(v)
	return nil
}

// LooseInt decodes any JSON value, keeping 0 unless it is a number.
type LooseInt int

func (i *LooseInt) UnmarshalJSON(b []byte) error {
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		*i = 0
		return nil
	}
	*i = LooseInt(v)
	return nil
}

// LooseBool decodes any JSON value, keeping false unless it is a boolean.
type LooseBool bool

func (m *LooseBool) UnmarshalJSON(b []byte) error {
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		*m = false
		return nil
	}
	*m = LooseBool(v)
	return nil
}

// ErrorPayload is the body of an error event sent back to one session.
type ErrorPayload struct {
	Message string `json:"message"`
}

// MediaEntry is the catalog projection needed to resolve a local load.
type MediaEntry struct {
	Name string
	Kind string // "video" or "audio"
	URL  string
}

// MediaResolver looks up a local catalog entry by id.
type MediaResolver interface {
	Lookup(id string) (MediaEntry, bool)
}

// Processor validates inbound commands, applies transitions to the store and
// decides what to broadcast. All methods run on the hub's serial loop.
type Processor struct {
	store  *Store
	hub    *realtime.Hub
	media  MediaResolver
	strict bool
	logger *zap.Logger
}

// NewProcessor wires the command processor. strict rejects unknown command
// types instead of echoing them.
func NewProcessor(store *Store, hub *realtime.Hub, media MediaResolver, strict bool, logger *zap.Logger) *Processor {
	return &Processor{
		store:  store,
		hub:    hub,
		media:  media,
		strict: strict,
		logger: logger,
	}
}

// Handle processes one command from the given session.
func (p *Processor) Handle(senderID string, data json.RawMessage) {
	role, ok := p.hub.RoleOf(senderID)
	if !ok {
		return
	}
	if role != realtime.RoleController {
		p.logger.Warn("command from non-controller dropped",
			zap.String("session_id", senderID),
			zap.String("role", string(role)),
		)
		return
	}

	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		p.sendError(senderID, "malformed command")
		return
	}

	switch cmd.Type {
	case "load":
		p.handleLoad(senderID, cmd)
		return
	case "play":
		p.store.Play()
	case "pause":
		p.store.Pause()
	case "seek":
		var pos float64
		if cmd.Position != nil {
			pos = float64(*cmd.Position)
		}
		p.store.Seek(pos)
	case "restart":
		p.store.Restart()
	case "volume":
		var v int
		if cmd.Volume != nil {
			v = int(*cmd.Volume)
		}
		p.store.SetVolume(v)
	case "mute":
		p.store.SetMuted(cmd.Muted != nil && bool(*cmd.Muted))
	default:
		if p.strict {
			p.logger.Warn("unknown command rejected", zap.String("type", cmd.Type), zap.String("session_id", senderID))
			p.sendError(senderID, "unknown command type: "+cmd.Type)
			return
		}
		p.logger.Info("unknown command echoed", zap.String("type", cmd.Type), zap.String("session_id", senderID))
		p.store.Touch()
	}

	// the sender already knows its own intent; everyone else applies the
	// command optimistically without waiting for a snapshot round-trip
	p.hub.ToAllExcept(senderID, realtime.EventCommand, data)
}

// Sync re-delivers the current snapshot to one session.
func (p *Processor) Sync(senderID string) {
	p.hub.ToSession(senderID, realtime.EventCurrentState, p.store.Snapshot())
}

func (p *Processor) handleLoad(senderID string, cmd Command) {
	var norm Command
	var st State

	if cmd.SourceType == string(MediaStream) {
		id, ok := ExtractStreamID(cmd.ID)
		if !ok {
			id, ok = ExtractStreamID(cmd.URL)
		}
		if !ok {
			p.logger.Warn("stream id extraction failed",
				zap.String("session_id", senderID),
				zap.String("url", cmd.URL),
			)
			p.sendError(senderID, ErrInvalidSource.Error())
			return
		}
		name := cmd.Name
		if name == "" {
			name = id
		}
		st = p.store.Load(MediaStream, id, name)
		norm = Command{Type: "load", SourceType: string(MediaStream), ID: id, Name: name}
	} else {
		entry, ok := p.media.Lookup(cmd.ID)
		if !ok {
			p.logger.Warn("local load for unknown catalog id",
				zap.String("session_id", senderID),
				zap.String("id", cmd.ID),
			)
			p.sendError(senderID, ErrInvalidSource.Error())
			return
		}
		mt := MediaVideo
		if entry.Kind == "audio" {
			mt = MediaAudio
		}
		st = p.store.Load(mt, cmd.ID, entry.Name)
		norm = Command{Type: "load", SourceType: string(mt), ID: cmd.ID, Name: entry.Name, URL: entry.URL}
	}

	// dual delivery: the echo lets connected players react with a minimal
	// payload, the snapshot reconciles anyone who joined mid-flight
	p.hub.ToAllExcept(senderID, realtime.EventCommand, norm)
	p.hub.ToAll(realtime.EventCurrentState, st)
}

func (p *Processor) sendError(senderID, msg string) {
	p.hub.ToSession(senderID, realtime.EventError, ErrorPayload{Message: msg})
}
