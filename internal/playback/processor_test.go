package playback

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/roomcast/roomcast/internal/realtime"
)

type fakeOutbox struct {
	msgs   []realtime.Message
	closed bool
}

func (f *fakeOutbox) TrySend(m realtime.Message) bool {
	f.msgs = append(f.msgs, m)
	return true
}

func (f *fakeOutbox) Close() { f.closed = true }

func (f *fakeOutbox) events() []string {
	var out []string
	for _, m := range f.msgs {
		out = append(out, m.Event)
	}
	return out
}

type fakeResolver map[string]MediaEntry

func (r fakeResolver) Lookup(id string) (MediaEntry, bool) {
	e, ok := r[id]
	return e, ok
}

// testRoom is a hub with one controller and two viewers attached to fake
// outboxes, plus a processor over a fresh store.
func testRoom(t *testing.T, strict bool, media MediaResolver) (*Processor, *Store, map[string]*fakeOutbox) {
	t.Helper()
	hub := realtime.NewHub(zap.NewNop())
	store := NewStore()
	if media == nil {
		media = fakeResolver{}
	}
	outs := map[string]*fakeOutbox{
		"ctrl":    {},
		"viewer1": {},
		"viewer2": {},
	}
	for id, out := range outs {
		hub.Register(id, realtime.SessionMeta{}, out)
	}
	hub.Identify("ctrl", realtime.RoleController)
	hub.Identify("viewer1", realtime.RoleViewer)
	hub.Identify("viewer2", realtime.RoleViewer)
	return NewProcessor(store, hub, media, strict, zap.NewNop()), store, outs
}

func TestProcessor_ViewerCommandsDropped(t *testing.T) {
	p, store, outs := testRoom(t, false, nil)
	before := store.Snapshot()

	p.Handle("viewer1", json.RawMessage(`{"type":"pause"}`))

	after := store.Snapshot()
	if before != after {
		t.Errorf("viewer command mutated state: %+v vs %+v", before, after)
	}
	for id, out := range outs {
		if len(out.msgs) != 0 {
			t.Errorf("session %s received %v, want nothing", id, out.events())
		}
	}
}

func TestProcessor_LoadStreamFromURL(t *testing.T) {
	p, store, outs := testRoom(t, false, nil)

	p.Handle("ctrl", json.RawMessage(`{"type":"load","sourceType":"stream","url":"https://www.youtube.com/watch?v=ABCDEFGHIJK"}`))

	st := store.Snapshot()
	if st.MediaType != MediaStream || st.Source != "ABCDEFGHIJK" {
		t.Fatalf("store not loaded: %+v", st)
	}
	if st.Position != 0 || !st.Playing {
		t.Errorf("load should start from 0 playing: %+v", st)
	}

	// sender gets the snapshot only, no echo of its own command
	if got := outs["ctrl"].events(); len(got) != 1 || got[0] != realtime.EventCurrentState {
		t.Errorf("sender received %v, want [current_state]", got)
	}
	// everyone else gets echo then snapshot
	for _, id := range []string{"viewer1", "viewer2"} {
		got := outs[id].events()
		if len(got) != 2 || got[0] != realtime.EventCommand || got[1] != realtime.EventCurrentState {
			t.Errorf("session %s received %v, want [command current_state]", id, got)
		}
		var echo Command
		if err := json.Unmarshal(outs[id].msgs[0].Data, &echo); err != nil {
			t.Fatalf("echo unmarshal: %v", err)
		}
		if echo.Type != "load" || echo.ID != "ABCDEFGHIJK" {
			t.Errorf("session %s echo = %+v", id, echo)
		}
	}
}

func TestProcessor_LoadInvalidStreamURL(t *testing.T) {
	p, store, outs := testRoom(t, false, nil)
	before := store.Snapshot()

	p.Handle("ctrl", json.RawMessage(`{"type":"load","sourceType":"stream","url":"not-a-video-url"}`))

	if after := store.Snapshot(); before != after {
		t.Errorf("invalid load mutated state: %+v", after)
	}
	if got := outs["ctrl"].events(); len(got) != 1 || got[0] != realtime.EventError {
		t.Errorf("sender received %v, want [error]", got)
	}
	for _, id := range []string{"viewer1", "viewer2"} {
		if len(outs[id].msgs) != 0 {
			t.Errorf("session %s received %v, want nothing", id, outs[id].events())
		}
	}
}

func TestProcessor_LoadLocal(t *testing.T) {
	media := fakeResolver{
		"movie.mp4": {Name: "movie.mp4", Kind: "video", URL: "/media/movie.mp4"},
		"track.mp3": {Name: "track.mp3", Kind: "audio", URL: "/media/track.mp3"},
	}
	p, store, outs := testRoom(t, false, media)

	p.Handle("ctrl", json.RawMessage(`{"type":"load","sourceType":"local","id":"track.mp3"}`))

	st := store.Snapshot()
	if st.MediaType != MediaAudio || st.Source != "track.mp3" || st.DisplayName != "track.mp3" {
		t.Errorf("local load: %+v", st)
	}
	var echo Command
	_ = json.Unmarshal(outs["viewer1"].msgs[0].Data, &echo)
	if echo.URL != "/media/track.mp3" {
		t.Errorf("echo should carry the access URL, got %+v", echo)
	}
}

func TestProcessor_LoadLocalUnknownID(t *testing.T) {
	p, store, outs := testRoom(t, false, nil)
	before := store.Snapshot()

	p.Handle("ctrl", json.RawMessage(`{"type":"load","sourceType":"local","id":"ghost.mp4"}`))

	if after := store.Snapshot(); before != after {
		t.Errorf("unresolvable load mutated state: %+v", after)
	}
	if got := outs["ctrl"].events(); len(got) != 1 || got[0] != realtime.EventError {
		t.Errorf("sender received %v, want [error]", got)
	}
}

func TestProcessor_TransitionsEchoToOthers(t *testing.T) {
	p, store, outs := testRoom(t, false, nil)
	p.Handle("ctrl", json.RawMessage(`{"type":"load","sourceType":"stream","id":"ABCDEFGHIJK"}`))
	for _, out := range outs {
		out.msgs = nil
	}

	cases := []struct {
		raw   string
		check func(t *testing.T, st State)
	}{
		{`{"type":"pause"}`, func(t *testing.T, st State) {
			if st.Playing {
				t.Error("pause should stop playback")
			}
		}},
		{`{"type":"play"}`, func(t *testing.T, st State) {
			if !st.Playing {
				t.Error("play should resume playback")
			}
		}},
		{`{"type":"seek","position":93.5}`, func(t *testing.T, st State) {
			if st.Position != 93.5 {
				t.Errorf("seek position = %v", st.Position)
			}
		}},
		{`{"type":"volume","volume":250}`, func(t *testing.T, st State) {
			if st.Volume != 100 {
				t.Errorf("volume should clamp to 100, got %d", st.Volume)
			}
		}},
		{`{"type":"mute","muted":true}`, func(t *testing.T, st State) {
			if !st.Muted {
				t.Error("mute should set the flag")
			}
		}},
		{`{"type":"restart"}`, func(t *testing.T, st State) {
			if st.Position != 0 || !st.Playing {
				t.Errorf("restart: %+v", st)
			}
		}},
	}

	for _, tc := range cases {
		p.Handle("ctrl", json.RawMessage(tc.raw))
		tc.check(t, store.Snapshot())
	}

	if n := len(outs["ctrl"].msgs); n != 0 {
		t.Errorf("sender received %d echoes of its own commands", n)
	}
	for _, id := range []string{"viewer1", "viewer2"} {
		if n := len(outs[id].msgs); n != len(cases) {
			t.Errorf("session %s received %d messages, want %d", id, n, len(cases))
		}
	}
	// echoes are verbatim
	if string(outs["viewer1"].msgs[2].Data) != `{"type":"seek","position":93.5}` {
		t.Errorf("echo not verbatim: %s", outs["viewer1"].msgs[2].Data)
	}
}

func TestProcessor_SeekWithoutPositionDefaultsToZero(t *testing.T) {
	p, store, _ := testRoom(t, false, nil)
	p.Handle("ctrl", json.RawMessage(`{"type":"load","sourceType":"stream","id":"ABCDEFGHIJK"}`))
	p.Handle("ctrl", json.RawMessage(`{"type":"seek","position":50}`))
	p.Handle("ctrl", json.RawMessage(`{"type":"seek"}`))
	if st := store.Snapshot(); st.Position != 0 {
		t.Errorf("seek without position should default to 0, got %v", st.Position)
	}
}

func TestProcessor_SeekNonNumericPositionDefaultsToZero(t *testing.T) {
	p, store, outs := testRoom(t, false, nil)
	p.Handle("ctrl", json.RawMessage(`{"type":"load","sourceType":"stream","id":"ABCDEFGHIJK"}`))
	p.Handle("ctrl", json.RawMessage(`{"type":"seek","position":50}`))
	for _, out := range outs {
		out.msgs = nil
	}

	p.Handle("ctrl", json.RawMessage(`{"type":"seek","position":"abc"}`))

	if st := store.Snapshot(); st.Position != 0 {
		t.Errorf("non-numeric seek should default to 0, got %v", st.Position)
	}
	if len(outs["ctrl"].msgs) != 0 {
		t.Errorf("sender received %v, want nothing", outs["ctrl"].events())
	}
	if got := outs["viewer1"].events(); len(got) != 1 || got[0] != realtime.EventCommand {
		t.Errorf("viewer received %v, want the echoed seek", got)
	}
}

func TestProcessor_WrongTypedParamsCoerced(t *testing.T) {
	p, store, outs := testRoom(t, false, nil)
	p.Handle("ctrl", json.RawMessage(`{"type":"load","sourceType":"stream","id":"ABCDEFGHIJK"}`))
	p.Handle("ctrl", json.RawMessage(`{"type":"volume","volume":80}`))
	p.Handle("ctrl", json.RawMessage(`{"type":"mute","muted":true}`))
	for _, out := range outs {
		out.msgs = nil
	}

	p.Handle("ctrl", json.RawMessage(`{"type":"volume","volume":"loud"}`))
	p.Handle("ctrl", json.RawMessage(`{"type":"mute","muted":"yes"}`))

	st := store.Snapshot()
	if st.Volume != 0 {
		t.Errorf("non-numeric volume should coerce to 0, got %d", st.Volume)
	}
	if st.Muted {
		t.Error("non-boolean muted should coerce to false")
	}
	if len(outs["ctrl"].msgs) != 0 {
		t.Errorf("sender received %v, want nothing", outs["ctrl"].events())
	}
}

func TestProcessor_UnknownCommandLenient(t *testing.T) {
	p, store, outs := testRoom(t, false, nil)
	before := store.Snapshot()
	time.Sleep(time.Millisecond)

	raw := json.RawMessage(`{"type":"subtitles","lang":"de"}`)
	p.Handle("ctrl", raw)

	after := store.Snapshot()
	if !after.LastUpdate.After(before.LastUpdate) {
		t.Error("unknown command should stamp the state clock")
	}
	before.LastUpdate, after.LastUpdate = time.Time{}, time.Time{}
	if before != after {
		t.Errorf("unknown command changed state: %+v vs %+v", before, after)
	}
	if got := outs["viewer1"].events(); len(got) != 1 || got[0] != realtime.EventCommand {
		t.Errorf("viewer received %v, want the echoed unknown command", got)
	}
}

func TestProcessor_UnknownCommandStrict(t *testing.T) {
	p, _, outs := testRoom(t, true, nil)

	p.Handle("ctrl", json.RawMessage(`{"type":"subtitles"}`))

	if got := outs["ctrl"].events(); len(got) != 1 || got[0] != realtime.EventError {
		t.Errorf("sender received %v, want [error]", got)
	}
	if len(outs["viewer1"].msgs) != 0 {
		t.Errorf("strict mode should not echo unknown commands, viewer got %v", outs["viewer1"].events())
	}
}

func TestProcessor_SyncDeliversSnapshot(t *testing.T) {
	p, store, outs := testRoom(t, false, nil)
	p.Handle("ctrl", json.RawMessage(`{"type":"load","sourceType":"stream","id":"ABCDEFGHIJK"}`))
	outs["viewer2"].msgs = nil

	p.Sync("viewer2")

	got := outs["viewer2"].msgs
	if len(got) != 1 || got[0].Event != realtime.EventCurrentState {
		t.Fatalf("viewer2 received %v, want [current_state]", outs["viewer2"].events())
	}
	var st State
	if err := json.Unmarshal(got[0].Data, &st); err != nil {
		t.Fatalf("snapshot unmarshal: %v", err)
	}
	want := store.Snapshot()
	if st.Source != want.Source || st.MediaType != want.MediaType || st.Playing != want.Playing {
		t.Errorf("snapshot = %+v, want %+v", st, want)
	}
}
