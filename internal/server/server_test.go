package server

import (
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-meter/internal/canvas"
	"github.com/oszuidwest/zwfm-meter/internal/config"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

type mockStation struct {
	mock.Mock
}

func (m *mockStation) Status() types.WSStatusResponse {
	return m.Called().Get(0).(types.WSStatusResponse)
}

func (m *mockStation) Frame() canvas.Frame {
	return m.Called().Get(0).(canvas.Frame)
}

func (m *mockStation) Subscribe() (<-chan types.WSEventResponse, func()) {
	args := m.Called()
	return args.Get(0).(chan types.WSEventResponse), args.Get(1).(func())
}

func (m *mockStation) UpdateMeter(c config.MeterConfig) error { return m.Called(c).Error(0) }
func (m *mockStation) SetMeterEnabled(enabled bool) error     { return m.Called(enabled).Error(0) }
func (m *mockStation) SetTrackMuted(muted bool) error         { return m.Called(muted).Error(0) }
func (m *mockStation) SetTrackEnabled(enabled bool) error     { return m.Called(enabled).Error(0) }
func (m *mockStation) StopTrack() error                       { return m.Called().Error(0) }
func (m *mockStation) RestartTrack() error                    { return m.Called().Error(0) }

func newHandler(t *testing.T) (*CommandHandler, *mockStation, *config.Config) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())
	st := &mockStation{}
	version := func() types.VersionInfo { return types.VersionInfo{Current: "1.2.3", Protocol: Protocol} }
	return NewCommandHandler(cfg, st, version), st, cfg
}

func command(t *testing.T, typ string, data any) WSCommand {
	t.Helper()
	cmd := WSCommand{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		cmd.Data = raw
	}
	return cmd
}

func result(t *testing.T, send <-chan any) types.WSCommandResult {
	t.Helper()
	select {
	case msg := <-send:
		res, ok := msg.(types.WSCommandResult)
		require.True(t, ok, "got %T", msg)
		return res
	case <-time.After(time.Second):
		t.Fatal("no command result")
		return types.WSCommandResult{}
	}
}

func TestHandle_MeterUpdateMergesFields(t *testing.T) {
	h, st, _ := newHandler(t)
	want := config.DefaultMeter()
	want.Shape = "circle"
	want.BucketCount = 12
	st.On("UpdateMeter", want).Return(nil)

	send := make(chan any, 4)
	triggered := 0
	h.Handle(command(t, "meter/update", map[string]any{"shape": "circle", "bucket_count": 12}), send, func() { triggered++ })

	res := result(t, send)
	assert.Equal(t, "meter/update_result", res.Type)
	assert.True(t, res.Success)
	assert.Equal(t, 1, triggered)
	st.AssertExpectations(t)
}

func TestHandle_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		cmd   string
		data  any
		field string
	}{
		{"bucket count too large", "meter/update", map[string]any{"bucket_count": 300}, "bucket_count"},
		{"unknown shape", "meter/update", map[string]any{"shape": "triangle"}, "shape"},
		{"decay too low", "meter/update", map[string]any{"decay_factor": 0.5}, "decay_factor"},
		{"mute flag missing", "track/mute", map[string]any{}, "muted"},
		{"enabled flag missing", "meter/enable", nil, "enabled"},
		{"protocol not semver", "hello", map[string]any{"protocol": "one"}, "protocol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, st, _ := newHandler(t)
			send := make(chan any, 4)
			h.Handle(command(t, tt.cmd, tt.data), send, func() {})

			res := result(t, send)
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			require.Len(t, res.Error.Errors, 1)
			assert.Equal(t, tt.field, res.Error.Errors[0].Field)
			st.AssertNotCalled(t, "UpdateMeter", mock.Anything)
		})
	}
}

func TestHandle_TrackCommands(t *testing.T) {
	h, st, _ := newHandler(t)
	st.On("SetTrackMuted", true).Return(nil)
	st.On("SetTrackEnabled", false).Return(errors.New("station not running"))
	st.On("SetMeterEnabled", false).Return(nil)

	send := make(chan any, 4)
	h.Handle(command(t, "track/mute", map[string]any{"muted": true}), send, func() {})
	assert.True(t, result(t, send).Success)

	h.Handle(command(t, "track/enable", map[string]any{"enabled": false}), send, func() {})
	res := result(t, send)
	assert.False(t, res.Success)
	assert.Equal(t, "station not running", res.Message)

	h.Handle(command(t, "meter/enable", map[string]any{"enabled": false}), send, func() {})
	assert.True(t, result(t, send).Success)
	st.AssertExpectations(t)
}

func TestHandle_AsyncTrackCommands(t *testing.T) {
	h, st, cfg := newHandler(t)
	st.On("StopTrack").Return(nil)
	st.On("RestartTrack").Return(nil)

	send := make(chan any, 4)
	done := make(chan struct{}, 3)
	trigger := func() { done <- struct{}{} }

	h.Handle(command(t, "track/stop", nil), send, trigger)
	assert.Equal(t, "track/stop_result", result(t, send).Type)
	<-done

	h.Handle(command(t, "track/restart", nil), send, trigger)
	assert.True(t, result(t, send).Success)
	<-done

	h.Handle(command(t, "audio/update", map[string]any{"input": "hw:2"}), send, trigger)
	assert.True(t, result(t, send).Success)
	<-done
	assert.Equal(t, "hw:2", cfg.Snapshot().AudioInput)

	st.AssertNumberOfCalls(t, "RestartTrack", 2)
}

func TestHandle_Hello(t *testing.T) {
	h, _, _ := newHandler(t)
	send := make(chan any, 4)

	h.Handle(command(t, "hello", HelloRequest{Protocol: "1.0.0"}), send, func() {})
	hello, ok := (<-send).(types.WSHelloResponse)
	require.True(t, ok)
	assert.True(t, hello.Compatible)
	assert.Equal(t, "1.2.3", hello.Version.Current)

	h.Handle(command(t, "hello", HelloRequest{Protocol: "2.0.0"}), send, func() {})
	hello = (<-send).(types.WSHelloResponse)
	assert.False(t, hello.Compatible)
}

func TestHandle_ConfigAndUnknown(t *testing.T) {
	h, _, _ := newHandler(t)
	send := make(chan any, 4)

	h.Handle(command(t, "config/get", nil), send, func() {})
	resp, ok := (<-send).(types.WSConfigResponse)
	require.True(t, ok)
	view := resp.Config.(configView)
	assert.Equal(t, config.DefaultShape, view.Meter.Shape)

	h.Handle(command(t, "outputs/add", nil), send, func() { t.Error("unknown command triggered status") })
	res := result(t, send)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unknown command")
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		client string
		want   bool
	}{
		{Protocol, true},
		{"v1.0.0", true},
		{"1.0.5", true},
		{"1.9.0", false},
		{"0.9.0", false},
		{"2.0.0", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Compatible(tt.client, Protocol), tt.client)
	}
	assert.True(t, IsNewerVersion("v1.3.0", "1.2.9"))
	assert.Equal(t, "1.2.0", NormalizeVersion(" v1.2.0 "))
}

// fakeConn feeds commands from in and collects writes on out.
type fakeConn struct {
	in     chan WSCommand
	out    chan any
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan WSCommand), out: make(chan any, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadJSON(v any) error {
	cmd, ok := <-c.in
	if !ok {
		return io.EOF
	}
	*v.(*WSCommand) = cmd
	return nil
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case c.out <- v:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func next[T any](t *testing.T, out <-chan any) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-out:
			if v, ok := msg.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("no %T message", zero)
			return zero
		}
	}
}

func TestServeClient(t *testing.T) {
	h, st, _ := newHandler(t)
	events := make(chan types.WSEventResponse, 1)
	unsubscribed := make(chan struct{})
	st.On("Subscribe").Return(events, func() { close(unsubscribed) })
	st.On("Status").Return(types.WSStatusResponse{Type: "status"})
	st.On("Frame").Return(canvas.Frame{Version: 7, Width: 10, Height: 10, Ops: []canvas.Op{{Kind: canvas.OpClear}}})
	st.On("SetTrackMuted", true).Return(nil)

	conn := newFakeConn()
	served := make(chan struct{})
	go func() {
		ServeClient(conn, h, st, ClientOptions{FrameInterval: 5 * time.Millisecond, StatusInterval: time.Hour})
		close(served)
	}()

	assert.Equal(t, "status", next[types.WSStatusResponse](t, conn.out).Type)
	frame := next[types.WSFrameResponse](t, conn.out)
	assert.Equal(t, uint64(7), frame.Frame.(canvas.Frame).Version)

	events <- types.WSEventResponse{Type: "event", Event: "stale"}
	assert.Equal(t, "stale", next[types.WSEventResponse](t, conn.out).Event)

	conn.in <- command(t, "track/mute", map[string]any{"muted": true})
	assert.True(t, next[types.WSCommandResult](t, conn.out).Success)
	next[types.WSStatusResponse](t, conn.out)

	close(conn.in)
	<-served
	<-unsubscribed
	<-conn.closed
}
