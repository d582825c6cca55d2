package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/blegate/internal/protocol"
)

func TestSensorDefaults(t *testing.T) {
	s := NewSensor(testOptions(newTestClock()))
	st := s.State()
	assert.Equal(t, byte(0), st.Mode)
	assert.Equal(t, byte(100), st.Brightness)
	assert.Equal(t, int16(250), st.Temperature)
	assert.Equal(t, uint16(650), st.Humidity)
	assert.Equal(t, uint32(0), st.Commands)
	assert.False(t, st.LED)
	assert.Equal(t, DefaultSensorInterval, s.Interval())
}

func TestSensorCommands(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  [][]byte
		check func(t *testing.T, st SensorState)
	}{
		{
			name:  "set mode",
			frame: []byte{0x01, 0x02, 0x00, 0x00},
			want:  [][]byte{{0x01, 0x02, 0x00, 0x00}},
			check: func(t *testing.T, st SensorState) { assert.Equal(t, byte(2), st.Mode) },
		},
		{
			name:  "get status",
			frame: []byte{0x02, 0x00, 0x00, 0x00},
			want:  [][]byte{{0x02, 0x00, 100, 0x00}},
		},
		{
			name:  "set brightness",
			frame: []byte{0x03, 80, 0x00, 0x00},
			want:  [][]byte{{0x03, 80, 0x00, 0x00}},
			check: func(t *testing.T, st SensorState) { assert.Equal(t, byte(80), st.Brightness) },
		},
		{
			name:  "get telemetry",
			frame: []byte{0x05, 0x00, 0x00, 0x00},
			want:  [][]byte{{0x05, 0x01, 0x00, 0xFA}, {0x05, 0x02, 0x02, 0x8A}},
		},
		{
			name:  "set timer",
			frame: []byte{0x06, 30, 0x00, 0x00},
			want:  [][]byte{{0x06, 30, 0x00, 0x00}},
			check: func(t *testing.T, st SensorState) { assert.Equal(t, byte(30), st.Timer) },
		},
		{
			name:  "two byte frame",
			frame: []byte{0x03, 10},
			want:  [][]byte{{0x03, 10, 0x00, 0x00}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSensor(testOptions(newTestClock()))
			resp := s.ProcessFrame(tt.frame)
			require.NoError(t, resp.Err)
			assert.Equal(t, tt.want, resp.Frames)
			assert.Equal(t, uint32(1), s.State().Commands)
			if tt.check != nil {
				tt.check(t, s.State())
			}
		})
	}
}

func TestSensorSetModeNeedsNoSession(t *testing.T) {
	s := NewSensor(testOptions(newTestClock()))
	// Neither a connect nor any prior frame is required.
	for i := 0; i < 3; i++ {
		resp := s.ProcessFrame(protocol.EncodeFixed(protocol.CmdSetMode, 2, 0, 0))
		require.NoError(t, resp.Err)
		assert.Equal(t, [][]byte{{0x01, 0x02, 0x00, 0x00}}, resp.Frames)
	}
}

func TestSensorModeOutOfRangeIgnored(t *testing.T) {
	s := NewSensor(testOptions(newTestClock()))
	before := s.State()
	resp := s.ProcessFrame([]byte{0x01, 0x03, 0x00, 0x00})
	assert.ErrorIs(t, resp.Err, ErrInvalidParam)
	assert.Empty(t, resp.Frames)
	assert.Equal(t, before, s.State())
}

func TestSensorUnknownCommand(t *testing.T) {
	s := NewSensor(testOptions(newTestClock()))
	before := s.State()
	resp := s.ProcessFrame([]byte{0x09, 0x01, 0x02, 0x03})
	assert.ErrorIs(t, resp.Err, ErrUnknownCommand)
	assert.Equal(t, [][]byte{{0xFF, 0x09, 0xE0, 0x01}}, resp.Frames)
	assert.Equal(t, before, s.State())
}

func TestSensorShortFrames(t *testing.T) {
	s := NewSensor(testOptions(newTestClock()))

	resp := s.ProcessFrame([]byte{0x01})
	assert.ErrorIs(t, resp.Err, protocol.ErrFrameTooShort)
	assert.Equal(t, [][]byte{{0xFF, 0x01, 0xE2, 0x01}}, resp.Frames)

	resp = s.ProcessFrame(nil)
	assert.ErrorIs(t, resp.Err, protocol.ErrFrameTooShort)
	assert.Empty(t, resp.Frames)

	assert.Equal(t, uint32(0), s.State().Commands)
}

func TestSensorResetCounters(t *testing.T) {
	clock := newTestClock()
	s := NewSensor(testOptions(clock))
	s.ProcessFrame([]byte{0x02, 0, 0, 0})
	s.ProcessFrame([]byte{0x02, 0, 0, 0})
	clock.Advance(90 * time.Second)
	require.Equal(t, uint32(2), s.State().Commands)
	require.Equal(t, 90*time.Second, s.State().Uptime)

	resp := s.ProcessFrame([]byte{0x04, 0, 0, 0})
	require.NoError(t, resp.Err)
	assert.Equal(t, [][]byte{{0x04, 0x00, 0x00, 0x00}}, resp.Frames)
	assert.Equal(t, uint32(0), s.State().Commands)
	assert.Equal(t, time.Duration(0), s.State().Uptime)
}

func TestSensorTickDriftsPerMode(t *testing.T) {
	tests := []struct {
		mode             byte
		tLo, tHi, hLo, hHi int
	}{
		{protocol.SensorModeNormal, 230, 270, 600, 700},
		{protocol.SensorModeEco, 205, 235, 670, 730},
		{protocol.SensorModeTurbo, 320, 380, 490, 610},
	}
	for _, tt := range tests {
		s := NewSensor(testOptions(newTestClock()))
		s.ProcessFrame([]byte{0x01, tt.mode, 0, 0})
		led := s.State().LED
		for i := 0; i < 200; i++ {
			assert.Nil(t, s.Tick(time.Time{}))
			st := s.State()
			assert.GreaterOrEqual(t, int(st.Temperature), tt.tLo, "mode %d", tt.mode)
			assert.Less(t, int(st.Temperature), tt.tHi, "mode %d", tt.mode)
			assert.GreaterOrEqual(t, int(st.Humidity), tt.hLo, "mode %d", tt.mode)
			assert.Less(t, int(st.Humidity), tt.hHi, "mode %d", tt.mode)
			assert.NotEqual(t, led, st.LED)
			led = st.LED
		}
	}
}

func TestSensorActiveFollowsConnection(t *testing.T) {
	s := NewSensor(testOptions(newTestClock()))
	assert.False(t, s.Active())
	s.Connected()
	assert.True(t, s.Active())
	s.Disconnected()
	assert.False(t, s.Active())
}
