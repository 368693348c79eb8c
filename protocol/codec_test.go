package protocol

import (
	"testing"

	"bike-arcade-controller/types"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		line string
		want Message
	}{
		{"BUTTON_1_GREEN_READY", Message{Kind: KindReady, Role: types.RoleButton1, Color: "GREEN"}},
		{"BUTTON_3_LIGHT_BLUE_READY\r", Message{Kind: KindReady, Role: types.RoleButton3, Color: "LIGHT_BLUE"}},
		{"BUTTON_2_PRESSED", Message{Kind: KindButtonPressed, Role: types.RoleButton2}},
		{"button_4_released", Message{Kind: KindButtonReleased, Role: types.RoleButton4}},
		{"LED_1_ON_CONFIRMED", Message{Kind: KindLedConfirmed, Role: types.RoleButton1, Led: LedOn}},
		{"LED_2_OFF_CONFIRMED", Message{Kind: KindLedConfirmed, Role: types.RoleButton2, Led: LedOff}},
		{"LED_3_TOGGLE_CONFIRMED", Message{Kind: KindLedConfirmed, Role: types.RoleButton3, Led: LedToggle}},
		{"PONG_4", Message{Kind: KindPong, Role: types.RoleButton4}},
		{"PONG", Message{Kind: KindPong}},
		{"IDENTIFY", Message{Kind: KindIdentifyEcho}},
		{"BIKE_SENSOR_READY", Message{Kind: KindReady, Role: types.RoleCadence}},
		{"BIKE_REV:5:80:1001", Message{Kind: KindCadenceSample, Role: types.RoleCadence, Count: 5, RPM: 80, Timestamp: 1001}},
		{"BIKE_REV:7:62.8:2000", Message{Kind: KindCadenceSample, Role: types.RoleCadence, Count: 7, RPM: 62, Timestamp: 2000}},
		{"BIKE_REV:-1:80:1001", Message{Kind: KindCadenceSample, Role: types.RoleCadence, Count: -1, RPM: 80, Timestamp: 1001}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := Decode(tt.line)
			got.Raw = ""
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"HELLO",
		"BUTTON_5_PRESSED",
		"BUTTON_0_GREEN_READY",
		"BUTTON_X_PRESSED",
		"BUTTON_1_HELD",
		"BUTTON_1",
		"LED_1_BLINK_CONFIRMED",
		"LED_9_ON_CONFIRMED",
		"LED_1_ON",
		"PONG_7",
		"BIKE_REV:1:2",
		"BIKE_REV:abc:80:1001",
		"BIKE_REV:3:NaN:1001",
		"BIKE_REV:3:80:Inf",
		"BIKE_REV:1e30:80:1",
		"BIKE_REV:5:-1e19:1",
		"\x00\xff\xfe",
	}

	for _, line := range lines {
		msg := Decode(line)
		require.Equal(t, KindUnrecognized, msg.Kind, "line %q", line)
	}
}

func TestDecodeKeepsRawText(t *testing.T) {
	msg := Decode("  garbage from device \r\n")
	require.Equal(t, "garbage from device", msg.Raw)
}

func TestEncode(t *testing.T) {
	require.Equal(t, []byte("LED_ON\n"), Encode(LedCommand(true)))
	require.Equal(t, []byte("LED_OFF\n"), Encode(LedCommand(false)))
	require.Equal(t, []byte("GAME_MODE_ON\n"), Encode(GameModeCommand(true)))
	require.Equal(t, []byte("GAME_MODE_OFF\n"), Encode(GameModeCommand(false)))
}
