package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameFlattensPayload(t *testing.T) {
	h := Header{
		RequestID:      "r1",
		Name:           ReqSetOrders,
		Token:          "tok",
		GameID:         "g1",
		Phase:          "S1901M",
		PhaseDependent: true,
	}
	frame, err := EncodeFrame(h, SetOrders{Power: "france", Orders: []string{"A par - bur"}})
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(frame, &flat))
	assert.Equal(t, "r1", flat["request_id"])
	assert.Equal(t, ReqSetOrders, flat["name"])
	assert.Equal(t, "france", flat["power"])
	assert.Equal(t, "S1901M", flat["phase"])

	back, err := DecodeHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, h, back)

	var payload SetOrders
	require.NoError(t, json.Unmarshal(frame, &payload))
	assert.Equal(t, []string{"A par - bur"}, payload.Orders)
}

func TestDecodeHeaderRequiresName(t *testing.T) {
	_, err := DecodeHeader([]byte(`{"request_id":"x"}`))
	assert.Error(t, err)
}

func TestRequestTableLevels(t *testing.T) {
	assert.Equal(t, LevelConnection, Requests[ReqSignIn].Level)
	assert.Equal(t, LevelChannel, Requests[ReqCreateGame].Level)
	assert.Equal(t, LevelGame, Requests[ReqSetOrders].Level)

	// Phase-dependent requests are exactly the ones whose correctness
	// rides on the game phase.
	for name, meta := range Requests {
		switch name {
		case ReqSetOrders, ReqClearOrders, ReqVote, ReqSendGameMessage:
			assert.True(t, meta.PhaseDependent, name)
		default:
			assert.False(t, meta.PhaseDependent, name)
		}
	}
}

func TestNotificationFrameRoundTrip(t *testing.T) {
	n, err := NewNotification("n1", NotifPowerVoteUpdate, "tok", "g1",
		PowerVoteUpdate{Power: "france", Vote: true})
	require.NoError(t, err)

	frame, err := EncodeNotificationFrame(n)
	require.NoError(t, err)
	assert.Equal(t, FrameNotification, ClassifyFrame(frame))

	back, err := DecodeNotificationHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, "n1", back.NotificationID)
	assert.Equal(t, NotifPowerVoteUpdate, back.Name)
	assert.Equal(t, "g1", back.GameID)

	var payload PowerVoteUpdate
	require.NoError(t, json.Unmarshal(back.Data, &payload))
	assert.Equal(t, "france", payload.Power)
	assert.True(t, payload.Vote)
}

func TestClassifyFrame(t *testing.T) {
	assert.Equal(t, FrameResponse, ClassifyFrame([]byte(`{"request_id":"r1","name":"x"}`)))
	assert.Equal(t, FrameNotification, ClassifyFrame([]byte(`{"notification_id":"n1","name":"x","token":"t"}`)))
	assert.Equal(t, FrameUnknown, ClassifyFrame([]byte(`{"name":"x"}`)))
	assert.Equal(t, FrameUnknown, ClassifyFrame([]byte(`not json`)))
}

func TestErrorTaxonomy(t *testing.T) {
	err := Errorf(ErrPhaseMismatch, "stale phase %s", "S1901M")
	assert.Equal(t, ErrPhaseMismatch, err.Code)
	assert.Contains(t, err.Error(), "PHASE_MISMATCH")

	wrapped := AsError(err)
	assert.Same(t, err, wrapped)

	other := AsError(json.Unmarshal([]byte("x"), &struct{}{}))
	assert.Equal(t, ErrInternal, other.Code)
}
