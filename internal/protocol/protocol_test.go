package protocol

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestEncode_Envelope(t *testing.T) {
	req := require.New(t)

	frame, err := Encode(EventPong, nil)
	req.NoError(err)
	req.JSONEq(`{"type":"pong"}`, string(frame))

	frame, err = Encode(EventUserJoined, UserPresence{UserID: "u1", Name: "Alice"})
	req.NoError(err)
	req.JSONEq(`{"type":"user_joined","data":{"userId":"u1","name":"Alice"}}`, string(frame))
}

func TestDecodeEnvelope_Rejects_Garbage(t *testing.T) {
	req := require.New(t)

	_, err := DecodeEnvelope([]byte(`not json`))
	req.ErrorIs(err, domain.ErrInvalidPayload)
	_, err = DecodeEnvelope([]byte(`{"data":{}}`))
	req.ErrorIs(err, domain.ErrInvalidPayload)

	env, err := DecodeEnvelope([]byte(`{"type":"join_group","data":{"groupId":7}}`))
	req.NoError(err)
	var ref GroupRef
	req.NoError(Decode(env.Data, &ref))
	req.Equal(domain.GroupID("7"), ref.GroupID)
}

func TestDecode_Validates(t *testing.T) {
	req := require.New(t)

	var sc StartCall
	err := Decode(json.RawMessage(`{"groupId":"g1","callId":"c1","callType":"hologram"}`), &sc)
	req.ErrorIs(err, domain.ErrInvalidPayload)

	var dm DeleteMessages
	err = Decode(json.RawMessage(`{"groupId":"g1","messageIds":[]}`), &dm)
	req.ErrorIs(err, domain.ErrInvalidPayload)
	req.NoError(Decode(json.RawMessage(`{"groupId":"g1","messageIds":[1,2]}`), &dm))

	var uc UserConnect
	err = Decode(nil, &uc)
	req.ErrorIs(err, domain.ErrInvalidPayload)
}

func TestRelayedSignal_Keeps_Body_Under_Event_Key(t *testing.T) {
	req := require.New(t)
	body := json.RawMessage(`{"candidate":"c1","sdpMid":"0"}`)

	out := NewRelayedSignal(EventWebRTCCandidate, "u1", "Alice", body)

	raw, err := json.Marshal(out)
	req.NoError(err)
	req.JSONEq(`{"fromUserId":"u1","fromUserName":"Alice","candidate":{"candidate":"c1","sdpMid":"0"}}`, string(raw))
	req.Equal(body, out.Body(EventWebRTCCandidate))
	req.Nil(out.Body(EventWebRTCOffer))
	req.True(IsRelay(EventWebRTCAnswer))
	req.False(IsRelay(EventSendMessage))
}
