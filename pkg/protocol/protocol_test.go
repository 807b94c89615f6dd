package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/shelf/pkg/core"
	"github.com/aretw0/shelf/pkg/protocol"
)

func TestClientFrames(t *testing.T) {
	frame, err := protocol.EncodeClient(protocol.GetInitialState{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"get-initial-state"}`, string(frame))

	doc := core.AddItem(core.Empty(), core.Item{ID: "a", Title: "A", Icon: core.IconBook})
	frame, err = protocol.EncodeClient(protocol.NewUpdateState(doc))
	require.NoError(t, err)

	msg, err := protocol.DecodeClient(frame)
	require.NoError(t, err)
	update, ok := msg.(protocol.UpdateState)
	require.True(t, ok, "expected UpdateState, got %T", msg)

	decoded, err := core.DecodeDocument(update.Payload)
	require.NoError(t, err)
	assert.True(t, decoded.Equal(doc))
}

func TestDecodeClient_Errors(t *testing.T) {
	_, err := protocol.DecodeClient([]byte(`{"event":"drop-tables"}`))
	assert.ErrorIs(t, err, core.ErrUnknownEvent)

	_, err = protocol.DecodeClient([]byte(`not json`))
	assert.Error(t, err)

	msg, err := protocol.DecodeClient([]byte(`{"event":"update-state"}`))
	require.NoError(t, err, "payload validation belongs to the receiver")
	_, err = core.DecodeDocument(msg.(protocol.UpdateState).Payload)
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func TestServerFrames(t *testing.T) {
	frame, err := protocol.EncodeServer(protocol.Error{Message: "invalid document: missing items"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","data":{"message":"invalid document: missing items"}}`, string(frame))

	msg, err := protocol.DecodeServer(frame)
	require.NoError(t, err)
	assert.Equal(t, protocol.Error{Message: "invalid document: missing items"}, msg)

	frame, err = protocol.EncodeServer(protocol.Pong{})
	require.NoError(t, err)
	msg, err = protocol.DecodeServer(frame)
	require.NoError(t, err)
	assert.Equal(t, protocol.Pong{}, msg)

	frame, err = protocol.EncodeServer(protocol.StateUpdate{Document: core.Empty()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"state-update","data":{"items":[],"folders":[],"itemOrder":[],"folderOrder":[]}}`, string(frame))
}
