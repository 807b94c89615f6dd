package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sourceadapter "github.com/aretw0/shelf/pkg/adapters/lifecycle"
	"github.com/aretw0/shelf/pkg/agent"
)

func TestSource_ForwardsAgentEvents(t *testing.T) {
	upstream := make(chan agent.Event, 2)
	src := sourceadapter.NewSource(upstream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Start(ctx))

	upstream <- agent.Event{Kind: agent.EventConnect}
	upstream <- agent.Event{Kind: agent.EventConnectionError, Err: errors.New("refused")}
	close(upstream)

	var got []string
	for e := range src.Events() {
		got = append(got, e.String())
	}
	assert.Equal(t, []string{"connect", "connection_error: refused"}, got)
}

func TestSource_StopsWithContext(t *testing.T) {
	src := sourceadapter.NewSource(make(chan agent.Event))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx))
	cancel()

	select {
	case _, open := <-src.Events():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("source did not close")
	}
}
