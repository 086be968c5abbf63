package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorlog/internal/model"
)

func TestTailFileFollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"text\":\"old\",\"date\":1715344200,\"message_id\":1}\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.ChannelMessage, 4)
	go tailFile(ctx, path, false, NewParser(nil), out, nil)

	select {
	case msg := <-out:
		assert.Equal(t, "old", msg.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("existing line was not delivered")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"text\":\"new\",\"date\":1715344260,")
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)
	_, err = f.WriteString("\"message_id\":2}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case msg := <-out:
		assert.Equal(t, "new", msg.Text)
		assert.Equal(t, int64(2), msg.MessageID)
		assert.Equal(t, SourceFileTail, msg.Source)
	case <-time.After(3 * time.Second):
		t.Fatal("appended line was not delivered")
	}
	assert.Empty(t, out)
}
