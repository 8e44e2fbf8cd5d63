package history

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/require"

	"github.com/antonkrylov/logwise/internal/agent"
)

func runJetStream(t *testing.T) string {
	t.Helper()
	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)
	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func TestJetStreamMirrorReplaysOnStart(t *testing.T) {
	url := runJetStream(t)
	ctx := context.Background()
	opts := &Options{Limit: 10, JetStream: &JetStreamOptions{URL: url, SubjectPrefix: "lw", Stream: "lw_history"}}

	st, err := New(ctx, opts)
	require.NoError(t, err)
	first := execution("a", "echo a", 0)
	require.NoError(t, st.Record(ctx, first))
	// Same id again: JetStream drops it inside the duplicate window.
	require.NoError(t, st.Record(ctx, first))
	failed := execution("bb", "ls /no_such_dir", 2)
	require.NoError(t, st.Record(ctx, failed))
	rejected := execution("ccc", "sudo ls", -1)
	rejected.Outcome = agent.OutcomeRejected
	rejected.Rule = &agent.Rule{Kind: agent.RulePrefix, Value: "sudo "}
	require.NoError(t, st.Record(ctx, rejected))

	info, err := st.js.js.StreamInfo("lw_history")
	require.NoError(t, err)
	require.Equal(t, uint64(3), info.State.Msgs)
	st.Close()

	replayed, err := New(ctx, opts)
	require.NoError(t, err)
	defer replayed.Close()

	got := replayed.List(0)
	require.Len(t, got, 3)
	require.Equal(t, []string{"a", "bb", "ccc"}, []string{got[0].ID, got[1].ID, got[2].ID})
	require.Equal(t, agent.OutcomeFailed, got[1].Outcome)
	require.Equal(t, 2, got[1].ExitCode)
	require.Equal(t, "out of ls /no_such_dir", got[1].Result().Stderr)
	require.Equal(t, "prefix:sudo ", got[2].Rule)
	require.True(t, got[0].StartedAt.Equal(first.StartedAt))
}

func TestJetStreamSubjectsPerOutcome(t *testing.T) {
	url := runJetStream(t)
	ctx := context.Background()
	st, err := New(ctx, &Options{JetStream: &JetStreamOptions{URL: url}})
	require.NoError(t, err)
	defer st.Close()

	sub, err := st.js.conn.SubscribeSync("logwise.executions.failed")
	require.NoError(t, err)
	require.NoError(t, st.js.conn.Flush())

	require.NoError(t, st.Record(ctx, execution("ok-1", "true", 0)))
	require.NoError(t, st.Record(ctx, execution("bad-1", "false", 1)))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	e, err := decodeEntry(msg.Data)
	require.NoError(t, err)
	require.Equal(t, "bad-1", e.ID)
	_, err = sub.NextMsg(100 * time.Millisecond)
	require.Error(t, err)
}
