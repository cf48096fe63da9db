package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniity/sedap-express/x/communicator"
	"github.com/uniity/sedap-express/x/message"
)

const textRecord = `TEXT;63;0195238E15AD;324E;S;TRUE;;;1;NONE;"This is an alert!";1000`

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{Path: filepath.Join(t.TempDir(), "journal.db")}, zerolog.Nop())
	require.NoError(t, err)
	return j
}

func waitCount(t *testing.T, j *Journal, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		c, err := j.Count(context.Background())
		return err == nil && c == n
	}, 5*time.Second, 10*time.Millisecond)
}

func TestJournal_ObserveAndRecent(t *testing.T) {
	t.Parallel()

	j := openTest(t)
	t.Cleanup(func() { _ = j.Close() })

	m, _, err := message.Decode(textRecord)
	require.NoError(t, err)
	j.Observe(communicator.Inbound, m)
	j.Observe(communicator.Outbound, message.NewHeartbeat(message.Header{Sender: "AB"}, ""))
	waitCount(t, j, 2)

	all, err := j.Recent(context.Background(), 10, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, message.TypeHeartbeat, all[0].Type)
	assert.Equal(t, "outbound", all[0].Direction)
	assert.Nil(t, all[0].Number)

	text := all[1]
	assert.Equal(t, message.TypeText, text.Type)
	assert.Equal(t, "inbound", text.Direction)
	assert.Equal(t, "324E", text.Sender)
	require.NotNil(t, text.Number)
	assert.Equal(t, 0x63, *text.Number)
	assert.Equal(t, textRecord, text.Record)
	assert.WithinDuration(t, time.Now(), text.RecordedAt, time.Minute)
}

func TestJournal_RecentFilter(t *testing.T) {
	t.Parallel()

	j := openTest(t)
	t.Cleanup(func() { _ = j.Close() })

	for _, s := range []string{"AA", "BB", "AA"} {
		j.Observe(communicator.Inbound, message.NewHeartbeat(message.Header{Sender: s}, ""))
	}
	waitCount(t, j, 3)

	tests := []struct {
		name   string
		filter Filter
		limit  int
		want   int
	}{
		{name: "by sender", filter: Filter{Sender: "AA"}, want: 2},
		{name: "by direction", filter: Filter{Direction: "outbound"}, want: 0},
		{name: "by type", filter: Filter{Type: message.TypeHeartbeat}, want: 3},
		{name: "limited", limit: 1, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			limit := tc.limit
			if limit == 0 {
				limit = 10
			}
			got, err := j.Recent(context.Background(), limit, tc.filter)
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestJournal_Prune(t *testing.T) {
	t.Parallel()

	j := openTest(t)
	t.Cleanup(func() { _ = j.Close() })

	j.Observe(communicator.Inbound, message.NewHeartbeat(message.Header{}, ""))
	waitCount(t, j, 1)

	n, err := j.Prune(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = j.Prune(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	waitCount(t, j, 0)
}

func TestJournal_CloseFlushesAndPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		j.Observe(communicator.Outbound, message.NewHeartbeat(message.Header{}, ""))
	}
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Close(), ErrClosed)

	// observing after close is ignored
	j.Observe(communicator.Outbound, message.NewHeartbeat(message.Header{}, ""))

	reopened, err := Open(Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
}

func TestJournal_WiredAsObserver(t *testing.T) {
	t.Parallel()

	j := openTest(t)
	t.Cleanup(func() { _ = j.Close() })

	comm := communicator.New(zerolog.Nop())
	t.Cleanup(comm.Stop)
	comm.AddObserver(j)

	require.True(t, comm.Send(message.NewHeartbeat(message.Header{Sender: "CAFE"}, "")))
	waitCount(t, j, 1)
}

func TestOpen_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{}, zerolog.Nop())
	require.Error(t, err)
}
