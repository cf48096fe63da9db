package tcp

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniity/sedap-express/x/codec"
	"github.com/uniity/sedap-express/x/communicator"
	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/transport"
)

const textRecord = `TEXT;63;0195238E15AD;324E;S;TRUE;;;1;NONE;"This is an alert!";1000`

func testConfig(addr string) transport.Config {
	return transport.Config{
		Address:        addr,
		ReconnectDelay: 50 * time.Millisecond,
		DialTimeout:    time.Second,
		WriteTimeout:   time.Second,
	}
}

// inbox subscribes to comm and collects everything it distributes
func inbox(t *testing.T, comm *communicator.Communicator) <-chan message.Message {
	t.Helper()
	ch := make(chan message.Message, 64)
	comm.Subscribe(communicator.SubscriberFunc(func(m message.Message) error {
		ch <- m
		return nil
	}))
	return ch
}

func receive(t *testing.T, ch <-chan message.Message) message.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func startServer(t *testing.T, opts ...Option) (*Server, *communicator.Communicator) {
	t.Helper()
	comm := communicator.New(zerolog.Nop())
	srv := NewServer(testConfig("127.0.0.1:0"), comm, codec.NewTextCodec(0), zerolog.Nop(), opts...)
	require.NoError(t, srv.Connect(context.Background()))
	t.Cleanup(comm.Stop)
	return srv, comm
}

func startClient(t *testing.T, addr string) (*Client, *communicator.Communicator) {
	t.Helper()
	comm := communicator.New(zerolog.Nop())
	cl := NewClient(testConfig(addr), comm, codec.NewTextCodec(0), zerolog.Nop())
	require.NoError(t, cl.Connect(context.Background()))
	t.Cleanup(comm.Stop)
	return cl, comm
}

func waitPeers(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(srv.Peers()) == n }, 5*time.Second, 10*time.Millisecond)
}

func sample(t *testing.T) message.Message {
	t.Helper()
	m, _, err := message.Decode(textRecord)
	require.NoError(t, err)
	return m
}

func TestClientServer_RoundTrip(t *testing.T) {
	t.Parallel()

	srv, srvComm := startServer(t)
	cl, clComm := startClient(t, srv.Addr().String())
	srvIn, clIn := inbox(t, srvComm), inbox(t, clComm)

	waitPeers(t, srv, 1)
	require.Eventually(t, func() bool { return cl.State() == transport.StateConnected }, 5*time.Second, 10*time.Millisecond)

	require.True(t, srvComm.Send(sample(t)))
	got := receive(t, clIn)
	assert.Equal(t, textRecord, message.Encode(got))

	require.True(t, clComm.Send(message.NewHeartbeat(message.Header{Sender: "ABCD"}, "324E")))
	got = receive(t, srvIn)
	assert.Equal(t, message.TypeHeartbeat, got.Type())
	assert.Equal(t, "ABCD", got.Envelope().Sender)

	info, ok := cl.Connection()
	require.True(t, ok)
	assert.NotEmpty(t, info.ID)
	assert.Positive(t, info.BytesWritten)
}

func TestServer_BroadcastAndPeerIsolation(t *testing.T) {
	t.Parallel()

	srv, srvComm := startServer(t)
	_, comm1 := startClient(t, srv.Addr().String())
	cl2, comm2 := startClient(t, srv.Addr().String())
	in1, in2 := inbox(t, comm1), inbox(t, comm2)
	waitPeers(t, srv, 2)

	require.True(t, srvComm.Send(sample(t)))
	assert.Equal(t, message.TypeText, receive(t, in1).Type())
	assert.Equal(t, message.TypeText, receive(t, in2).Type())

	require.NoError(t, cl2.Close())
	waitPeers(t, srv, 1)

	require.True(t, srvComm.Send(message.NewHeartbeat(message.Header{}, "")))
	assert.Equal(t, message.TypeHeartbeat, receive(t, in1).Type())
}

func TestServer_MaxConnections(t *testing.T) {
	t.Parallel()

	comm := communicator.New(zerolog.Nop())
	t.Cleanup(comm.Stop)
	cfg := testConfig("127.0.0.1:0")
	cfg.MaxConnections = 1
	srv := NewServer(cfg, comm, codec.NewTextCodec(0), zerolog.Nop())
	require.NoError(t, srv.Connect(context.Background()))

	first, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	waitPeers(t, srv, 1)

	second, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	// the rejected connection is closed by the server
	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = second.Read(make([]byte, 1))
	require.Error(t, err)
	assert.Len(t, srv.Peers(), 1)
}

func TestServer_SkipsUndecodableLines(t *testing.T) {
	t.Parallel()

	srv, srvComm := startServer(t)
	in := inbox(t, srvComm)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("BOGUS;01;02\n\n" + textRecord + "\r\n"))
	require.NoError(t, err)

	got := receive(t, in)
	assert.Equal(t, textRecord, message.Encode(got))
}

func TestServer_SurvivesOversizedLine(t *testing.T) {
	t.Parallel()

	comm := communicator.New(zerolog.Nop())
	t.Cleanup(comm.Stop)
	srv := NewServer(testConfig("127.0.0.1:0"), comm, codec.NewTextCodec(len(textRecord)), zerolog.Nop())
	require.NoError(t, srv.Connect(context.Background()))
	in := inbox(t, comm)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	long := strings.Repeat("A", 64*1024)
	_, err = conn.Write([]byte(long + "\n" + textRecord + "\n"))
	require.NoError(t, err)

	got := receive(t, in)
	assert.Equal(t, textRecord, message.Encode(got))
	assert.Len(t, srv.Peers(), 1)
}

func TestServer_BindFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	comm := communicator.New(zerolog.Nop())
	t.Cleanup(comm.Stop)
	srv := NewServer(testConfig(ln.Addr().String()), comm, codec.NewTextCodec(0), zerolog.Nop())

	err = srv.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, transport.StateDisconnected, srv.State())
	assert.Equal(t, err, comm.LastError())
}

func TestClient_RetriesUntilServerAppears(t *testing.T) {
	t.Parallel()

	// reserve a port, then free it so the first dials are refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cl, clComm := startClient(t, addr)
	require.Eventually(t, func() bool { return clComm.LastError() != nil }, 5*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, transport.StateConnected, cl.State())

	srvComm := communicator.New(zerolog.Nop())
	t.Cleanup(srvComm.Stop)
	srv := NewServer(testConfig(addr), srvComm, codec.NewTextCodec(0), zerolog.Nop())
	require.NoError(t, srv.Connect(context.Background()))

	require.Eventually(t, func() bool { return cl.State() == transport.StateConnected }, 5*time.Second, 10*time.Millisecond)
	waitPeers(t, srv, 1)
}

func TestClient_ReconnectsAfterServerRestart(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t)
	addr := srv.Addr().String()
	cl, clComm := startClient(t, addr)
	waitPeers(t, srv, 1)

	require.NoError(t, srv.Close())
	require.Eventually(t, func() bool { return cl.State() != transport.StateConnected }, 5*time.Second, 10*time.Millisecond)

	srvComm := communicator.New(zerolog.Nop())
	t.Cleanup(srvComm.Stop)
	srv2 := NewServer(testConfig(addr), srvComm, codec.NewTextCodec(0), zerolog.Nop())
	require.NoError(t, srv2.Connect(context.Background()))
	in := inbox(t, srvComm)

	require.Eventually(t, func() bool { return cl.State() == transport.StateConnected }, 5*time.Second, 10*time.Millisecond)
	require.True(t, clComm.Send(sample(t)))
	assert.Equal(t, message.TypeText, receive(t, in).Type())
}

func TestClient_StopEndsLoops(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t)
	cl, clComm := startClient(t, srv.Addr().String())
	waitPeers(t, srv, 1)

	clComm.Stop()
	assert.Equal(t, transport.StateDisconnected, cl.State())
	assert.False(t, clComm.Send(sample(t)))
	assert.ErrorIs(t, clComm.LastError(), communicator.ErrStopped)

	waitPeers(t, srv, 0)
	assert.ErrorIs(t, cl.Connect(context.Background()), transport.ErrAlreadyConnected)
}

func TestClient_CloseBeforeConnect(t *testing.T) {
	t.Parallel()

	comm := communicator.New(zerolog.Nop())
	cl := NewClient(testConfig("127.0.0.1:1"), comm, codec.NewTextCodec(0), zerolog.Nop())
	assert.NoError(t, cl.Close())
	assert.Equal(t, transport.StateDisconnected, cl.State())
}
