package admin

import (
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/clusteradmin/internal/actor"
)

var (
	testNode = actor.NodeID{Name: "dev1", Addr: "127.0.0.1:2000"}
	testPid  = actor.Pid{Name: "admin_server", Node: testNode}
)

func newTestSession() *Session {
	return NewSession(testPid, 7, NewRouter(testNode))
}

// replyTo builds the envelope a backend would send back for env.
func replyTo(env actor.Envelope, msg any) actor.Envelope {
	return actor.Envelope{
		To:            env.From,
		From:          env.To,
		Msg:           msg,
		CorrelationID: env.CorrelationID,
	}
}

func emittedSeqs(t *testing.T, out []ToClient) []uint64 {
	t.Helper()
	res := make([]uint64, len(out))
	for i, o := range out {
		seq, ok := o.CorrelationID.Sequence()
		require.True(t, ok)
		res[i] = seq
	}
	return res
}

func TestSession_SubmitNumbersAndRoutes(t *testing.T) {
	s := newTestSession()
	replica := actor.Pid{Name: "r1", Group: "ns", Node: actor.NodeID{Name: "dev2"}}

	out := s.Submit(GetConfig{})
	assert.Equal(t, actor.RequestID(testPid, 7, 0), out.Envelope.CorrelationID)
	assert.Equal(t, NewRouter(testNode).NamespaceManager(), out.Envelope.To)
	assert.Equal(t, testPid, out.Envelope.From)
	assert.Equal(t, GetConfig{}, out.Envelope.Msg)

	out = s.Submit(GetReplicaState{Replica: replica})
	assert.Equal(t, actor.RequestID(testPid, 7, 1), out.Envelope.CorrelationID)
	assert.Equal(t, replica, out.Envelope.To)

	assert.Equal(t, uint64(2), s.Stats().Submitted)
}

func TestSession_ReverseArrivalTrace(t *testing.T) {
	s := newTestSession()

	envs := []actor.Envelope{
		s.Submit(GetConfig{}).Envelope,
		s.Submit(GetNamespaces{}).Envelope,
		s.Submit(GetClusterStatus{}).Envelope,
	}

	out, err := s.OnEnvelope(replyTo(envs[2], ErrorReply{Message: "two"}))
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = s.OnEnvelope(replyTo(envs[1], NamespacesReply{}))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 2, s.Stats().Buffered)

	out, err = s.OnEnvelope(replyTo(envs[0], OkReply{}))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2}, emittedSeqs(t, out))
	assert.Equal(t, OkReply{}, out[0].Reply)
	assert.Equal(t, NamespacesReply{}, out[1].Reply)
	assert.Equal(t, ErrorReply{Message: "two"}, out[2].Reply)
	for _, o := range out {
		conn, ok := o.CorrelationID.ConnectionID()
		assert.True(t, ok)
		assert.Equal(t, uint64(7), conn)
		assert.Equal(t, testPid, o.CorrelationID.Pid)
	}

	st := s.Stats()
	assert.Equal(t, uint64(3), st.Cursor)
	assert.Zero(t, st.InFlight())
}

// Resolving a sequence with a timeout instead of a backend reply leaves the
// output order unchanged.
func TestSession_TimeoutIsOrderedLikeAReply(t *testing.T) {
	s := newTestSession()

	envs := []actor.Envelope{
		s.Submit(GetConfig{}).Envelope,
		s.Submit(GetPrimary{Namespace: uuid.New()}).Envelope,
		s.Submit(GetMetrics{Service: testPid}).Envelope,
	}

	out, err := s.OnEnvelope(replyTo(envs[1], actor.Timeout{}))
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = s.OnEnvelope(replyTo(envs[0], ConfigReply{}))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, emittedSeqs(t, out))
	assert.Equal(t, TimeoutReply{}, out[1].Reply)

	out, err = s.OnEnvelope(replyTo(envs[2], actor.Timeout{}))
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, emittedSeqs(t, out))
	assert.Equal(t, TimeoutReply{}, out[0].Reply)
}

func TestSession_MalformedShortCircuit(t *testing.T) {
	s := newTestSession()

	env := s.Submit(GetConfig{}).Envelope

	out := s.OnMalformedClientMessage()
	assert.Equal(t, ErrorReply{Message: InvalidRequestMessage}, out.Reply)
	assert.Equal(t, actor.PidOnly(testPid), out.CorrelationID)

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Submitted)
	assert.Equal(t, uint64(0), st.Cursor)

	// The outstanding request is still released normally.
	rel, err := s.OnEnvelope(replyTo(env, OkReply{}))
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, emittedSeqs(t, rel))

	// The next request gets sequence 1, not 2.
	next := s.Submit(GetNamespaces{})
	seq, _ := next.Envelope.CorrelationID.Sequence()
	assert.Equal(t, uint64(1), seq)
}

func TestSession_HandleFrame(t *testing.T) {
	s := newTestSession()

	out := s.HandleFrame(Frame{Request: GetClusterStatus{}})
	tb, ok := out.(ToBackend)
	require.True(t, ok, "request frame should dispatch, got %T", out)
	assert.Equal(t, NewRouter(testNode).StatusServer(), tb.Envelope.To)

	out = s.HandleFrame(Frame{Reply: OkReply{}})
	tc, ok := out.(ToClient)
	require.True(t, ok, "reply frame should be rejected, got %T", out)
	assert.Equal(t, ErrorReply{Message: InvalidRequestMessage}, tc.Reply)

	assert.Equal(t, uint64(1), s.Stats().Submitted)
}

func TestSession_ContractViolations(t *testing.T) {
	other := actor.Pid{Name: "other", Node: testNode}

	tests := []struct {
		name  string
		setup func(t *testing.T, s *Session) actor.Envelope
	}{
		{
			name: "reply released twice",
			setup: func(t *testing.T, s *Session) actor.Envelope {
				env := s.Submit(GetConfig{}).Envelope
				_, err := s.OnEnvelope(replyTo(env, OkReply{}))
				require.NoError(t, err)
				return replyTo(env, OkReply{})
			},
		},
		{
			name: "reply buffered twice",
			setup: func(t *testing.T, s *Session) actor.Envelope {
				s.Submit(GetConfig{})
				env := s.Submit(GetConfig{}).Envelope
				_, err := s.OnEnvelope(replyTo(env, OkReply{}))
				require.NoError(t, err)
				return replyTo(env, OkReply{})
			},
		},
		{
			name: "undispatched sequence",
			setup: func(t *testing.T, s *Session) actor.Envelope {
				return actor.Envelope{Msg: OkReply{}, CorrelationID: actor.RequestID(testPid, 7, 0)}
			},
		},
		{
			name: "other connection",
			setup: func(t *testing.T, s *Session) actor.Envelope {
				s.Submit(GetConfig{})
				return actor.Envelope{Msg: OkReply{}, CorrelationID: actor.RequestID(testPid, 8, 0)}
			},
		},
		{
			name: "other pid",
			setup: func(t *testing.T, s *Session) actor.Envelope {
				s.Submit(GetConfig{})
				return actor.Envelope{Msg: OkReply{}, CorrelationID: actor.RequestID(other, 7, 0)}
			},
		},
		{
			name: "pid-only correlation",
			setup: func(t *testing.T, s *Session) actor.Envelope {
				s.Submit(GetConfig{})
				return actor.Envelope{Msg: OkReply{}, CorrelationID: actor.PidOnly(testPid)}
			},
		},
		{
			name: "unexpected payload",
			setup: func(t *testing.T, s *Session) actor.Envelope {
				env := s.Submit(GetConfig{}).Envelope
				return replyTo(env, GetConfig{})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession()
			env := tt.setup(t, s)
			out, err := s.OnEnvelope(env)
			require.ErrorIs(t, err, ErrContractViolation)
			assert.Nil(t, out)
		})
	}
}

// For any arrival order and any mix of replies and timeouts, the client sees
// every request answered exactly once in issuance order.
func TestSession_OrderPreservationProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	requests := []Request{
		GetConfig{},
		Join{Node: actor.NodeID{Name: "dev3", Addr: "127.0.0.1:4000"}},
		CreateNamespace{Replicas: []actor.Pid{testPid}},
		GetNamespaces{},
		GetReplicaState{Replica: testPid},
		GetPrimary{Namespace: uuid.New()},
		GetClusterStatus{},
		GetMetrics{Service: testPid},
	}

	for trial := 0; trial < 100; trial++ {
		s := newTestSession()
		n := 1 + rng.IntN(30)

		envs := make([]actor.Envelope, n)
		for i := range envs {
			envs[i] = s.Submit(requests[rng.IntN(len(requests))]).Envelope
		}

		var got []uint64
		for _, i := range rng.Perm(n) {
			var msg any = OkReply{}
			if rng.IntN(3) == 0 {
				msg = actor.Timeout{}
			}
			out, err := s.OnEnvelope(replyTo(envs[i], msg))
			require.NoError(t, err)
			got = append(got, emittedSeqs(t, out)...)

			st := s.Stats()
			require.LessOrEqual(t, uint64(st.Buffered), st.Submitted-st.Cursor)
		}

		want := make([]uint64, n)
		for i := range want {
			want[i] = uint64(i)
		}
		require.Equal(t, want, got)
	}
}
