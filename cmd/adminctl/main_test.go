package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/clusteradmin/internal/actor"
	"github.com/rickgao/clusteradmin/internal/admin"
	"github.com/rickgao/clusteradmin/internal/connection"
)

func TestParseCommands(t *testing.T) {
	nsID := uuid.MustParse("6f1c1e52-3f0a-4b59-9d7e-0a8a1c2b3d4e")
	replica := actor.Pid{Group: "ns", Name: "r1", Node: actor.NodeID{Name: "node1"}}

	tests := []struct {
		name    string
		args    []string
		want    []admin.Request
		wantErr bool
	}{
		{
			name: "single command",
			args: []string{"config"},
			want: []admin.Request{admin.GetConfig{}},
		},
		{
			name: "pipelined commands",
			args: []string{"status", "--", "namespaces", "--", "primary", nsID.String()},
			want: []admin.Request{admin.GetClusterStatus{}, admin.GetNamespaces{}, admin.GetPrimary{Namespace: nsID}},
		},
		{
			name: "join with address",
			args: []string{"join", "node2@10.0.0.2:9000"},
			want: []admin.Request{admin.Join{Node: actor.NodeID{Name: "node2", Addr: "10.0.0.2:9000"}}},
		},
		{
			name: "replica pid",
			args: []string{"replica", "ns::r1::node1"},
			want: []admin.Request{admin.GetReplicaState{Replica: replica}},
		},
		{
			name: "empty segments ignored",
			args: []string{"--", "config", "--", "--"},
			want: []admin.Request{admin.GetConfig{}},
		},
		{name: "no args", args: nil, wantErr: true},
		{name: "only separators", args: []string{"--"}, wantErr: true},
		{name: "unknown command", args: []string{"frobnicate"}, wantErr: true},
		{name: "extra argument", args: []string{"config", "x"}, wantErr: true},
		{name: "missing argument", args: []string{"join"}, wantErr: true},
		{name: "bad uuid", args: []string{"primary", "not-a-uuid"}, wantErr: true},
		{name: "bad pid", args: []string{"metrics", "nonode"}, wantErr: true},
		{name: "create-namespace without replicas", args: []string{"create-namespace"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommands(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseCommands(%q) = %v, want error", tt.args, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCommands(%q) failed: %v", tt.args, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d requests, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("request %d = %#v, want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseCommands_CreateNamespace(t *testing.T) {
	got, err := parseCommands([]string{"create-namespace", "ns::r1::node1", "ns::r2::node2@10.0.0.2:9000"})
	if err != nil {
		t.Fatalf("parseCommands failed: %v", err)
	}
	cn, ok := got[0].(admin.CreateNamespace)
	if !ok {
		t.Fatalf("request = %T, want CreateNamespace", got[0])
	}
	if len(cn.Replicas) != 2 || cn.Replicas[1].Node.Addr != "10.0.0.2:9000" {
		t.Errorf("replicas = %+v", cn.Replicas)
	}
}

// fakeClient answers each request with the next scripted reply.
type fakeClient struct {
	replies chan connection.ReplyFrame
	errors  chan error
	script  []admin.Reply
	sent    []admin.Request
}

func newFakeClient(script ...admin.Reply) *fakeClient {
	return &fakeClient{
		replies: make(chan connection.ReplyFrame, len(script)),
		errors:  make(chan error, 1),
		script:  script,
	}
}

func (c *fakeClient) Connect(context.Context) error { return nil }
func (c *fakeClient) Close() error                  { return nil }
func (c *fakeClient) IsConnected() bool             { return true }

func (c *fakeClient) SendRequest(req admin.Request) error {
	seq := uint64(len(c.sent))
	c.sent = append(c.sent, req)
	if int(seq) < len(c.script) {
		owner := actor.Pid{Name: connection.OwnerName, Node: actor.NodeID{Name: "node1"}}
		cid := actor.RequestID(owner, 1, seq)
		c.replies <- connection.ReplyFrame{Reply: c.script[seq], CorrelationID: &cid, ReceivedAt: time.Now()}
	}
	return nil
}

func (c *fakeClient) Replies() <-chan connection.ReplyFrame { return c.replies }
func (c *fakeClient) Errors() <-chan error                  { return c.errors }

func TestExecute(t *testing.T) {
	reqs := []admin.Request{admin.GetConfig{}, admin.GetClusterStatus{}}

	t.Run("all ok", func(t *testing.T) {
		client := newFakeClient(admin.OkReply{}, admin.OkReply{})
		var out bytes.Buffer

		if err := execute(context.Background(), client, reqs, &out); err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("printed %d lines, want 2: %q", len(lines), out.String())
		}
		if !strings.Contains(lines[0], `"request":0`) || !strings.Contains(lines[1], `"request":1`) {
			t.Errorf("replies out of order: %q", out.String())
		}
	})

	t.Run("timeout fails", func(t *testing.T) {
		client := newFakeClient(admin.OkReply{}, admin.TimeoutReply{})
		var out bytes.Buffer

		err := execute(context.Background(), client, reqs, &out)
		if !errors.Is(err, errFailedReply) {
			t.Errorf("err = %v, want errFailedReply", err)
		}
		if strings.Count(out.String(), "\n") != 2 {
			t.Errorf("every reply should still be printed: %q", out.String())
		}
	})

	t.Run("connection lost", func(t *testing.T) {
		client := newFakeClient(admin.OkReply{})
		client.errors <- connection.ErrStaleConnection

		err := execute(context.Background(), client, reqs, &bytes.Buffer{})
		if !errors.Is(err, connection.ErrStaleConnection) {
			t.Errorf("err = %v, want ErrStaleConnection", err)
		}
	})

	t.Run("deadline", func(t *testing.T) {
		client := newFakeClient()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := execute(ctx, client, reqs, &bytes.Buffer{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want DeadlineExceeded", err)
		}
	})
}
