package admin

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rickgao/clusteradmin/internal/actor"
)

func TestDecodeFrame_Requests(t *testing.T) {
	ns := uuid.MustParse("5b4a3c2d-1e0f-4a9b-8c7d-6e5f4a3b2c1d")

	tests := []struct {
		name string
		data string
		want Request
	}{
		{
			name: "get_config",
			data: `{"type":"req","req":{"kind":"get_config"}}`,
			want: GetConfig{},
		},
		{
			name: "get_primary",
			data: `{"type":"req","req":{"kind":"get_primary","namespace":"5b4a3c2d-1e0f-4a9b-8c7d-6e5f4a3b2c1d"}}`,
			want: GetPrimary{Namespace: ns},
		},
		{
			name: "get_replica_state",
			data: `{"type":"req","req":{"kind":"get_replica_state","replica":{"name":"r1","group":"ns","node":{"name":"dev2","addr":"127.0.0.1:3000"}}}}`,
			want: GetReplicaState{Replica: actor.Pid{Name: "r1", Group: "ns", Node: actor.NodeID{Name: "dev2", Addr: "127.0.0.1:3000"}}},
		},
		{
			name: "join",
			data: `{"type":"req","req":{"kind":"join","node":{"name":"dev3","addr":"127.0.0.1:4000"}}}`,
			want: Join{Node: actor.NodeID{Name: "dev3", Addr: "127.0.0.1:4000"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame([]byte(tt.data))
			if err != nil {
				t.Fatalf("DecodeFrame failed: %v", err)
			}
			if f.Reply != nil {
				t.Errorf("Reply = %v, want nil", f.Reply)
			}
			if f.Request == nil || f.Request.Kind() != tt.want.Kind() {
				t.Fatalf("Request = %#v, want %#v", f.Request, tt.want)
			}
			// CreateNamespace holds a slice; the others are comparable.
			if f.Request != tt.want {
				t.Errorf("Request = %#v, want %#v", f.Request, tt.want)
			}
		})
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `hello`},
		{name: "unknown type", data: `{"type":"bogus"}`},
		{name: "missing req", data: `{"type":"req"}`},
		{name: "unknown kind", data: `{"type":"req","req":{"kind":"drop_table"}}`},
		{name: "replica state without replica", data: `{"type":"req","req":{"kind":"get_replica_state"}}`},
		{name: "primary with bad uuid", data: `{"type":"req","req":{"kind":"get_primary","namespace":"nope"}}`},
		{name: "join without node", data: `{"type":"req","req":{"kind":"join"}}`},
		{name: "metrics without service", data: `{"type":"req","req":{"kind":"get_metrics"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.data))
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("DecodeFrame(%s) error = %v, want ErrMalformedFrame", tt.data, err)
			}
		})
	}
}

func TestEncodeFrame_Reply(t *testing.T) {
	pid := actor.Pid{Name: "admin_server", Node: actor.NodeID{Name: "dev1"}}
	cid := actor.RequestID(pid, 1, 4)

	data, err := EncodeFrame(Frame{Reply: PrimaryReply{}, CorrelationID: &cid})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["type"]) != `"rpy"` {
		t.Errorf("type = %s, want \"rpy\"", raw["type"])
	}
	if string(raw["rpy"]) != `{"kind":"primary"}` {
		t.Errorf("rpy = %s, want {\"kind\":\"primary\"}", raw["rpy"])
	}
	if !strings.Contains(string(raw["correlation_id"]), `"connection":1,"request":4`) {
		t.Errorf("correlation_id = %s", raw["correlation_id"])
	}

	f, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	got, ok := f.Reply.(PrimaryReply)
	if !ok || got.Primary != nil {
		t.Errorf("Reply = %#v, want PrimaryReply with no primary", f.Reply)
	}
	if seq, _ := f.CorrelationID.Sequence(); seq != 4 {
		t.Errorf("sequence = %d, want 4", seq)
	}
}

func TestEncodeFrame_RequiresExactlyOne(t *testing.T) {
	if _, err := EncodeFrame(Frame{}); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("empty frame error = %v, want ErrMalformedFrame", err)
	}
	if _, err := EncodeFrame(Frame{Request: GetConfig{}, Reply: OkReply{}}); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("double frame error = %v, want ErrMalformedFrame", err)
	}
}

func TestWireCodec(t *testing.T) {
	var c WireCodec

	data, err := c.MarshalMsg(actor.Timeout{})
	if err != nil {
		t.Fatalf("MarshalMsg(Timeout) failed: %v", err)
	}
	msg, err := c.UnmarshalMsg(data)
	if err != nil {
		t.Fatalf("UnmarshalMsg failed: %v", err)
	}
	if _, ok := msg.(actor.Timeout); !ok {
		t.Errorf("decoded %T, want actor.Timeout", msg)
	}

	data, err = c.MarshalMsg(MetricsReply{Metrics: []NamedMetric{
		{Name: "requests", Value: json.RawMessage(`{"counter":12}`)},
		{Name: "latency", Value: json.RawMessage(`{"gauge":3}`)},
	}})
	if err != nil {
		t.Fatalf("MarshalMsg(MetricsReply) failed: %v", err)
	}
	msg, err = c.UnmarshalMsg(data)
	if err != nil {
		t.Fatalf("UnmarshalMsg failed: %v", err)
	}
	mr, ok := msg.(MetricsReply)
	if !ok || len(mr.Metrics) != 2 || mr.Metrics[0].Name != "requests" || mr.Metrics[1].Name != "latency" {
		t.Errorf("decoded %#v, want metrics in reported order", msg)
	}

	if _, err := c.MarshalMsg(42); err == nil {
		t.Error("MarshalMsg(int) should fail")
	}
}
