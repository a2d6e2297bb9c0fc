// Command adminctl sends admin requests to an admind instance and prints the
// replies in request order.
//
// Usage:
//
//	adminctl [flags] <command> [args] [-- <command> [args]]...
//
// Commands:
//
//	config                      node configuration
//	namespaces                  all namespaces
//	status                      cluster status
//	join <node>@<addr>          join a node to the cluster
//	create-namespace <pid>...   create a namespace over the given replicas
//	replica <pid>               state of one replica
//	primary <namespace-uuid>    primary of a namespace
//	metrics <pid>               metrics of a service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/clusteradmin/internal/actor"
	"github.com/rickgao/clusteradmin/internal/admin"
	"github.com/rickgao/clusteradmin/internal/auth"
	"github.com/rickgao/clusteradmin/internal/connection"
	"github.com/rickgao/clusteradmin/internal/version"
)

// errFailedReply reports that at least one reply was an error or timeout.
var errFailedReply = errors.New("one or more requests failed")

func main() {
	url := flag.String("url", "ws://127.0.0.1:8443/admin", "admind WebSocket URL")
	keyID := flag.String("key-id", "", "key id for signed requests")
	privateKey := flag.String("private-key", "", "RSA private key PEM for signed requests")
	timeout := flag.Duration("timeout", 30*time.Second, "overall time to wait for replies")
	verbose := flag.Bool("v", false, "debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	reqs, err := parseCommands(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg := connection.DefaultClientConfig()
	cfg.URL = *url
	if *keyID != "" || *privateKey != "" {
		creds, err := auth.LoadCredentials(*keyID, *privateKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg.Credentials = creds
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := connection.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Close()

	if err := execute(ctx, client, reqs, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		client.Close()
		os.Exit(1)
	}
}

// execute pipelines reqs over client and prints one JSON line per reply.
func execute(ctx context.Context, client connection.Client, reqs []admin.Request, out io.Writer) error {
	for _, req := range reqs {
		if err := client.SendRequest(req); err != nil {
			return fmt.Errorf("send %s: %w", req.Kind(), err)
		}
	}

	failed := false
	for i := range reqs {
		select {
		case rf := <-client.Replies():
			data, err := admin.EncodeFrame(admin.Frame{Reply: rf.Reply, CorrelationID: rf.CorrelationID})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))

			switch rf.Reply.(type) {
			case admin.ErrorReply, admin.TimeoutReply:
				failed = true
			}
		case err := <-client.Errors():
			return fmt.Errorf("connection lost after %d of %d replies: %w", i, len(reqs), err)
		case <-ctx.Done():
			return fmt.Errorf("waiting for reply %d of %d: %w", i+1, len(reqs), ctx.Err())
		}
	}

	if failed {
		return errFailedReply
	}
	return nil
}

// parseCommands turns "--"-separated command lines into requests.
func parseCommands(args []string) ([]admin.Request, error) {
	if len(args) == 0 {
		return nil, errors.New("no command given")
	}

	var reqs []admin.Request
	start := 0
	for i := 0; i <= len(args); i++ {
		if i < len(args) && args[i] != "--" {
			continue
		}
		if i > start {
			req, err := parseCommand(args[start], args[start+1:i])
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, req)
		}
		start = i + 1
	}

	if len(reqs) == 0 {
		return nil, errors.New("no command given")
	}
	return reqs, nil
}

func parseCommand(name string, args []string) (admin.Request, error) {
	want := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s: expected %d argument(s), got %d", name, n, len(args))
		}
		return nil
	}

	switch name {
	case "config":
		return admin.GetConfig{}, want(0)
	case "namespaces":
		return admin.GetNamespaces{}, want(0)
	case "status":
		return admin.GetClusterStatus{}, want(0)

	case "join":
		if err := want(1); err != nil {
			return nil, err
		}
		node, err := actor.ParseNodeID(args[0])
		if err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
		return admin.Join{Node: node}, nil

	case "create-namespace":
		if len(args) == 0 {
			return nil, errors.New("create-namespace: at least one replica required")
		}
		replicas := make([]actor.Pid, 0, len(args))
		for _, a := range args {
			pid, err := actor.ParsePid(a)
			if err != nil {
				return nil, fmt.Errorf("create-namespace: %w", err)
			}
			replicas = append(replicas, pid)
		}
		return admin.CreateNamespace{Replicas: replicas}, nil

	case "replica":
		if err := want(1); err != nil {
			return nil, err
		}
		pid, err := actor.ParsePid(args[0])
		if err != nil {
			return nil, fmt.Errorf("replica: %w", err)
		}
		return admin.GetReplicaState{Replica: pid}, nil

	case "primary":
		if err := want(1); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return nil, fmt.Errorf("primary: %w", err)
		}
		return admin.GetPrimary{Namespace: id}, nil

	case "metrics":
		if err := want(1); err != nil {
			return nil, err
		}
		pid, err := actor.ParsePid(args[0])
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		return admin.GetMetrics{Service: pid}, nil
	}

	return nil, fmt.Errorf("unknown command %q", name)
}
