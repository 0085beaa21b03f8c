package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"forge/internal/orchestrator"
	"forge/internal/snapshot"
)

func connect(t *testing.T, s Session) (*mcp.ClientSession, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	server := New(s, "test", log.New(io.Discard, "", 0))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- RunWithTransport(ctx, server, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	clientCtx, clientCancel := context.WithTimeout(context.Background(), time.Second)
	defer clientCancel()

	type connectResult struct {
		session *mcp.ClientSession
		err     error
	}
	connectDone := make(chan connectResult, 1)
	go func() {
		session, err := client.Connect(clientCtx, clientTransport, nil)
		connectDone <- connectResult{session: session, err: err}
	}()

	var session *mcp.ClientSession
	select {
	case result := <-connectDone:
		if result.err != nil {
			cancel()
			t.Fatalf("connect client: %v", result.err)
		}
		session = result.session
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("timed out connecting client")
	}

	return session, func() {
		_ = session.Close()
		cancel()
		select {
		case err := <-serveErr:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	}
}

func newSession(t *testing.T) *orchestrator.Session {
	t.Helper()
	o := orchestrator.New(orchestrator.Options{Logger: log.New(io.Discard, "", 0)})
	s, err := o.InitSession("The Hollow Bell")
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	return s
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content=%+v", res.Content)
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", res.Content[0])
	}
	return tc.Text
}

func TestListToolsMirrorsRegistry(t *testing.T) {
	s := newSession(t)
	client, stop := connect(t, s)
	defer stop()

	res, err := client.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(res.Tools) != len(s.Registry().Names()) {
		t.Fatalf("tools=%d, want %d", len(res.Tools), len(s.Registry().Names()))
	}
	seen := map[string]bool{}
	for _, tool := range res.Tools {
		seen[tool.Name] = true
	}
	for _, name := range []string{"get_state", "set_dial", "generate_frames", "confirm_echo"} {
		if !seen[name] {
			t.Fatalf("missing tool %s", name)
		}
	}
}

func TestCallToolMutatesSession(t *testing.T) {
	s := newSession(t)
	client, stop := connect(t, s)
	defer stop()
	ctx := context.Background()

	res, err := client.CallTool(ctx, &mcp.CallToolParams{
		Name:      "set_dial",
		Arguments: map[string]any{"dial": "partySize", "value": 5},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(t, res))
	}
	if got := s.View().Dials.PartySize; got != 5 {
		t.Fatalf("partySize=%d", got)
	}

	res, err = client.CallTool(ctx, &mcp.CallToolParams{
		Name:      "set_dial",
		Arguments: map[string]any{"dial": "partySize", "value": 42},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("out of range value was accepted")
	}
	var failure struct {
		OK   bool   `json:"ok"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &failure); err != nil {
		t.Fatal(err)
	}
	if failure.OK || failure.Code != "VALIDATION" {
		t.Fatalf("failure=%+v", failure)
	}
	if got := s.View().Dials.PartySize; got != 5 {
		t.Fatalf("rejected call changed partySize to %d", got)
	}
}

func TestReadSnapshotResource(t *testing.T) {
	s := newSession(t)
	client, stop := connect(t, s)
	defer stop()

	res, err := client.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: SnapshotURI(s.ID())})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(res.Contents) != 1 || !strings.Contains(res.Contents[0].Text, s.ID()) {
		t.Fatalf("contents=%+v", res.Contents)
	}
	snap, err := snapshot.Decode([]byte(res.Contents[0].Text))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.AdventureName != "The Hollow Bell" {
		t.Fatalf("name=%q", snap.AdventureName)
	}
}
