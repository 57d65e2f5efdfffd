package externalpool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

// newLoopbackServer wires a Server's stdin/stdout through in-memory
// pipes so the JSON-RPC framing and pending-request multiplexing can be
// exercised without spawning a real child process.
func newLoopbackServer() (*Server, *bufio.Reader, io.WriteCloser) {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	srv := &Server{
		spec:    ServerSpec{Name: "fake"},
		stdin:   stdinW,
		pending: make(map[uint64]chan pendingCall),
		closed:  make(chan struct{}),
	}
	go srv.readLoop(stdoutR)

	return srv, bufio.NewReader(stdinR), stdoutW
}

func writeFrame(w io.Writer, payload []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func TestServerCallRoundTrip(t *testing.T) {
	srv, requestsIn, responsesOut := newLoopbackServer()
	defer srv.Close()

	resultCh := make(chan json.RawMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		res, err := srv.call(ctx, "tools/list", map[string]any{})
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()

	frame, err := readFrame(requestsIn)
	if err != nil {
		t.Fatalf("failed to read request frame: %v", err)
	}
	var req rpcRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		t.Fatalf("failed to parse request: %v", err)
	}
	if req.Method != "tools/list" {
		t.Fatalf("expected tools/list, got %q", req.Method)
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"tools":[{"name":"echo"}]}`)}
	data, _ := json.Marshal(resp)
	if err := writeFrame(responsesOut, data); err != nil {
		t.Fatalf("failed to write response frame: %v", err)
	}

	select {
	case res := <-resultCh:
		if !strings.Contains(string(res), "echo") {
			t.Fatalf("unexpected result: %s", res)
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for call to resolve")
	}
}

func TestServerCallPropagatesRPCError(t *testing.T) {
	srv, requestsIn, responsesOut := newLoopbackServer()
	defer srv.Close()

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := srv.call(ctx, "tools/call", map[string]any{"name": "missing"})
		errCh <- err
	}()

	frame, err := readFrame(requestsIn)
	if err != nil {
		t.Fatalf("failed to read request frame: %v", err)
	}
	var req rpcRequest
	json.Unmarshal(frame, &req)

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "unknown tool"}}
	data, _ := json.Marshal(resp)
	writeFrame(responsesOut, data)

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "unknown tool") {
			t.Fatalf("expected rpc error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for call to resolve")
	}
}

func TestReadFrameParsesContentLength(t *testing.T) {
	raw := "Content-Length: 13\r\n\r\n" + `{"id":"abc"}` + "x"
	reader := bufio.NewReader(strings.NewReader(raw))
	frame, err := readFrame(reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(frame) != `{"id":"abc"}`+"x" {
		t.Fatalf("unexpected frame: %q", frame)
	}
}

func TestPoolAcquireUnknownServer(t *testing.T) {
	p := New()
	if _, ok := p.Acquire("nope"); ok {
		t.Fatal("expected Acquire to fail for unknown server")
	}
}

func TestPoolStatusEmpty(t *testing.T) {
	p := New()
	if len(p.Status()) != 0 {
		t.Fatal("expected empty pool to report no statuses")
	}
}
