package realtime

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lalith-99/strangersmeet/internal/apperr"
	"github.com/stretchr/testify/require"
)

// fakeSocket stands in for a client. Frames pushed with deliver come out of
// ReadMessage; whatever the server sends is kept for inspection.
type fakeSocket struct {
	inbound chan []byte
	gone    chan struct{}
	closed  chan struct{}

	mu          sync.Mutex
	sent        [][]byte
	failSend    bool
	closeCode   int
	closeReason string
	closeOnce   sync.Once
	goneOnce    sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbound: make(chan []byte, 16),
		gone:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (f *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case <-f.closed:
		return nil, io.EOF
	case <-f.gone:
		return nil, io.ErrUnexpectedEOF
	case b := <-f.inbound:
		return b, nil
	}
}

func (f *fakeSocket) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return fmt.Errorf("send queue full: %w", apperr.ErrTransportFailure)
	}
	select {
	case <-f.closed:
		return fmt.Errorf("socket closed: %w", apperr.ErrTransportFailure)
	default:
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeSocket) Close(code int, reason string) {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.closeReason = reason
		f.mu.Unlock()
		close(f.closed)
	})
}

func (f *fakeSocket) deliver(t *testing.T, frame any) {
	t.Helper()
	b, ok := frame.([]byte)
	if !ok {
		var err error
		b, err = json.Marshal(frame)
		require.NoError(t, err)
	}
	f.inbound <- b
}

// drop simulates the peer vanishing without a close handshake.
func (f *fakeSocket) drop() {
	f.goneOnce.Do(func() { close(f.gone) })
}

func (f *fakeSocket) setFailSend(v bool) {
	f.mu.Lock()
	f.failSend = v
	f.mu.Unlock()
}

func (f *fakeSocket) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeSocket) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

// received decodes everything sent so far.
func (f *fakeSocket) received(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent))
	for _, b := range f.sent {
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			t.Errorf("server sent invalid json %q: %v", b, err)
			continue
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeSocket) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range f.received(t) {
		out = append(out, m["type"].(string))
	}
	return out
}

// waitFor blocks until an envelope of typ arrives and returns the first one.
func (f *fakeSocket) waitFor(t *testing.T, typ string) map[string]any {
	t.Helper()
	var found map[string]any
	require.Eventually(t, func() bool {
		for _, m := range f.received(t) {
			if m["type"] == typ {
				found = m
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no %s envelope", typ)
	return found
}
