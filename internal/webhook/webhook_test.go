package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type capture struct {
	mu        sync.Mutex
	bodies    [][]byte
	signature string
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.signature = r.Header.Get("X-Signature")
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func TestDispatchDeliversSignedEvent(t *testing.T) {
	cap := &capture{}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	d := NewDispatcher([]string{srv.URL}, "topsecret", zerolog.Nop())
	d.Start()
	d.Dispatch(Event{
		Type:        EventConfigPublished,
		Timestamp:   time.Now().UTC(),
		Environment: "prod",
		Version:     7,
		Experiments: 3,
	})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cap.mu.Lock()
	defer cap.mu.Unlock()
	if len(cap.bodies) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(cap.bodies))
	}
	var got Event
	if err := json.Unmarshal(cap.bodies[0], &got); err != nil {
		t.Fatalf("decode delivery: %v", err)
	}
	if got.Type != EventConfigPublished || got.Environment != "prod" || got.Version != 7 {
		t.Fatalf("event = %+v", got)
	}
	if !VerifySignature(cap.bodies[0], cap.signature, "topsecret") {
		t.Fatalf("signature %q does not verify", cap.signature)
	}
	if VerifySignature(cap.bodies[0], cap.signature, "wrong") {
		t.Fatal("signature verified with wrong secret")
	}
}

func TestDispatchRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]string{srv.URL}, "", zerolog.Nop())
	d.Start()
	d.Dispatch(Event{Type: EventConfigPublished, Environment: "prod", Version: 1})
	_ = d.Close()

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestDispatchRacingCloseDoesNotPanic(t *testing.T) {
	d := NewDispatcher(nil, "", zerolog.Nop())
	d.Start()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				d.Dispatch(Event{Type: EventConfigPublished, Environment: "prod", Version: j})
			}
		}()
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(nil, "", zerolog.Nop())
	d.Start()
	if err := d.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	// Dispatch after close must not panic on the closed channel.
	d.Dispatch(Event{Type: EventConfigPublished})
}
