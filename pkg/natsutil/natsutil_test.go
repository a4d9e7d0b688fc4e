package natsutil

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := Connect(srv.ClientURL(), "archiver-test", quiet)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestNatsHeaderCarrierNilHeader(t *testing.T) {
	carrier := (*natsHeaderCarrier)(&nats.Msg{})
	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestPublishArchivedEvent(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("archiver.posts.archived", ch)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	ev := ArchivedEvent{PostID: "abc123", Path: "downloads/x.json", Format: "json", Comments: 3, Stubs: 2, Omitted: 5, ArchivedAt: at}
	if err := Publish(context.Background(), nc, "archiver.posts.archived", ev); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		var got ArchivedEvent
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got.PostID != "abc123" || got.Comments != 3 || got.Stubs != 2 || !got.ArchivedAt.Equal(at) {
			t.Fatalf("unexpected event: %+v", got)
		}
		var raw map[string]any
		json.Unmarshal(msg.Data, &raw)
		if _, ok := raw["postId"]; !ok {
			t.Fatalf("expected postId key, got %s", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishPropagatesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	_, nc := startTestNATS(t)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	got := make(chan trace.SpanContext, 1)
	sub, err := Subscribe(nc, "test.trace", func(ctx context.Context, ev ArchivedEvent) {
		got <- trace.SpanContextFromContext(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := Publish(ctx, nc, "test.trace", ArchivedEvent{PostID: "p1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case remote := <-got:
		if remote.TraceID() != traceID {
			t.Fatalf("expected trace %s, got %s", traceID, remote.TraceID())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscribeDropsMalformed(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan ArchivedEvent, 2)
	sub, err := Subscribe(nc, "test.bad", func(ctx context.Context, ev ArchivedEvent) {
		ch <- ev
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	nc.Publish("test.bad", []byte("not json"))
	Publish(context.Background(), nc, "test.bad", ArchivedEvent{PostID: "ok"})

	select {
	case ev := <-ch:
		if ev.PostID != "ok" {
			t.Fatalf("expected only the valid event, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishClosedConn(t *testing.T) {
	_, nc := startTestNATS(t)
	nc.Close()
	if err := Publish(context.Background(), nc, "test.closed", ArchivedEvent{}); err == nil {
		t.Fatal("expected error on closed connection")
	}
}

func TestConnectUnreachable(t *testing.T) {
	if _, err := Connect("nats://127.0.0.1:1", "archiver-test", quiet); err == nil {
		t.Fatal("expected connect error")
	}
}
