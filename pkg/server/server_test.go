package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/purecast-io/purecast/pkg/audio/enhance"
	"github.com/purecast-io/purecast/pkg/audio/pcm"
	"github.com/purecast-io/purecast/pkg/kv"
	"github.com/purecast-io/purecast/pkg/recordings"
	"github.com/purecast-io/purecast/pkg/storage"
	"github.com/purecast-io/purecast/pkg/stream"
	rtc "github.com/purecast-io/purecast/pkg/transport/webrtc"
)

type fakeBroadcastPeer struct {
	sink   rtc.Ingestor
	onDown func(string)

	mu     sync.Mutex
	closed bool
}

func (p *fakeBroadcastPeer) Answer(offer string) (string, error) {
	return "answer:" + offer, nil
}

func (p *fakeBroadcastPeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakeBroadcastPeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeListenerPeer struct {
	answerErr error

	mu      sync.Mutex
	samples []int16
	closed  bool
}

func (p *fakeListenerPeer) SendFrame(frame []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return rtc.ErrPeerClosed
	}
	p.samples = append(p.samples, frame...)
	return nil
}

func (p *fakeListenerPeer) Answer(offer string) (string, error) {
	if p.answerErr != nil {
		return "", p.answerErr
	}
	return "answer:" + offer, nil
}

func (p *fakeListenerPeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakeListenerPeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakeListenerPeer) received() []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int16, len(p.samples))
	copy(out, p.samples)
	return out
}

type fakeTransport struct {
	mu                sync.Mutex
	listenerAnswerErr error
	broadcasters      []*fakeBroadcastPeer
	listeners         []*fakeListenerPeer
}

func (f *fakeTransport) NewBroadcaster(owner string, sink rtc.Ingestor, onDown func(string)) (BroadcastPeer, error) {
	p := &fakeBroadcastPeer{sink: sink, onDown: onDown}
	f.mu.Lock()
	f.broadcasters = append(f.broadcasters, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeTransport) NewListener(owner, id string, onDown func()) (ListenerPeer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakeListenerPeer{answerErr: f.listenerAnswerErr}
	f.listeners = append(f.listeners, p)
	return p, nil
}

func (f *fakeTransport) broadcaster(t *testing.T, i int) *fakeBroadcastPeer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.broadcasters) {
		t.Fatalf("no broadcaster peer %d (have %d)", i, len(f.broadcasters))
	}
	return f.broadcasters[i]
}

func (f *fakeTransport) listener(t *testing.T, i int) *fakeListenerPeer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.listeners) {
		t.Fatalf("no listener peer %d (have %d)", i, len(f.listeners))
	}
	return f.listeners[i]
}

type testEnv struct {
	srv       *Server
	ts        *httptest.Server
	transport *fakeTransport
	registry  *stream.Registry
	store     *recordings.Store
}

func testPipeline() Pipeline {
	return Pipeline{
		ModelRate:     48000,
		ChunkFrames:   8,
		OverlapFrames: 2,
		FrameSamples:  4,
		Enhancer:      enhance.KindBypass,
		Denoise:       true,
		ReadyTimeout:  150 * time.Millisecond,
		FlushTimeout:  time.Second,
		IngestQueue:   16,
		ListenerQueue: 50,
	}
}

func newTestEnv(t *testing.T, p Pipeline) *testEnv {
	t.Helper()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	env := &testEnv{
		transport: &fakeTransport{},
		registry:  stream.NewRegistry(),
		store:     recordings.NewStore(kv.NewMemory(), files),
	}
	env.srv = New(Options{
		Registry:   env.registry,
		Recordings: env.store,
		Transport:  env.transport,
		Pipeline:   p,
		LogTail:    NewLogTail(32),
	})
	env.ts = httptest.NewServer(env.srv.Handler())
	t.Cleanup(func() {
		env.ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		env.registry.Close(ctx)
	})
	return env
}

// doJSON sends a request with an optional JSON body and decodes the JSON
// response into out when non-nil.
func doJSON(t *testing.T, method, url string, body, out any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, testPipeline())
	var body map[string]string
	resp := doJSON(t, http.MethodGet, env.ts.URL+"/healthz", nil, &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v, want status ok", body)
	}
}

func TestBroadcastOffer(t *testing.T) {
	env := newTestEnv(t, testPipeline())

	var got offerResponse
	resp := doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "offer-sdp", Title: "Morning show"}, &got)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if got.SDP != "answer:offer-sdp" {
		t.Fatalf("sdp = %q, want answered offer", got.SDP)
	}
	if got.SessionID == "" {
		t.Fatal("session_id missing")
	}

	sess, ok := env.registry.Get("alice")
	if !ok {
		t.Fatal("session not registered")
	}
	if sess.ID() != got.SessionID {
		t.Fatalf("registry session = %s, response = %s", sess.ID(), got.SessionID)
	}
	if sess.Title() != "Morning show" {
		t.Fatalf("title = %q", sess.Title())
	}
	if env.transport.broadcaster(t, 0).sink == nil {
		t.Fatal("broadcast peer has no ingest sink")
	}

	var status statusResponse
	doJSON(t, http.MethodGet, env.ts.URL+"/api/streams/alice", nil, &status)
	if !status.Streaming || status.Session == nil {
		t.Fatalf("status = %+v, want streaming with session", status)
	}

	var list struct {
		Streams []stream.Info `json:"streams"`
	}
	doJSON(t, http.MethodGet, env.ts.URL+"/api/streams", nil, &list)
	if len(list.Streams) != 1 || list.Streams[0].Owner != "alice" {
		t.Fatalf("streams = %+v, want alice only", list.Streams)
	}
}

func TestBroadcastOfferRequiresSDP(t *testing.T) {
	env := newTestEnv(t, testPipeline())
	var body map[string]string
	resp := doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{Title: "no sdp"}, &body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] == "" {
		t.Fatal("error message missing")
	}
}

func TestBroadcastDenoiseOverride(t *testing.T) {
	// Server default wants the model; the request turns it off. The
	// session must come up in bypass without ever touching the model.
	p := testPipeline()
	p.Enhancer = enhance.KindRNNoise
	env := newTestEnv(t, p)

	off := false
	var got offerResponse
	resp := doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "offer", Denoise: &off}, &got)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	sess, ok := env.registry.Get("alice")
	if !ok {
		t.Fatal("session not registered")
	}
	if sess.Info().Denoise {
		t.Fatal("session denoising, want bypass")
	}
}

func TestBroadcastReplacesPreviousSession(t *testing.T) {
	env := newTestEnv(t, testPipeline())

	var first offerResponse
	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "one"}, &first)
	var second offerResponse
	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "two"}, &second)

	if first.SessionID == second.SessionID {
		t.Fatal("second offer reused the first session")
	}
	sess, ok := env.registry.Get("alice")
	if !ok || sess.ID() != second.SessionID {
		t.Fatalf("registry owner slot = %v, want second session", sess)
	}
	// The replaced session flushes in the background and its peer is
	// released when it finishes.
	waitUntil(t, "first peer closed", env.transport.broadcaster(t, 0).isClosed)
	if env.transport.broadcaster(t, 1).isClosed() {
		t.Fatal("live session's peer was closed")
	}
}

func TestListenReceivesAudio(t *testing.T) {
	env := newTestEnv(t, testPipeline())

	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "offer"}, nil)
	peer := env.transport.broadcaster(t, 0)

	// First block is shorter than a chunk so nothing is emitted before
	// the listener joins.
	in := make([]float32, 16)
	for i := range in {
		in[i] = float32(i+1) / 100
	}
	if err := peer.sink.Ingest(in[:4]); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	var got listenResponse
	resp := doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/listen",
		offerRequest{SDP: "listen-offer"}, &got)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if got.SDP != "answer:listen-offer" || got.ListenerID == "" {
		t.Fatalf("listen response = %+v", got)
	}

	if err := peer.sink.Ingest(in[4:]); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/stop", nil, nil)

	lp := env.transport.listener(t, 0)
	waitUntil(t, "listener peer released", lp.isClosed)

	want := make([]int16, len(in))
	for i, v := range in {
		want[i] = pcm.SampleToInt16(v)
	}
	rec := lp.received()
	if len(rec) != len(want) {
		t.Fatalf("received %d samples, want %d", len(rec), len(want))
	}
	for i := range want {
		if rec[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, rec[i], want[i])
		}
	}
}

func TestListenNotStreaming(t *testing.T) {
	env := newTestEnv(t, testPipeline())
	var body map[string]string
	resp := doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/ghost/listen",
		offerRequest{SDP: "x"}, &body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if !strings.Contains(body["error"], "not streaming") {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestListenTimesOutBeforeFirstAudio(t *testing.T) {
	env := newTestEnv(t, testPipeline())
	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "offer"}, nil)

	var body map[string]string
	resp := doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/listen",
		offerRequest{SDP: "x"}, &body)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", resp.StatusCode)
	}
	if !strings.Contains(body["error"], "not ready") {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestListenAnswerFailureDetaches(t *testing.T) {
	env := newTestEnv(t, testPipeline())
	env.transport.mu.Lock()
	env.transport.listenerAnswerErr = errors.New("no common codec")
	env.transport.mu.Unlock()

	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "offer"}, nil)
	peer := env.transport.broadcaster(t, 0)
	if err := peer.sink.Ingest(make([]float32, 4)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	resp := doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/listen",
		offerRequest{SDP: "x"}, nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	sess, _ := env.registry.Get("alice")
	if got := sess.Info().Listeners; got != 0 {
		t.Fatalf("listeners = %d, want 0 after failed negotiation", got)
	}
}

func TestStopIdempotent(t *testing.T) {
	env := newTestEnv(t, testPipeline())

	var body map[string]bool
	resp := doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/stop", nil, &body)
	if resp.StatusCode != http.StatusOK || body["stopped"] {
		t.Fatalf("stop without session: status = %d, body = %v", resp.StatusCode, body)
	}

	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "offer"}, nil)
	sess, _ := env.registry.Get("alice")

	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/stop", nil, &body)
	if !body["stopped"] {
		t.Fatal("stop of live session reported stopped=false")
	}
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}

	var status statusResponse
	doJSON(t, http.MethodGet, env.ts.URL+"/api/streams/alice", nil, &status)
	if status.Streaming {
		t.Fatal("still streaming after stop")
	}
}

func TestBroadcastSavesRecording(t *testing.T) {
	env := newTestEnv(t, testPipeline())

	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "offer", Title: "Take 1"}, nil)
	peer := env.transport.broadcaster(t, 0)
	if err := peer.sink.Ingest(make([]float32, 16)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	sess, _ := env.registry.Get("alice")
	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/stop", nil, nil)
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}

	var list struct {
		Recordings []recordings.Recording `json:"recordings"`
	}
	doJSON(t, http.MethodGet, env.ts.URL+"/api/recordings?owner=alice", nil, &list)
	if len(list.Recordings) != 1 {
		t.Fatalf("recordings = %d, want 1", len(list.Recordings))
	}
	rec := list.Recordings[0]
	if rec.Title != "Take 1" || rec.SampleRate != 48000 {
		t.Fatalf("recording = %+v", rec)
	}

	resp, err := http.Get(env.ts.URL + "/api/recordings/alice/" + rec.ID + "/file")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if int64(len(data)) != rec.Size {
		t.Fatalf("body = %d bytes, metadata size = %d", len(data), rec.Size)
	}
}

func TestRecordingsListRequiresOwner(t *testing.T) {
	env := newTestEnv(t, testPipeline())
	resp := doJSON(t, http.MethodGet, env.ts.URL+"/api/recordings", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRecordingCRUD(t *testing.T) {
	env := newTestEnv(t, testPipeline())
	ctx := context.Background()
	id, err := env.store.Save(ctx, "alice", "Archived", 48000, make([]float32, 4800))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var rec recordings.Recording
	resp := doJSON(t, http.MethodGet, env.ts.URL+"/api/recordings/alice/"+id, nil, &rec)
	if resp.StatusCode != http.StatusOK || rec.ID != id || rec.Owner != "alice" {
		t.Fatalf("get = %d %+v", resp.StatusCode, rec)
	}

	resp = doJSON(t, http.MethodGet, env.ts.URL+"/api/recordings/alice/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing get status = %d, want 404", resp.StatusCode)
	}

	var del map[string]bool
	resp = doJSON(t, http.MethodDelete, env.ts.URL+"/api/recordings/alice/"+id, nil, &del)
	if resp.StatusCode != http.StatusOK || !del["deleted"] {
		t.Fatalf("delete = %d %v", resp.StatusCode, del)
	}
	// Idempotent.
	resp = doJSON(t, http.MethodDelete, env.ts.URL+"/api/recordings/alice/"+id, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second delete status = %d, want 200", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, env.ts.URL+"/api/recordings/alice/"+id, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestPresenceSnapshotAndEvents(t *testing.T) {
	env := newTestEnv(t, testPipeline())

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws/presence"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap presenceSnapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != "snapshot" || len(snap.Streams) != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}

	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/offer",
		offerRequest{SDP: "offer"}, nil)

	var started stream.Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&started); err != nil {
		t.Fatalf("read started event: %v", err)
	}
	if started.Type != stream.EventStarted || started.Owner != "alice" {
		t.Fatalf("event = %+v", started)
	}

	doJSON(t, http.MethodPost, env.ts.URL+"/api/streams/alice/stop", nil, nil)

	var stopped stream.Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&stopped); err != nil {
		t.Fatalf("read stopped event: %v", err)
	}
	if stopped.Type != stream.EventStopped || stopped.Owner != "alice" {
		t.Fatalf("event = %+v", stopped)
	}
}

func TestLogsTailSSE(t *testing.T) {
	env := newTestEnv(t, testPipeline())
	env.srv.logTail.Write([]byte("first line\n"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/debug/logs", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if line != "data: first line\n" {
		t.Fatalf("replay line = %q", line)
	}

	env.srv.logTail.Write([]byte("second line\n"))
	for {
		line, err = rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read live line: %v", err)
		}
		if line == "data: second line\n" {
			break
		}
	}
}

func TestLogTailRing(t *testing.T) {
	lt := NewLogTail(2)
	lt.Write([]byte("one\n"))
	lt.Write([]byte("two\n"))
	lt.Write([]byte("three\n"))
	got := lt.Snapshot()
	if len(got) != 2 || got[0] != "two" || got[1] != "three" {
		t.Fatalf("Snapshot() = %v, want last two lines", got)
	}
}

func TestLogTailSlowSubscriberDoesNotBlock(t *testing.T) {
	lt := NewLogTail(8)
	ch := lt.subscribe()
	defer lt.unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			lt.Write([]byte("line\n"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked on a slow subscriber")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("subscriber buffer = %d, want full (%d)", len(ch), cap(ch))
	}
}
