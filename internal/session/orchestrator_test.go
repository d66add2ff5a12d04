package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/KickerMix/KotobulkaGPT-Bot/internal/auth"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/history"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/llm"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/ratelimit"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/roles"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/storage"
)

type fakeLLM struct {
	resp llm.Response
	err  error
	reqs [][]llm.Message
}

func (f *fakeLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	cp := make([]llm.Message, len(msgs))
	copy(cp, msgs)
	f.reqs = append(f.reqs, cp)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return f.resp, nil
}

func (f *fakeLLM) lastReq(t *testing.T) []llm.Message {
	t.Helper()
	if len(f.reqs) == 0 {
		t.Fatalf("no llm requests made")
	}
	return f.reqs[len(f.reqs)-1]
}

type memRecorder struct{ events []storage.Event }

func (m *memRecorder) AppendInteraction(ev storage.Event) error {
	m.events = append(m.events, ev)
	return nil
}
func (m *memRecorder) LoadInteractions() ([]storage.Event, error) { return m.events, nil }

type fixture struct {
	orch    *Orchestrator
	llm     *fakeLLM
	limiter *ratelimit.Limiter
	rec     *memRecorder
	roles   *roles.Service
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := &fakeLLM{resp: llm.Response{Content: "pong", Model: "test-model"}}
	limiter := ratelimit.New(2, time.Hour)
	rec := &memRecorder{}
	rolesSvc := roles.NewWithRepos(nil, nil, "fallback role")
	authSvc, err := auth.NewWithRepo(nil, "swordfish")
	if err != nil {
		t.Fatalf("auth init: %v", err)
	}

	f := &fixture{
		llm:     client,
		limiter: limiter,
		rec:     rec,
		roles:   rolesSvc,
		clock:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.orch = New(authSvc, rolesSvc, history.NewManager(5), limiter, client, rec, nil, 128)
	f.orch.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) authorize(t *testing.T, userID int64) {
	t.Helper()
	res, err := f.orch.Process(context.Background(), Incoming{User: auth.User{ID: userID}, Text: "swordfish"})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if res.Kind != KindGranted {
		t.Fatalf("authorize: want KindGranted, got %v", res.Kind)
	}
}

func pngPhoto(t *testing.T) *IncomingImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 160))
	for x := 0; x < 200; x++ {
		for y := 0; y < 160; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return &IncomingImage{Data: buf.Bytes(), FileName: "photo.png"}
}

func TestSecretWordGrantsWithoutFurtherProcessing(t *testing.T) {
	f := newFixture(t)
	user := auth.User{ID: 42}

	res, err := f.orch.Process(context.Background(), Incoming{User: user, Text: "swordfish"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Kind != KindGranted {
		t.Fatalf("want KindGranted, got %v", res.Kind)
	}
	if !f.orch.IsAuthorized(user.ID) {
		t.Fatalf("user not authorized after grant")
	}
	// The grant consumes the whole message: no model call, no history.
	if len(f.llm.reqs) != 0 {
		t.Fatalf("model called during grant")
	}
}

func TestUnauthorizedMessagePrompts(t *testing.T) {
	f := newFixture(t)

	for _, in := range []Incoming{
		{User: auth.User{ID: 7}, Text: "hello"},
		{User: auth.User{ID: 7}, Text: ""},
		{User: auth.User{ID: 7}, Image: pngPhoto(t)},
	} {
		res, err := f.orch.Process(context.Background(), in)
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if res.Kind != KindPromptSecret {
			t.Fatalf("want KindPromptSecret, got %v", res.Kind)
		}
	}
	if len(f.llm.reqs) != 0 {
		t.Fatalf("model called for unauthorized user")
	}
}

func TestTextTurnAssemblyAndIntegration(t *testing.T) {
	f := newFixture(t)
	user := auth.User{ID: 1}
	f.authorize(t, user.ID)

	res, err := f.orch.Process(context.Background(), Incoming{User: user, Text: "ping"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Kind != KindReply || res.Reply != "pong" {
		t.Fatalf("unexpected result: %+v", res)
	}

	req := f.llm.lastReq(t)
	if len(req) != 2 {
		t.Fatalf("want system + user, got %d messages", len(req))
	}
	if req[0].Role != "system" || req[0].Content != "fallback role" {
		t.Fatalf("bad system message: %+v", req[0])
	}
	if req[1].Role != "user" || req[1].Content != "ping" {
		t.Fatalf("bad user message: %+v", req[1])
	}

	if len(f.rec.events) != 2 {
		t.Fatalf("want 2 transcript events, got %d", len(f.rec.events))
	}
	if f.rec.events[0].Role != "user" || f.rec.events[0].Text != "ping" {
		t.Fatalf("bad user event: %+v", f.rec.events[0])
	}
	if f.rec.events[1].Role != "assistant" || f.rec.events[1].Text != "pong" {
		t.Fatalf("bad assistant event: %+v", f.rec.events[1])
	}
}

func TestSixTurnsKeepLastFiveWithOverrideRole(t *testing.T) {
	f := newFixture(t)
	user := auth.User{ID: 2}
	f.authorize(t, user.ID)
	f.orch.SetOverrideRole(user.ID, "Pirate")

	for i := 1; i <= 6; i++ {
		if _, err := f.orch.Process(context.Background(), Incoming{User: user, Text: fmt.Sprintf("msg-%d", i)}); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	req := f.llm.lastReq(t)
	if req[0].Role != "system" || req[0].Content != "Pirate" {
		t.Fatalf("6th request must still resolve the override role: %+v", req[0])
	}
	if len(req) != 6 {
		t.Fatalf("want system + 5 buffered turns, got %d messages", len(req))
	}
	last := req[len(req)-1]
	if last.Role != "user" || last.Content != "msg-6" {
		t.Fatalf("final turn must be the 6th user message: %+v", last)
	}
	// The buffer holds alternating user/assistant turns and never more
	// than its capacity.
	for i := 2; i < len(req); i++ {
		if req[i].Role == req[i-1].Role {
			t.Fatalf("turns not alternating at %d: %s %s", i, req[i-1].Role, req[i].Role)
		}
	}
}

func TestImageAdmissionScenario(t *testing.T) {
	f := newFixture(t)
	user := auth.User{ID: 3}
	f.authorize(t, user.ID)

	// Two images five minutes apart are admitted.
	for i := 0; i < 2; i++ {
		res, err := f.orch.Process(context.Background(), Incoming{User: user, Text: "look", Image: pngPhoto(t)})
		if err != nil {
			t.Fatalf("process image %d: %v", i, err)
		}
		if res.Kind != KindReply {
			t.Fatalf("image %d: want KindReply, got %v", i, res.Kind)
		}
		f.clock = f.clock.Add(5 * time.Minute)
	}

	// Third within the hour is denied; the wait runs until the first
	// admitted image leaves the window.
	res, err := f.orch.Process(context.Background(), Incoming{User: user, Text: "look", Image: pngPhoto(t)})
	if err != nil {
		t.Fatalf("process third image: %v", err)
	}
	if res.Kind != KindRateLimited {
		t.Fatalf("want KindRateLimited, got %v", res.Kind)
	}
	if res.RetryAfter != 50*time.Minute {
		t.Fatalf("want retry after 50m, got %s", res.RetryAfter)
	}
	// Denial leaves the buffer untouched.
	if got := f.orch.history.Len(user.ID); got != 4 {
		t.Fatalf("buffer mutated on denial: len=%d", got)
	}
}

func TestImageRequestCarriesDataURL(t *testing.T) {
	f := newFixture(t)
	user := auth.User{ID: 4}
	f.authorize(t, user.ID)

	if _, err := f.orch.Process(context.Background(), Incoming{User: user, Image: pngPhoto(t)}); err != nil {
		t.Fatalf("process: %v", err)
	}

	req := f.llm.lastReq(t)
	last := req[len(req)-1]
	if last.Content != NoCaptionText {
		t.Fatalf("caption-less image must use the sentinel text, got %q", last.Content)
	}
	if !strings.HasPrefix(last.ImageURL, "data:image/jpeg;base64,") {
		t.Fatalf("final turn must embed the image: %q", last.ImageURL[:min(len(last.ImageURL), 40)])
	}
	// History keeps the text only; the embedded image never enters the
	// buffer.
	for _, m := range f.orch.history.Snapshot(user.ID) {
		if m.ImageURL != "" {
			t.Fatalf("image payload leaked into history")
		}
	}
}

func TestRejectedExtensionKeepsRateSlot(t *testing.T) {
	f := newFixture(t)
	user := auth.User{ID: 5}
	f.authorize(t, user.ID)

	res, err := f.orch.Process(context.Background(), Incoming{
		User:  user,
		Text:  "look",
		Image: &IncomingImage{Data: []byte("gifgifgif"), FileName: "photo.gif"},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Kind != KindBadImage {
		t.Fatalf("want KindBadImage, got %v", res.Kind)
	}
	if got := f.orch.history.Len(user.ID); got != 0 {
		t.Fatalf("rejected image mutated the buffer: len=%d", got)
	}
	if len(f.llm.reqs) != 0 {
		t.Fatalf("model called for a rejected image")
	}
	// Admission precedes validation: the slot stays consumed.
	if got := f.limiter.Count(user.ID, f.clock); got != 1 {
		t.Fatalf("rate slot not consumed: count=%d", got)
	}
}

func TestUpstreamFailureKeepsUserTurn(t *testing.T) {
	f := newFixture(t)
	f.llm.err = errors.New("status 500")
	user := auth.User{ID: 6}
	f.authorize(t, user.ID)

	_, err := f.orch.Process(context.Background(), Incoming{User: user, Text: "ping"})
	if err == nil {
		t.Fatalf("want error on upstream failure")
	}

	msgs := f.orch.history.Snapshot(user.ID)
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Fatalf("want only the retained user turn, got %+v", msgs)
	}
	if len(f.rec.events) != 0 {
		t.Fatalf("failed exchange must not be recorded")
	}

	// A fresh message is the only retry mechanism.
	f.llm.err = nil
	res, err := f.orch.Process(context.Background(), Incoming{User: user, Text: "ping again"})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Kind != KindReply {
		t.Fatalf("retry: want KindReply, got %v", res.Kind)
	}
}
