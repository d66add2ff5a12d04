package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/KickerMix/KotobulkaGPT-Bot/internal/auth"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/history"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/imaging"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/llm"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/ratelimit"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/roles"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/storage"
)

// NoCaptionText is stored in history when an image arrives without one.
const NoCaptionText = "[User sent image without description]"

// Orchestrator processes one incoming message end-to-end: authorization
// gate, image admission, input normalization, buffer update, model call
// and response integration. All per-user in-memory state is mutated only
// under that user's lock, so a user's messages are handled one at a time
// while distinct users never contend. The lock is held across the model
// call, bounding a user's turn by a single round-trip.
type Orchestrator struct {
	authSvc  *auth.Service
	roles    *roles.Service
	history  *history.Manager
	limiter  *ratelimit.Limiter
	llm      llm.Client
	recorder storage.Recorder
	images   *storage.ImageArchive

	maxImageDim int
	now         func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(
	authSvc *auth.Service,
	rolesSvc *roles.Service,
	hist *history.Manager,
	limiter *ratelimit.Limiter,
	llmClient llm.Client,
	recorder storage.Recorder,
	images *storage.ImageArchive,
	maxImageDim int,
) *Orchestrator {
	return &Orchestrator{
		authSvc:     authSvc,
		roles:       rolesSvc,
		history:     hist,
		limiter:     limiter,
		llm:         llmClient,
		recorder:    recorder,
		images:      images,
		maxImageDim: maxImageDim,
		now:         time.Now,
		locks:       make(map[int64]*sync.Mutex),
	}
}

func (o *Orchestrator) lockFor(userID int64) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[userID] = l
	}
	return l
}

func (o *Orchestrator) IsAuthorized(userID int64) bool {
	return o.authSvc.IsAllowed(userID)
}

// Process runs the per-message state machine and returns what the
// transport should tell the user. A non-nil error means the model call
// failed; the user turn already appended to history is retained and a
// fresh message is the only retry path.
func (o *Orchestrator) Process(ctx context.Context, in Incoming) (Result, error) {
	l := o.lockFor(in.User.ID)
	l.Lock()
	defer l.Unlock()

	switch o.authSvc.Check(in.User, in.Text) {
	case auth.PromptSecret:
		return Result{Kind: KindPromptSecret}, nil
	case auth.GrantedNow:
		log.Printf("user %d successfully authorized", in.User.ID)
		return Result{Kind: KindGranted}, nil
	}

	now := o.now()
	text := in.Text

	var img *imaging.Normalized
	if in.Image != nil {
		d := o.limiter.TryAdmit(in.User.ID, now)
		if !d.Admitted {
			log.Printf("user %d exceeded the image request limit, next attempt in %s", in.User.ID, d.RetryAfter)
			return Result{Kind: KindRateLimited, RetryAfter: d.RetryAfter}, nil
		}
		// Validation runs after admission; a rejected image keeps its slot.
		if !imaging.AllowedExtension(in.Image.FileName) {
			log.Printf("user %d sent an image with unsupported extension %q", in.User.ID, in.Image.FileName)
			return Result{Kind: KindBadImage}, nil
		}
		n, err := imaging.Normalize(in.Image.Data, o.maxImageDim)
		if err != nil {
			log.Printf("user %d image rejected: %v", in.User.ID, err)
			return Result{Kind: KindBadImage}, nil
		}
		img = &n
		if text == "" {
			text = NoCaptionText
		}
	}

	roleText := o.roles.Resolve(in.User.ID)
	o.history.AppendUser(in.User.ID, text)

	snapshot := o.history.Snapshot(in.User.ID)
	msgs := make([]llm.Message, 0, len(snapshot)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: roleText})
	msgs = append(msgs, snapshot...)
	if img != nil {
		// The final user turn carries the embedded image; history keeps
		// only its text.
		msgs[len(msgs)-1].ImageURL = img.DataURL()
	}

	resp, err := o.llm.Generate(ctx, msgs)
	if err != nil {
		// No assistant turn; the user turn stays in the buffer.
		log.Printf("failed to generate response for user %d: %v", in.User.ID, err)
		return Result{}, fmt.Errorf("generate response: %w", err)
	}

	o.history.AppendAssistant(in.User.ID, resp.Content)
	o.record(storage.Event{Timestamp: now, UserID: in.User.ID, Role: "user", Text: text})
	o.record(storage.Event{Timestamp: o.now(), UserID: in.User.ID, Role: "assistant", Text: resp.Content})
	if img != nil && o.images != nil {
		if _, err := o.images.Save(in.User.ID, now, img.JPEG); err != nil {
			log.Printf("failed to archive image for user %d: %v", in.User.ID, err)
		}
	}

	log.Printf("LLM response for user %d [model=%s, tokens: prompt=%d, completion=%d, total=%d]",
		in.User.ID, resp.Model, resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)
	return Result{Kind: KindReply, Reply: resp.Content}, nil
}

// record persists a transcript entry. Persistence failures are logged
// and swallowed; the in-memory buffer stays authoritative.
func (o *Orchestrator) record(ev storage.Event) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.AppendInteraction(ev); err != nil {
		log.Printf("failed to record interaction for user %d: %v", ev.UserID, err)
	}
}

// SetOverrideRole assigns a free-form override role for the user.
func (o *Orchestrator) SetOverrideRole(userID int64, role string) {
	l := o.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	o.roles.SetOverride(userID, role)
}

// ResetOverrideRole removes the override role, reverting resolution to
// the user's default choice. Reports whether an override existed.
func (o *Orchestrator) ResetOverrideRole(userID int64) bool {
	l := o.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	return o.roles.ResetOverride(userID)
}

// SelectDefaultRole assigns one of the built-in default roles and
// returns its text.
func (o *Orchestrator) SelectDefaultRole(userID int64, choice string) (string, error) {
	l := o.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	return o.roles.SelectDefault(userID, choice)
}

// ResetContext clears the user's conversation buffer.
func (o *Orchestrator) ResetContext(userID int64) {
	l := o.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	o.history.Reset(userID)
}

// CompactRateWindows reclaims windows whose events have all expired;
// run periodically.
func (o *Orchestrator) CompactRateWindows() {
	o.limiter.Compact(o.now())
}
