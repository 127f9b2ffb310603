package pipeline_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"mediapipe/internal/broker"
	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/moderation"
	"mediapipe/internal/objectstore"
	"mediapipe/internal/pipeline"
	"mediapipe/internal/push"
	"mediapipe/internal/realtime"
	"mediapipe/internal/services"
	"mediapipe/internal/services/transcribe"
	"mediapipe/internal/store"
	"mediapipe/internal/testsupport"
)

// flakyStore fails the next n creation writes with a locked-database error.
type flakyStore struct {
	pipeline.FileStore
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) ApplyCreationResult(ctx context.Context, id string, result store.CreationResult) error {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return services.Wrap(services.ErrTransient, "store", "apply creation result", "database is locked", nil)
	}
	return f.FileStore.ApplyCreationResult(ctx, id, result)
}

type fakeUploader struct {
	mu    sync.Mutex
	kinds []objectstore.ResourceKind
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, _ string, publicID string, kind objectstore.ResourceKind) (objectstore.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	if f.err != nil {
		return objectstore.Asset{}, f.err
	}
	return objectstore.Asset{
		URL:          "https://cdn.test/demo/" + string(kind) + "/upload/v1/" + publicID,
		StorageID:    publicID,
		ResourceKind: kind,
	}, nil
}

func (f *fakeUploader) BlurredURL(assetURL string) (string, error) {
	return objectstore.BlurredURL(assetURL)
}

func (f *fakeUploader) uploads() []objectstore.ResourceKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]objectstore.ResourceKind(nil), f.kinds...)
}

// fakeModerator answers Verdict from a script indexed by call, repeating the
// last entry.
type fakeModerator struct {
	mu       sync.Mutex
	submits  []string
	verdicts []func() (moderation.Verdict, error)
	polls    int
}

func (f *fakeModerator) Submit(_ context.Context, fileID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, fileID)
	return "exec-" + fileID, nil
}

func (f *fakeModerator) Verdict(context.Context, string) (moderation.Verdict, error) {
	f.mu.Lock()
	idx := f.polls
	f.polls++
	f.mu.Unlock()
	if len(f.verdicts) == 0 {
		return moderation.Verdict{Safe: true}, nil
	}
	if idx >= len(f.verdicts) {
		idx = len(f.verdicts) - 1
	}
	return f.verdicts[idx]()
}

func (f *fakeModerator) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type fakeTranscriber struct {
	mu     sync.Mutex
	result transcribe.Transcript
	err    error
	calls  int
	// gate, when set, blocks Transcribe until closed.
	gate chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string) (transcribe.Transcript, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return transcribe.Transcript{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

type fakeSummarizer struct {
	mu       sync.Mutex
	calls    int
	language string
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string, languageName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.language = languageName
	return "A short summary.", nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordedUpdate struct {
	fileID string
	update realtime.FileUpdate
}

type recordingFanout struct {
	mu      sync.Mutex
	updates []recordedUpdate
}

func (r *recordingFanout) BroadcastFileUpdate(fileID string, update realtime.FileUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, recordedUpdate{fileID: fileID, update: update})
}

func (r *recordingFanout) snapshot() []recordedUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedUpdate(nil), r.updates...)
}

type fakePusher struct {
	mu     sync.Mutex
	sent   []push.Notification
	tokens [][]string
	result push.Result
	err    error
}

func (f *fakePusher) Send(_ context.Context, tokens []string, n push.Notification) (push.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	f.tokens = append(f.tokens, tokens)
	result := f.result
	if result.Sent == 0 && result.Failed == 0 && f.err == nil {
		result.Sent = len(tokens)
	}
	return result, f.err
}

func (f *fakePusher) notifications() []push.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push.Notification(nil), f.sent...)
}

type env struct {
	cfg         *config.Config
	store       *store.Store
	mem         *broker.Memory
	uploader    *fakeUploader
	moderator   *fakeModerator
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	fanout      *recordingFanout
	pusher      *fakePusher
	tokens      *push.TokenDirectory
}

func newEnv(t *testing.T, opts ...testsupport.ConfigOption) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithFastRetries()}, opts...)...)
	st := testsupport.MustOpenStore(t, cfg)
	mem := broker.NewMemory(cfg.Broker.Prefetch)
	t.Cleanup(func() { _ = mem.Close() })
	return &env{
		cfg:         cfg,
		store:       st,
		mem:         mem,
		uploader:    &fakeUploader{},
		moderator:   &fakeModerator{},
		transcriber: &fakeTranscriber{result: transcribe.Transcript{Text: "hello there", Language: "english"}},
		summarizer:  &fakeSummarizer{},
		fanout:      &recordingFanout{},
		pusher:      &fakePusher{},
		tokens:      push.NewTokenDirectory(st, 16, 0),
	}
}

func (e *env) deps() pipeline.Deps {
	return pipeline.Deps{
		Store:            e.store,
		Broker:           e.mem,
		Uploader:         e.uploader,
		Moderator:        e.moderator,
		Transcriber:      e.transcriber,
		Summarizer:       e.summarizer,
		Fanout:           e.fanout,
		Pusher:           e.pusher,
		Tokens:           e.tokens,
		Logger:           logging.NewNop(),
		SummaryThreshold: e.cfg.Workflow.SummaryThreshold,
	}
}

// stagedFile writes bytes into the staging area and creates a processing
// record pointing at them.
func (e *env) stagedFile(t *testing.T, kind store.Kind, mediaType string) *store.File {
	t.Helper()
	id := uuid.NewString()
	path := testsupport.WriteStaged(t, e.cfg.Paths.StagingDir, id+".bin", []byte("payload"), 0)
	file, err := e.store.CreateFile(context.Background(), store.NewFile{
		ID:           id,
		Kind:         kind,
		MediaType:    mediaType,
		OriginalName: "upload.bin",
		StagingPath:  path,
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	return file
}

// uploadedAudio is a staged audio record whose upload is already recorded,
// the state transcription starts from.
func (e *env) uploadedAudio(t *testing.T) *store.File {
	t.Helper()
	file := e.stagedFile(t, store.KindAudio, "audio/mp4")
	err := e.store.ApplyCreationResult(context.Background(), file.ID, store.CreationResult{
		URL:         "https://cdn.test/demo/video/upload/v1/" + file.ID,
		MarkSafe:    true,
		KeepStaging: true,
	})
	if err != nil {
		t.Fatalf("ApplyCreationResult: %v", err)
	}
	return e.mustGet(t, file.ID)
}

func (e *env) mustGet(t *testing.T, id string) *store.File {
	t.Helper()
	file, err := e.store.GetFile(context.Background(), id)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if file == nil {
		t.Fatalf("file %s missing", id)
	}
	return file
}

func (e *env) registerDevice(t *testing.T, userID, token string) {
	t.Helper()
	if err := e.tokens.Register(context.Background(), store.DeviceToken{UserID: userID, Token: token}); err != nil {
		t.Fatalf("Register: %v", err)
	}
}
