package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"elicit/internal/annotations"
	"elicit/internal/config"
	"elicit/internal/events"
	"elicit/internal/pipeline"
	"elicit/internal/services"
	"elicit/internal/testsupport"
)

type fakeTranscriber struct {
	fn    func(ctx context.Context, audio string, language string) (string, error)
	calls atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader, name, language string) (string, error) {
	f.calls.Add(1)
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	return f.fn(ctx, string(data), language)
}

type fakeEnhancer struct {
	fn    func(ctx context.Context, transcript string) (string, error)
	calls atomic.Int32
}

func (f *fakeEnhancer) Enhance(ctx context.Context, transcript string) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, transcript)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	onEvt  func(events.Event)
}

func (p *recordingPublisher) Publish(evt events.Event) {
	if p.onEvt != nil {
		p.onEvt(evt)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) forJob(id int64, statuses ...string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, evt := range p.events {
		if evt.JobID != id {
			continue
		}
		if len(statuses) == 0 {
			out = append(out, evt)
			continue
		}
		for _, status := range statuses {
			if evt.Status == status {
				out = append(out, evt)
				break
			}
		}
	}
	return out
}

type harness struct {
	cfg       *config.Config
	store     annotations.Store
	media     *annotations.Media
	tr        *fakeTranscriber
	en        *fakeEnhancer
	pub       *recordingPublisher
	scheduler *pipeline.Scheduler
}

func newHarness(t *testing.T, mutate func(*pipeline.Options)) *harness {
	t.Helper()
	return newWrappedHarness(t, nil, mutate)
}

// newWrappedHarness runs the scheduler against wrap(store) while h.store stays
// the underlying store for assertions.
func newWrappedHarness(t *testing.T, wrap func(annotations.Store) annotations.Store, mutate func(*pipeline.Options)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	h := &harness{
		cfg:   cfg,
		store: store,
		media: testsupport.NewMedia(t, store, cfg, "demo.mp4", 0),
		tr: &fakeTranscriber{fn: func(context.Context, string, string) (string, error) {
			return "hello", nil
		}},
		en: &fakeEnhancer{fn: func(_ context.Context, text string) (string, error) {
			return text + ", elaborated", nil
		}},
		pub: &recordingPublisher{},
	}
	opts := pipeline.OptionsFromConfig(cfg, nil)
	if mutate != nil {
		mutate(&opts)
	}
	var schedStore annotations.Store = store
	if wrap != nil {
		schedStore = wrap(store)
	}
	h.scheduler = pipeline.New(schedStore, h.tr, h.en, h.pub, opts)
	t.Cleanup(h.scheduler.Stop)
	return h
}

func (h *harness) submit(t *testing.T, audio string) *annotations.Job {
	t.Helper()
	job, err := h.scheduler.Submit(context.Background(), pipeline.Submission{
		MediaID:   h.media.ID,
		StartTime: 1,
		EndTime:   3.5,
		AudioName: "recording.webm",
		Audio:     strings.NewReader(audio),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return job
}

func (h *harness) job(t *testing.T, id int64) *annotations.Job {
	t.Helper()
	job, err := h.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	return job
}

func TestTranscriptionFailureLeavesEnhancementPending(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.fn = func(context.Context, string, string) (string, error) {
		return "", services.Wrap(services.ErrUnreachable, "transcription", "create transcription", "transport error", errors.New("connection refused"))
	}

	job := h.submit(t, "audio-bytes")
	h.scheduler.Wait()

	got := h.job(t, job.ID)
	if got.TranscriptionStatus != annotations.StatusFailed || got.EnhancementStatus != annotations.StatusPending {
		t.Fatalf("expected (failed, pending), got (%s, %s)", got.TranscriptionStatus, got.EnhancementStatus)
	}
	if !strings.Contains(got.TranscriptionError, "unreachable") {
		t.Fatalf("expected stored error to name the category, got %q", got.TranscriptionError)
	}

	failed := h.pub.forJob(job.ID, events.StatusFailed)
	if len(failed) != 1 || failed[0].Stage != "transcription" {
		t.Fatalf("expected exactly one transcription failure event, got %#v", failed)
	}
	if failed[0].ErrorKind != string(services.KindUnreachable) || failed[0].Payload == "" {
		t.Fatalf("unexpected failure event %#v", failed[0])
	}
	if completed := h.pub.forJob(job.ID, events.StatusCompleted); len(completed) != 0 {
		t.Fatalf("expected no completed events, got %#v", completed)
	}
	for _, evt := range h.pub.forJob(job.ID) {
		if evt.Stage == "enhancement" {
			t.Fatalf("enhancement must not start after transcription failed: %#v", evt)
		}
	}
	if h.en.calls.Load() != 0 {
		t.Fatalf("enhancer called %d times", h.en.calls.Load())
	}
}

func TestBothStagesComplete(t *testing.T) {
	h := newHarness(t, nil)
	var seenTranscript, seenAudio string
	h.tr.fn = func(_ context.Context, audio, _ string) (string, error) {
		seenAudio = audio
		return "hello", nil
	}
	h.en.fn = func(_ context.Context, text string) (string, error) {
		seenTranscript = text
		return "hello, elaborated", nil
	}

	job := h.submit(t, "audio-bytes")
	h.scheduler.Wait()

	got := h.job(t, job.ID)
	if got.TranscriptionStatus != annotations.StatusCompleted || got.EnhancementStatus != annotations.StatusCompleted {
		t.Fatalf("expected (completed, completed), got (%s, %s)", got.TranscriptionStatus, got.EnhancementStatus)
	}
	if got.Transcript != "hello" || got.EnhancedTranscript != "hello, elaborated" {
		t.Fatalf("unexpected texts %#v", got)
	}
	if seenAudio != "audio-bytes" || seenTranscript != "hello" {
		t.Fatalf("remote clients received audio=%q transcript=%q", seenAudio, seenTranscript)
	}

	completed := h.pub.forJob(job.ID, events.StatusCompleted)
	if len(completed) != 2 {
		t.Fatalf("expected two completed events, got %#v", completed)
	}
	if completed[0].Stage != "transcription" || completed[0].Payload != "hello" {
		t.Fatalf("unexpected first event %#v", completed[0])
	}
	if completed[1].Stage != "enhancement" || completed[1].Payload != "hello, elaborated" {
		t.Fatalf("unexpected second event %#v", completed[1])
	}

	all := h.pub.forJob(job.ID)
	want := []string{"created", "transcription/processing", "transcription/completed", "enhancement/processing", "enhancement/completed"}
	if len(all) != len(want) {
		t.Fatalf("expected %d events, got %#v", len(want), all)
	}
	for i, evt := range all {
		label := evt.Status
		if evt.Stage != "" {
			label = evt.Stage + "/" + evt.Status
		}
		if label != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], label)
		}
	}
}

func TestEnhancementFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.en.fn = func(context.Context, string) (string, error) {
		return "", services.Wrap(services.ErrQuota, "enhancement", "chat completion", "status 429", nil)
	}

	job := h.submit(t, "audio")
	h.scheduler.Wait()

	got := h.job(t, job.ID)
	if got.TranscriptionStatus != annotations.StatusCompleted || got.EnhancementStatus != annotations.StatusFailed {
		t.Fatalf("expected (completed, failed), got (%s, %s)", got.TranscriptionStatus, got.EnhancementStatus)
	}
	failed := h.pub.forJob(job.ID, events.StatusFailed)
	if len(failed) != 1 || failed[0].Stage != "enhancement" || failed[0].ErrorKind != string(services.KindQuota) {
		t.Fatalf("unexpected failure events %#v", failed)
	}
}

func TestSubmitDoesNotWaitForStages(t *testing.T) {
	h := newHarness(t, nil)
	release := make(chan struct{})
	h.tr.fn = func(context.Context, string, string) (string, error) {
		<-release
		return "hello", nil
	}

	type result struct {
		job *annotations.Job
		err error
	}
	done := make(chan result, 1)
	go func() {
		job, err := h.scheduler.Submit(context.Background(), pipeline.Submission{
			MediaID: h.media.ID, StartTime: 0, EndTime: 1, Audio: strings.NewReader("audio"),
		})
		done <- result{job, err}
	}()

	var job *annotations.Job
	select {
	case res := <-done:
		if res.err != nil {
			close(release)
			t.Fatalf("Submit failed: %v", res.err)
		}
		job = res.job
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("Submit blocked on the remote call")
	}
	if job.TranscriptionStatus != annotations.StatusPending {
		t.Fatalf("expected pending record from Submit, got %s", job.TranscriptionStatus)
	}
	close(release)
	h.scheduler.Wait()
	if got := h.job(t, job.ID); got.EnhancementStatus != annotations.StatusCompleted {
		t.Fatalf("expected job to finish, got %#v", got)
	}
}

func TestDeleteDiscardsLateResult(t *testing.T) {
	h := newHarness(t, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.tr.fn = func(context.Context, string, string) (string, error) {
		close(entered)
		<-release
		return "too late", nil
	}

	job := h.submit(t, "audio")
	<-entered
	deleted, err := h.scheduler.Delete(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(deleted.AudioPath); !os.IsNotExist(err) {
		t.Fatalf("expected audio to be removed, stat err=%v", err)
	}
	close(release)
	h.scheduler.Wait()

	if _, err := h.store.GetJob(context.Background(), job.ID); !errors.Is(err, annotations.ErrNotFound) {
		t.Fatalf("expected job to stay deleted, got %v", err)
	}
	if completed := h.pub.forJob(job.ID, events.StatusCompleted, events.StatusFailed); len(completed) != 0 {
		t.Fatalf("expected no stage result events after delete, got %#v", completed)
	}
	if del := h.pub.forJob(job.ID, events.StatusDeleted); len(del) != 1 {
		t.Fatalf("expected one deleted event, got %#v", del)
	}
	if h.en.calls.Load() != 0 {
		t.Fatal("enhancement must not run for a deleted job")
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, func(o *pipeline.Options) { o.MaxAudioBytes = 8 })
	ctx := context.Background()

	cases := []struct {
		name string
		sub  pipeline.Submission
		want error
	}{
		{"inverted times", pipeline.Submission{MediaID: h.media.ID, StartTime: 5, EndTime: 2, Audio: strings.NewReader("a")}, services.ErrValidation},
		{"missing audio", pipeline.Submission{MediaID: h.media.ID, StartTime: 0, EndTime: 2}, services.ErrValidation},
		{"empty audio", pipeline.Submission{MediaID: h.media.ID, StartTime: 0, EndTime: 2, Audio: strings.NewReader("")}, services.ErrValidation},
		{"oversized audio", pipeline.Submission{MediaID: h.media.ID, StartTime: 0, EndTime: 2, Audio: strings.NewReader("0123456789")}, services.ErrValidation},
		{"unknown language", pipeline.Submission{MediaID: h.media.ID, StartTime: 0, EndTime: 2, Language: "not a language", Audio: strings.NewReader("a")}, services.ErrValidation},
		{"unknown media", pipeline.Submission{MediaID: 4242, StartTime: 0, EndTime: 2, Audio: strings.NewReader("a")}, annotations.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := h.scheduler.Submit(ctx, tc.sub); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	entries, err := os.ReadDir(h.cfg.Paths.AudioDir)
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected rejected submissions to leave no audio, found %d files", len(entries))
	}
	if h.tr.calls.Load() != 0 {
		t.Fatal("rejected submissions must not reach the transcriber")
	}
}

func TestSubmitNormalizesLanguage(t *testing.T) {
	h := newHarness(t, nil)
	var seen string
	h.tr.fn = func(_ context.Context, _ string, language string) (string, error) {
		seen = language
		return "bonjour", nil
	}
	job, err := h.scheduler.Submit(context.Background(), pipeline.Submission{
		MediaID:   h.media.ID,
		StartTime: 0,
		EndTime:   1,
		Language:  "French",
		Audio:     strings.NewReader("audio"),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	h.scheduler.Wait()
	if job.Language != "fr" {
		t.Fatalf("expected stored language fr, got %q", job.Language)
	}
	if seen != "fr" {
		t.Fatalf("expected transcriber hint fr, got %q", seen)
	}
}

func TestStageTimeoutFailsStage(t *testing.T) {
	h := newHarness(t, func(o *pipeline.Options) { o.TranscriptionTimeout = 20 * time.Millisecond })
	h.tr.fn = func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", services.Wrap(services.ErrUnreachable, "transcription", "create transcription", "timed out", ctx.Err())
	}

	job := h.submit(t, "audio")
	h.scheduler.Wait()

	got := h.job(t, job.ID)
	if got.TranscriptionStatus != annotations.StatusFailed {
		t.Fatalf("expected timed-out stage to fail, got %s", got.TranscriptionStatus)
	}
}

func TestEmptyStageOutputFails(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.fn = func(context.Context, string, string) (string, error) { return "  ", nil }

	job := h.submit(t, "audio")
	h.scheduler.Wait()

	failed := h.pub.forJob(job.ID, events.StatusFailed)
	if len(failed) != 1 || failed[0].ErrorKind != string(services.KindUnknown) {
		t.Fatalf("expected unknown failure for empty output, got %#v", failed)
	}
}

func TestConcurrencyLimit(t *testing.T) {
	h := newHarness(t, func(o *pipeline.Options) { o.MaxConcurrentStages = 1 })
	var inFlight, peak atomic.Int32
	track := func() func() {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return func() { inFlight.Add(-1) }
	}
	h.tr.fn = func(context.Context, string, string) (string, error) {
		defer track()()
		time.Sleep(5 * time.Millisecond)
		return "hello", nil
	}
	h.en.fn = func(context.Context, string) (string, error) {
		defer track()()
		time.Sleep(5 * time.Millisecond)
		return "elaborated", nil
	}

	for i := 0; i < 5; i++ {
		h.submit(t, fmt.Sprintf("audio-%d", i))
	}
	h.scheduler.Wait()
	if peak.Load() != 1 {
		t.Fatalf("expected at most one remote call in flight, peak=%d", peak.Load())
	}
}

func TestStageInvariantAcrossOutcomes(t *testing.T) {
	h := newHarness(t, nil)
	violations := atomic.Int32{}
	h.pub.onEvt = func(evt events.Event) {
		job, err := h.store.GetJob(context.Background(), evt.JobID)
		if err != nil {
			return
		}
		if job.EnhancementStatus != annotations.StatusPending && job.TranscriptionStatus != annotations.StatusCompleted {
			violations.Add(1)
		}
	}
	// Outcome per job is encoded in its audio: "t" fails transcription, "e"
	// fails enhancement, anything else succeeds.
	h.tr.fn = func(_ context.Context, audio, _ string) (string, error) {
		if strings.HasPrefix(audio, "t") {
			return "", errors.New("transcription boom")
		}
		return audio, nil
	}
	h.en.fn = func(_ context.Context, text string) (string, error) {
		if strings.HasPrefix(text, "e") {
			return "", errors.New("enhancement boom")
		}
		return text + "!", nil
	}

	outcomes := []string{"t", "e", "ok", "t", "ok", "e", "ok", "t"}
	jobs := make([]*annotations.Job, 0, len(outcomes))
	for i, prefix := range outcomes {
		jobs = append(jobs, h.submit(t, fmt.Sprintf("%s-%d", prefix, i)))
	}
	h.scheduler.Wait()

	if violations.Load() != 0 {
		t.Fatalf("observed %d invariant violations", violations.Load())
	}
	for i, job := range jobs {
		got := h.job(t, job.ID)
		var wantT, wantE annotations.Status
		switch outcomes[i] {
		case "t":
			wantT, wantE = annotations.StatusFailed, annotations.StatusPending
		case "e":
			wantT, wantE = annotations.StatusCompleted, annotations.StatusFailed
		default:
			wantT, wantE = annotations.StatusCompleted, annotations.StatusCompleted
		}
		if got.TranscriptionStatus != wantT || got.EnhancementStatus != wantE {
			t.Fatalf("job %d (%s): expected (%s, %s), got (%s, %s)", i, outcomes[i], wantT, wantE, got.TranscriptionStatus, got.EnhancementStatus)
		}
		for _, stage := range []string{"transcription", "enhancement"} {
			var failed, completed int
			for _, evt := range h.pub.forJob(job.ID) {
				if evt.Stage != stage {
					continue
				}
				switch evt.Status {
				case events.StatusFailed:
					failed++
				case events.StatusCompleted:
					completed++
				}
			}
			if failed > 1 || (failed == 1 && completed != 0) {
				t.Fatalf("job %d stage %s: %d failed and %d completed events", i, stage, failed, completed)
			}
		}
	}
}

func TestSubmitAfterStop(t *testing.T) {
	h := newHarness(t, nil)
	h.scheduler.Stop()
	_, err := h.scheduler.Submit(context.Background(), pipeline.Submission{
		MediaID: h.media.ID, StartTime: 0, EndTime: 1, Audio: strings.NewReader("a"),
	})
	if !errors.Is(err, pipeline.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

// hookedStore lets tests intercept store calls made by the scheduler.
type hookedStore struct {
	annotations.Store
	slots      chan struct{}
	onCreate   func()
	onComplete func(id int64, stage annotations.Stage)
}

func (s *hookedStore) CreateJob(ctx context.Context, job annotations.NewJob) (*annotations.Job, error) {
	if s.onCreate != nil {
		s.onCreate()
	}
	return s.Store.CreateJob(ctx, job)
}

func (s *hookedStore) Acquire(ctx context.Context) (annotations.Handle, error) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	handle, err := s.Store.Acquire(ctx)
	if err != nil {
		s.release()
		return nil, err
	}
	return &hookedHandle{Handle: handle, store: s}, nil
}

func (s *hookedStore) release() {
	if s.slots != nil {
		<-s.slots
	}
}

type hookedHandle struct {
	annotations.Handle
	store *hookedStore
	once  sync.Once
}

func (h *hookedHandle) Complete(ctx context.Context, id int64, stage annotations.Stage, text string) error {
	if err := h.Handle.Complete(ctx, id, stage, text); err != nil {
		return err
	}
	if h.store.onComplete != nil {
		h.store.onComplete(id, stage)
	}
	return nil
}

func (h *hookedHandle) Close() error {
	err := h.Handle.Close()
	h.once.Do(h.store.release)
	return err
}

func TestRemoteCallsDoNotHoldStoreHandles(t *testing.T) {
	hooked := &hookedStore{slots: make(chan struct{}, 1)}
	h := newWrappedHarness(t, func(store annotations.Store) annotations.Store {
		hooked.Store = store
		return hooked
	}, nil)
	entered := make(chan struct{}, 3)
	release := make(chan struct{})
	h.tr.fn = func(context.Context, string, string) (string, error) {
		entered <- struct{}{}
		<-release
		return "hello", nil
	}

	for i := 0; i < 3; i++ {
		h.submit(t, fmt.Sprintf("audio-%d", i))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			close(release)
			t.Fatalf("only %d of 3 jobs reached the remote call with one store handle available", i)
		}
	}
	close(release)
	h.scheduler.Wait()

	jobs, err := h.store.ListJobs(context.Background(), h.media.ID)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	for _, job := range jobs {
		if job.EnhancementStatus != annotations.StatusCompleted {
			t.Fatalf("expected job %d to finish, got (%s, %s)", job.ID, job.TranscriptionStatus, job.EnhancementStatus)
		}
	}
}

func TestSubmitRacingStopLeavesNothingBehind(t *testing.T) {
	hooked := &hookedStore{}
	h := newWrappedHarness(t, func(store annotations.Store) annotations.Store {
		hooked.Store = store
		return hooked
	}, nil)
	hooked.onCreate = h.scheduler.Stop

	job, err := h.scheduler.Submit(context.Background(), pipeline.Submission{
		MediaID: h.media.ID, StartTime: 0, EndTime: 1, Audio: strings.NewReader("audio"),
	})
	if !errors.Is(err, pipeline.ErrStopped) || job != nil {
		t.Fatalf("expected ErrStopped and no job, got %v, %#v", err, job)
	}
	jobs, err := h.store.ListJobs(context.Background(), h.media.ID)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected the refused job to be removed, found %d", len(jobs))
	}
	entries, err := os.ReadDir(h.cfg.Paths.AudioDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no audio left behind, found %d files", len(entries))
	}
	h.pub.mu.Lock()
	published := len(h.pub.events)
	h.pub.mu.Unlock()
	if published != 0 {
		t.Fatalf("expected no events for a refused submission, got %d", published)
	}
}

func TestDeleteDuringCompletionOrdersEvents(t *testing.T) {
	hooked := &hookedStore{}
	h := newWrappedHarness(t, func(store annotations.Store) annotations.Store {
		hooked.Store = store
		return hooked
	}, nil)
	deleted := make(chan struct{})
	hooked.onComplete = func(id int64, stage annotations.Stage) {
		if stage != annotations.StageTranscription {
			return
		}
		go func() {
			defer close(deleted)
			if _, err := h.scheduler.Delete(context.Background(), id); err != nil {
				t.Errorf("Delete failed: %v", err)
			}
		}()
		// Give Delete every chance to run before the completed event goes out.
		select {
		case <-deleted:
		case <-time.After(100 * time.Millisecond):
		}
	}

	job := h.submit(t, "audio")
	h.scheduler.Wait()
	select {
	case <-deleted:
	case <-time.After(2 * time.Second):
		t.Fatal("Delete did not finish")
	}

	evts := h.pub.forJob(job.ID)
	if len(evts) == 0 || evts[len(evts)-1].Status != events.StatusDeleted {
		t.Fatalf("expected deleted to be the last event, got %#v", evts)
	}
	var transcribed int
	for _, evt := range evts {
		if evt.Stage == string(annotations.StageTranscription) && evt.Status == events.StatusCompleted {
			transcribed++
		}
	}
	if transcribed != 1 {
		t.Fatalf("expected one transcription completed event, got %#v", evts)
	}
}
