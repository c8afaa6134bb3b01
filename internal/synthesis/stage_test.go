package synthesis

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/voicerelay/domain"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

// fakeTTS returns the text as audio after a per-text delay
type fakeTTS struct {
	delays   map[string]time.Duration
	fail     map[string]error
	inFlight int32
	maxSeen  int32
	mu       sync.Mutex
	calls    []string
}

func (f *fakeTTS) ConvertTextToSpeech(ctx context.Context, text string, cfg repositories.VoiceConfig) (*repositories.Audio, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.maxSeen)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxSeen, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	select {
	case <-time.After(f.delays[text]):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := f.fail[text]; err != nil {
		return nil, err
	}
	return &repositories.Audio{Data: []byte("audio:" + text), Format: cfg.Format}, nil
}

func (f *fakeTTS) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestStage(t *testing.T, tts repositories.TextToSpeech) *Stage {
	return NewStage(tts, repositories.VoiceConfig{Format: "mp3"}, zaptest.NewLogger(t))
}

func TestStage_OrderWithReversedLatency(t *testing.T) {
	tts := &fakeTTS{delays: map[string]time.Duration{
		"part one\n\n": 500 * time.Millisecond,
		"part two":     10 * time.Millisecond,
	}}
	stage := newTestStage(t, tts)

	if err := stage.Enqueue(domain.TextPart{Index: 0, Text: "part one\n\n"}); err != nil {
		t.Fatal(err)
	}
	if err := stage.Enqueue(domain.TextPart{Index: 1, Text: "part two", IsFinal: true}); err != nil {
		t.Fatal(err)
	}

	var got []domain.SynthesisResult
	err := stage.Run(context.Background(), func(r domain.SynthesisResult) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Part.Index != 0 || got[1].Part.Index != 1 {
		t.Errorf("results out of order: %d, %d", got[0].Part.Index, got[1].Part.Index)
	}
	if string(got[0].Audio) != "audio:part one\n\n" || got[0].Format != "mp3" {
		t.Errorf("unexpected first result %#v", got[0])
	}
}

func TestStage_RandomLatencyKeepsOrderAndSingleFlight(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tts := &fakeTTS{delays: map[string]time.Duration{}}
	const n = 12
	texts := make([]string, n)
	for i := range texts {
		texts[i] = string(rune('a'+i)) + "\n\n"
		tts.delays[texts[i]] = time.Duration(rng.Intn(20)) * time.Millisecond
	}
	stage := newTestStage(t, tts)

	go func() {
		for i, text := range texts {
			time.Sleep(time.Duration(rng.Intn(3)) * time.Millisecond)
			_ = stage.Enqueue(domain.TextPart{Index: i, Text: text, IsFinal: i == n-1})
		}
	}()

	var got []int
	err := stage.Run(context.Background(), func(r domain.SynthesisResult) error {
		if atomic.LoadInt32(&tts.inFlight) != 0 {
			t.Errorf("synthesis in flight while emitting part %d", r.Part.Index)
		}
		got = append(got, r.Part.Index)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, idx := range got {
		if idx != i {
			t.Fatalf("result %d has index %d", i, idx)
		}
	}
	if len(got) != n {
		t.Errorf("got %d results, want %d", len(got), n)
	}
	if peak := atomic.LoadInt32(&tts.maxSeen); peak != 1 {
		t.Errorf("max concurrent synthesis calls = %d, want 1", peak)
	}
}

func TestStage_EmptyPartSkipsSynthesis(t *testing.T) {
	tts := &fakeTTS{}
	stage := newTestStage(t, tts)
	_ = stage.Enqueue(domain.TextPart{Index: 0, Text: "  \n", IsFinal: true})

	var got []domain.SynthesisResult
	err := stage.Run(context.Background(), func(r domain.SynthesisResult) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if tts.callCount() != 0 {
		t.Errorf("synthesis called %d times, want 0", tts.callCount())
	}
	if len(got) != 1 || len(got[0].Audio) != 0 || !got[0].Part.IsFinal {
		t.Errorf("got %#v, want one empty final result", got)
	}
}

func TestStage_SynthesisErrorStopsQueue(t *testing.T) {
	boom := errors.New("voice unavailable")
	tts := &fakeTTS{fail: map[string]error{"second": boom}}
	stage := newTestStage(t, tts)
	_ = stage.Enqueue(domain.TextPart{Index: 0, Text: "first"})
	_ = stage.Enqueue(domain.TextPart{Index: 1, Text: "second"})
	_ = stage.Enqueue(domain.TextPart{Index: 2, Text: "third", IsFinal: true})

	var got []int
	err := stage.Run(context.Background(), func(r domain.SynthesisResult) error {
		got = append(got, r.Part.Index)
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("emitted %v, want only part 0", got)
	}
	if tts.callCount() != 2 {
		t.Errorf("synthesis called %d times, want 2", tts.callCount())
	}
}

func TestStage_DrainsAfterProducerAbort(t *testing.T) {
	tts := &fakeTTS{}
	stage := newTestStage(t, tts)
	_ = stage.Enqueue(domain.TextPart{Index: 0, Text: "one\n\n"})
	_ = stage.Enqueue(domain.TextPart{Index: 1, Text: "two\n\n"})
	stage.CloseQueue()

	if err := stage.Enqueue(domain.TextPart{Index: 2, Text: "late"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() after close error = %v, want ErrQueueClosed", err)
	}

	var got []int
	err := stage.Run(context.Background(), func(r domain.SynthesisResult) error {
		got = append(got, r.Part.Index)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("emitted %v, want both queued parts", got)
	}
}

func TestStage_CancelDiscardsInFlight(t *testing.T) {
	tts := &fakeTTS{delays: map[string]time.Duration{"slow": time.Second}}
	stage := newTestStage(t, tts)
	_ = stage.Enqueue(domain.TextPart{Index: 0, Text: "slow"})
	_ = stage.Enqueue(domain.TextPart{Index: 1, Text: "next", IsFinal: true})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	emitted := 0
	err := stage.Run(ctx, func(domain.SynthesisResult) error {
		emitted++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if emitted != 0 {
		t.Errorf("emitted %d results after cancellation", emitted)
	}
	if tts.callCount() != 1 {
		t.Errorf("synthesis called %d times, want 1", tts.callCount())
	}
}

func TestStage_EmitErrorStops(t *testing.T) {
	stage := newTestStage(t, &fakeTTS{})
	_ = stage.Enqueue(domain.TextPart{Index: 0, Text: "a"})
	_ = stage.Enqueue(domain.TextPart{Index: 1, Text: "b", IsFinal: true})

	broken := errors.New("broken pipe")
	calls := 0
	err := stage.Run(context.Background(), func(domain.SynthesisResult) error {
		calls++
		return broken
	})
	if !errors.Is(err, broken) {
		t.Fatalf("Run() error = %v, want %v", err, broken)
	}
	if calls != 1 {
		t.Errorf("emit called %d times, want 1", calls)
	}
}

type countingRecorder struct {
	count int32
	errs  int32
}

func (r *countingRecorder) RecordSynthesis(_ context.Context, _ time.Duration, err error) {
	atomic.AddInt32(&r.count, 1)
	if err != nil {
		atomic.AddInt32(&r.errs, 1)
	}
}

func TestStage_RecorderObservesCalls(t *testing.T) {
	rec := &countingRecorder{}
	stage := NewStage(&fakeTTS{}, repositories.VoiceConfig{}, zaptest.NewLogger(t), WithRecorder(rec))
	_ = stage.Enqueue(domain.TextPart{Index: 0, Text: "a"})
	_ = stage.Enqueue(domain.TextPart{Index: 1, Text: "", IsFinal: true})

	if err := stage.Run(context.Background(), func(domain.SynthesisResult) error { return nil }); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.count != 1 || rec.errs != 0 {
		t.Errorf("recorder saw %d calls and %d errors, want 1 and 0", rec.count, rec.errs)
	}
}
