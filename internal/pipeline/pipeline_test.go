package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
	"github.com/nextlevelbuilder/taskpulse/internal/store"
)

// taskService stubs the external analysis service for pipeline tests. Both
// endpoints count hits so tests can assert which AI calls were made.
type taskService struct {
	classifyHits  atomic.Int64
	recommendHits atomic.Int64

	record TaskRecord
	recs   map[string]any

	srv *httptest.Server
}

func newTaskService(t *testing.T, record TaskRecord, recs map[string]any) *taskService {
	t.Helper()
	ts := &taskService{record: record, recs: recs}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/process":
			ts.classifyHits.Add(1)
			json.NewEncoder(w).Encode(ts.record)
		case "/tasks/recommendations":
			ts.recommendHits.Add(1)
			json.NewEncoder(w).Encode(map[string]any{"recommendations": ts.recs})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *taskService) pipeline(pub bus.Publisher, tasks store.TaskStore, opts Options) *Pipeline {
	return New(NewClassifier(ts.srv.URL, "", time.Second), pub, tasks, opts)
}

func TestProcessMessageNoKeywordsSkipsClassifier(t *testing.T) {
	svc := newTaskService(t, TaskRecord{}, nil)
	p := svc.pipeline(&capturePub{}, nil, Options{DesktopEnabled: true})

	res, err := p.ProcessMessage(context.Background(),
		RawMessage{Text: "lunch at noon?", TS: "1.0"},
		MessageContext{ChannelID: "C01", UserID: "U1"})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Processed || res.Reason != ReasonNoTaskKeywords {
		t.Errorf("result = %+v", res)
	}
	if n := svc.classifyHits.Load(); n != 0 {
		t.Errorf("classifier called %d times for keywordless message", n)
	}
	if got := p.Tracker().Snapshot().MessagesProcessed; got != 1 {
		t.Errorf("messages_processed = %d, want 1", got)
	}
}

func TestProcessMessageNotATask(t *testing.T) {
	svc := newTaskService(t, TaskRecord{Success: true, IsTask: false, ConfidenceScore: 0.1}, nil)
	pub := &capturePub{}
	p := svc.pipeline(pub, nil, Options{DesktopEnabled: true, SlackEnabled: true})

	res, err := p.ProcessMessage(context.Background(),
		RawMessage{Text: "no deadline pressure on my side", TS: "1.0"},
		MessageContext{ChannelID: "C01", UserID: "U1"})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Processed || res.Reason != ReasonNotATask {
		t.Errorf("result = %+v", res)
	}
	if res.Analysis == nil {
		t.Error("rejection dropped the analysis record")
	}
	if len(res.DeliveryResults) != 0 || len(pub.desktop)+len(pub.dms)+len(pub.threads) != 0 {
		t.Error("non-task produced deliveries")
	}
	if n := svc.recommendHits.Load(); n != 0 {
		t.Errorf("recommendation endpoint hit %d times for a non-task", n)
	}
}

func TestProcessMessageLowConfidenceStillDelivers(t *testing.T) {
	svc := newTaskService(t, TaskRecord{
		Success:         true,
		IsTask:          true,
		ConfidenceScore: 0.2,
		TaskID:          "t-low",
		EnrichedContext: EnrichedContext{Urgency: UrgencyMedium},
	}, nil)
	p := svc.pipeline(&capturePub{}, nil, Options{
		MinConfidence:  0.4,
		DesktopEnabled: true,
		SlackEnabled:   true,
	})

	res, err := p.ProcessMessage(context.Background(),
		RawMessage{Text: "can you check the logs", TS: "2.0"},
		MessageContext{ChannelID: "C01", UserID: "U1", MessageTS: "2.0"})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !res.Processed {
		t.Fatalf("low-confidence task not delivered: %+v", res)
	}
	if res.Recommendations != nil {
		t.Errorf("recommendations generated below threshold: %v", res.Recommendations)
	}
	if n := svc.recommendHits.Load(); n != 0 {
		t.Errorf("recommendation endpoint hit %d times below threshold", n)
	}
	// Desktop plus thread; no DM without an assignee.
	if len(res.DeliveryResults) != 2 {
		t.Errorf("got %d deliveries, want 2: %+v", len(res.DeliveryResults), res.DeliveryResults)
	}
}

func TestProcessMessageDegradedClassifierRejectsCleanly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	pub := &capturePub{}
	p := New(NewClassifier(srv.URL, "", time.Second), pub, nil, Options{DesktopEnabled: true})

	res, err := p.ProcessMessage(context.Background(),
		RawMessage{Text: "urgent: fix the build", TS: "3.0"},
		MessageContext{ChannelID: "C01", UserID: "U1"})
	if err != nil {
		t.Fatalf("degraded classification surfaced as error: %v", err)
	}
	if res.Processed || res.Reason != ReasonNotATask {
		t.Errorf("result = %+v", res)
	}
	if len(pub.failures) != 0 {
		t.Errorf("degradation published processing errors: %+v", pub.failures)
	}
}

func TestProcessMessageDuplicateInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		json.NewEncoder(w).Encode(TaskRecord{Success: true, IsTask: false})
	}))
	defer srv.Close()

	p := New(NewClassifier(srv.URL, "", 5*time.Second), &capturePub{}, nil, Options{})

	msg := RawMessage{Text: "please review this", TS: "4.0"}
	mc := MessageContext{ChannelID: "C01", UserID: "U1"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.ProcessMessage(context.Background(), msg, mc)
	}()

	// Wait until the first copy is parked inside classification.
	deadline := time.Now().Add(2 * time.Second)
	for p.Tracker().InFlight() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first message never reached in-flight state")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := p.ProcessMessage(context.Background(), msg, mc)
	if !errors.Is(err, ErrInFlight) {
		t.Errorf("duplicate intake = %v, want ErrInFlight", err)
	}

	close(release)
	wg.Wait()

	if got := p.Tracker().InFlight(); got != 0 {
		t.Errorf("InFlight after completion = %d, want 0", got)
	}
}

// failStore fails every save so the pipeline's persistence error path can be
// exercised.
type failStore struct{ store.MemoryStore }

func (*failStore) SaveTask(context.Context, *store.ProcessedTask) error {
	return errors.New("disk full")
}

func TestProcessMessageStoreFailureIsError(t *testing.T) {
	svc := newTaskService(t, TaskRecord{
		Success: true, IsTask: true, ConfidenceScore: 0.9, TaskID: "t9",
		EnrichedContext: EnrichedContext{Urgency: UrgencyLow},
	}, nil)
	pub := &capturePub{}
	p := svc.pipeline(pub, &failStore{}, Options{DesktopEnabled: true})

	_, err := p.ProcessMessage(context.Background(),
		RawMessage{Text: "todo: rotate the certs", TS: "5.0"},
		MessageContext{ChannelID: "C01", UserID: "U1"})
	if err == nil {
		t.Fatal("store failure swallowed")
	}
	if len(pub.failures) != 1 {
		t.Errorf("got %d processing error events, want 1", len(pub.failures))
	}
	if got := p.Tracker().Snapshot().Errors; got != 1 {
		t.Errorf("errors counter = %d, want 1", got)
	}
	if got := p.Tracker().InFlight(); got != 0 {
		t.Errorf("in-flight entry leaked on error path: %d", got)
	}
}

func TestProcessMessageEndToEnd(t *testing.T) {
	svc := newTaskService(t, TaskRecord{
		Success:         true,
		IsTask:          true,
		ConfidenceScore: 0.8,
		TaskID:          "t1",
		EnrichedContext: EnrichedContext{
			Assignee:       "U123",
			ActionRequired: "Review PR #42 by Friday",
			Urgency:        UrgencyHigh,
		},
	}, map[string]any{
		"tool_recommendations": []any{"open PR #42", "ping the author"},
	})

	b := bus.New()
	var (
		mu        sync.Mutex
		dms       []bus.SlackDMDelivery
		threads   []bus.SlackThreadDelivery
		desktops  []bus.DesktopDelivery
		processed []bus.TaskProcessed
	)
	b.Subscribe("test", bus.Handlers{
		DesktopDelivery: func(ev bus.DesktopDelivery) error {
			mu.Lock()
			defer mu.Unlock()
			desktops = append(desktops, ev)
			return nil
		},
		SlackDM: func(ev bus.SlackDMDelivery) error {
			mu.Lock()
			defer mu.Unlock()
			dms = append(dms, ev)
			return nil
		},
		SlackThread: func(ev bus.SlackThreadDelivery) error {
			mu.Lock()
			defer mu.Unlock()
			threads = append(threads, ev)
			return nil
		},
		TaskProcessed: func(ev bus.TaskProcessed) {
			mu.Lock()
			defer mu.Unlock()
			processed = append(processed, ev)
		},
	})

	mem := store.NewMemoryStore()
	p := svc.pipeline(b, mem, Options{
		MinConfidence:  0.4,
		DesktopEnabled: true,
		SlackEnabled:   true,
	})

	res, err := p.ProcessMessage(context.Background(),
		RawMessage{Text: "Avi can you review PR #42 by Friday? This is urgent.", TS: "1712345678.000100"},
		MessageContext{
			ChannelID:      "C01ABC",
			ChannelName:    "eng",
			UserID:         "U999",
			OrganizationID: "org1",
			MessageTS:      "1712345678.000100",
		})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if !res.Processed || res.TaskID != "t1" {
		t.Fatalf("result = %+v", res)
	}
	if res.Recommendations == nil {
		t.Error("recommendations missing above threshold")
	}
	if n := svc.recommendHits.Load(); n != 1 {
		t.Errorf("recommendation endpoint hit %d times, want 1", n)
	}

	if len(res.DeliveryResults) != 3 {
		t.Fatalf("got %d deliveries, want 3: %+v", len(res.DeliveryResults), res.DeliveryResults)
	}
	for i, r := range res.DeliveryResults {
		if !r.Success {
			t.Errorf("delivery %d failed: %s", i, r.Error)
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if len(desktops) != 1 || desktops[0].Priority != bus.PriorityHigh {
		t.Errorf("desktop deliveries = %+v", desktops)
	}
	if len(dms) != 1 || dms[0].TargetUser != "U123" || dms[0].Priority != bus.PriorityHigh {
		t.Errorf("dm deliveries = %+v", dms)
	}
	if len(threads) != 1 || threads[0].ChannelID != "C01ABC" ||
		threads[0].ThreadTS != "1712345678.000100" || threads[0].Priority != bus.PriorityLow {
		t.Errorf("thread deliveries = %+v", threads)
	}

	if len(processed) != 1 {
		t.Fatalf("got %d task_processed events, want 1", len(processed))
	}
	ev := processed[0]
	if ev.TaskID != "t1" || !ev.HasRecommendations || len(ev.DeliveryResults) != 3 {
		t.Errorf("task_processed = %+v", ev)
	}

	saved, err := mem.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if saved.Assignee != "U123" || saved.Summary != "Review PR #42 by Friday" || saved.Urgency != UrgencyHigh {
		t.Errorf("stored task = %+v", saved)
	}

	stats := p.Tracker().Snapshot()
	if stats.MessagesProcessed != 1 || stats.TasksDetected != 1 ||
		stats.RecommendationsGenerated != 1 || stats.DeliveriesCompleted != 3 {
		t.Errorf("stats = %+v", stats)
	}
}
