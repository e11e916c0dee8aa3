package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClassifierClassify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/process" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TaskMessage != "please review the doc" {
			t.Errorf("task_message = %q", req.TaskMessage)
		}
		if req.OrganizationID != "org1" {
			t.Errorf("organization_id = %q", req.OrganizationID)
		}

		json.NewEncoder(w).Encode(TaskRecord{
			Success:         true,
			IsTask:          true,
			ConfidenceScore: 0.85,
			TaskID:          "t1",
			EnrichedContext: EnrichedContext{Assignee: "U123", Urgency: UrgencyHigh},
		})
	}))
	defer srv.Close()

	c := NewClassifier(srv.URL, "", time.Second)
	record := c.Classify(context.Background(),
		RawMessage{Text: "please review the doc", TS: "1.0"},
		MessageContext{ChannelID: "C01", UserID: "U9", OrganizationID: "org1"})

	if !record.IsTask || record.TaskID != "t1" || record.ConfidenceScore != 0.85 {
		t.Errorf("unexpected record: %+v", record)
	}
}

func TestClassifierClassify_DegradesNeverErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
		{
			name: "missing task_id on detected task",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"success": true, "is_task": true, "confidence_score": 0.9})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClassifier(srv.URL, "", time.Second)
			record := c.Classify(context.Background(), RawMessage{Text: "x", TS: "1"}, MessageContext{})

			if record.IsTask || record.Success || record.ConfidenceScore != 0 {
				t.Errorf("expected degraded record, got %+v", record)
			}
		})
	}
}

func TestClassifierClassify_TimeoutDegradesWithinDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewClassifier(srv.URL, "", 100*time.Millisecond)

	start := time.Now()
	record := c.Classify(context.Background(), RawMessage{Text: "x", TS: "1"}, MessageContext{})
	elapsed := time.Since(start)

	if record.IsTask || record.Success {
		t.Errorf("expected degraded record, got %+v", record)
	}
	if elapsed > time.Second {
		t.Errorf("classification took %v, deadline was 100ms", elapsed)
	}
}

func TestClassifierRecommendations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/recommendations" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"recommendations": map[string]any{
				"tool_recommendations": []string{"open the PR", "ping reviewers"},
			},
		})
	}))
	defer srv.Close()

	c := NewClassifier(srv.URL, "", time.Second)
	recs, err := c.Recommendations(context.Background(), EnrichedContext{Urgency: UrgencyHigh})
	if err != nil {
		t.Fatalf("Recommendations() error: %v", err)
	}
	if _, ok := recs["tool_recommendations"]; !ok {
		t.Errorf("missing tool_recommendations in %v", recs)
	}
}
