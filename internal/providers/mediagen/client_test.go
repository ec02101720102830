package mediagen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"promoforge/internal/domain"
)

func validVideoRequest() VideoTaskRequest {
	return VideoTaskRequest{
		ImageURL:        "https://cdn.example.com/image.png",
		Prompt:          "slow pan across the product",
		DurationSeconds: 3,
		Width:           1280,
		Height:          720,
	}
}

func TestSubmitVideoTaskValidation(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "https://provider.invalid"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*VideoTaskRequest)
	}{
		{name: "missing image", mutate: func(r *VideoTaskRequest) { r.ImageURL = "" }},
		{name: "duration too short", mutate: func(r *VideoTaskRequest) { r.DurationSeconds = 1.0 }},
		{name: "duration too long", mutate: func(r *VideoTaskRequest) { r.DurationSeconds = 12.5 }},
		{name: "prompt too short", mutate: func(r *VideoTaskRequest) { r.Prompt = "hi" }},
		{name: "unsupported resolution", mutate: func(r *VideoTaskRequest) { r.Width = 640; r.Height = 480 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validVideoRequest()
			tc.mutate(&req)
			_, err := client.SubmitVideoTask(context.Background(), req)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("SubmitVideoTask() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestSubmitVideoTask(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/tasks/video" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["duration"] != 3.0 {
			t.Errorf("duration = %v, want 3", payload["duration"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "task-123"})
	}))
	defer srv.Close()

	client, err := NewClient(Options{BaseURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	taskID, err := client.SubmitVideoTask(context.Background(), validVideoRequest())
	if err != nil {
		t.Fatalf("SubmitVideoTask: %v", err)
	}
	if taskID != "task-123" {
		t.Fatalf("taskID = %q, want task-123", taskID)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestSubmitVideoTaskErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{name: "unauthorized is credential failure", status: http.StatusUnauthorized, sentinel: domain.ErrProviderAuth},
		{name: "bad request is not retryable", status: http.StatusBadRequest, sentinel: domain.ErrInvalidRequest},
		{name: "server error is transient", status: http.StatusBadGateway, sentinel: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": tc.status, "message": "nope"},
				})
			}))
			defer srv.Close()

			client, err := NewClient(Options{BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			_, err = client.SubmitVideoTask(context.Background(), validVideoRequest())
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.sentinel != nil && !errors.Is(err, tc.sentinel) {
				t.Fatalf("error = %v, want %v", err, tc.sentinel)
			}
			if tc.sentinel == nil && (errors.Is(err, domain.ErrProviderAuth) || errors.Is(err, domain.ErrInvalidRequest)) {
				t.Fatalf("transient error wrongly classified: %v", err)
			}
		})
	}
}

func TestTaskStatus(t *testing.T) {
	tests := []struct {
		name      string
		body      map[string]any
		wantState TaskState
		wantURL   string
		wantCost  float64
		wantErr   bool
	}{
		{
			name:      "processing",
			body:      map[string]any{"task_id": "t1", "status": "processing"},
			wantState: TaskStateProcessing,
		},
		{
			name:      "success with result",
			body:      map[string]any{"task_id": "t1", "status": "success", "url": "https://cdn/v.mp4", "cost": 0.35},
			wantState: TaskStateSuccess,
			wantURL:   "https://cdn/v.mp4",
			wantCost:  0.35,
		},
		{
			name:      "failed with message",
			body:      map[string]any{"task_id": "t1", "status": "failed", "error": "nsfw filter"},
			wantState: TaskStateFailed,
		},
		{
			name:    "unknown state",
			body:    map[string]any{"task_id": "t1", "status": "sideways"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/tasks/t1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			client, err := NewClient(Options{BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			result, err := client.TaskStatus(context.Background(), "t1")
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("TaskStatus: %v", err)
			}
			if result.State != tc.wantState {
				t.Fatalf("State = %q, want %q", result.State, tc.wantState)
			}
			if result.ResultURL != tc.wantURL {
				t.Fatalf("ResultURL = %q, want %q", result.ResultURL, tc.wantURL)
			}
			if result.Cost != tc.wantCost {
				t.Fatalf("Cost = %v, want %v", result.Cost, tc.wantCost)
			}
		})
	}
}

func TestSubmitMusicTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tasks/music" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "music-9"})
	}))
	defer srv.Close()

	client, err := NewClient(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	taskID, err := client.SubmitMusicTask(context.Background(), MusicTaskRequest{Prompt: "upbeat synth", DurationSeconds: 8})
	if err != nil {
		t.Fatalf("SubmitMusicTask: %v", err)
	}
	if taskID != "music-9" {
		t.Fatalf("taskID = %q", taskID)
	}

	if _, err := client.SubmitMusicTask(context.Background(), MusicTaskRequest{Prompt: "upbeat synth"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("zero duration should be rejected, got %v", err)
	}
}
