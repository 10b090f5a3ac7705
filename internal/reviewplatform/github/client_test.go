package github

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covrs/covrs/internal/report"
)

func TestUpsertCoverageComment_CreatesWhenNoneExists(t *testing.T) {
	var createBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode([]issueComment{})
		case r.Method == http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&createBody)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(issueComment{ID: 42, Body: createBody["body"]})
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	c := NewClientWithHTTP("tok", srv.Client(), srv.URL)
	err := c.UpsertCoverageComment(t.Context(), "acme", "widget", 7, WithMarker("coverage body"))
	require.NoError(t, err)
	assert.Contains(t, createBody["body"], CommentMarker)
}

func TestUpsertCoverageComment_UpdatesExisting(t *testing.T) {
	var patchCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode([]issueComment{
				{ID: 5, Body: "old\n" + CommentMarker + "\n"},
			})
		case http.MethodPatch:
			patchCalled = true
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(issueComment{ID: 5})
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	c := NewClientWithHTTP("tok", srv.Client(), srv.URL)
	err := c.UpsertCoverageComment(t.Context(), "acme", "widget", 7, WithMarker("new body"))
	require.NoError(t, err)
	assert.True(t, patchCalled)
}

func TestUpdateCheckRunAnnotations_BatchesAtLimit(t *testing.T) {
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Output struct {
				Annotations []checkRunAnnotation `json:"annotations"`
			} `json:"output"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		batchSizes = append(batchSizes, len(payload.Output.Annotations))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	annotations := make([]report.Annotation, 120)
	for i := range annotations {
		annotations[i] = report.Annotation{Path: "a.go", StartLine: i + 1, EndLine: i + 1, Message: "missed"}
	}

	c := NewClientWithHTTP("tok", srv.Client(), srv.URL)
	err := c.UpdateCheckRunAnnotations(t.Context(), "acme", "widget", 99, annotations)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 50, 20}, batchSizes)
}

func TestApiError_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	c := NewClientWithHTTP("tok", srv.Client(), srv.URL)
	err := c.UpsertCoverageComment(t.Context(), "acme", "widget", 1, "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github")
}
