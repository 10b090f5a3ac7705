// Package github adapts the diff-coverage report to GitHub's PR comment
// and check-run annotation APIs, following the teacher's
// infrastructure/github/client.go HTTP client shape.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/report"
)

// DefaultAPIURL is GitHub's REST API endpoint.
const DefaultAPIURL = "https://api.github.com"

// CommentMarker identifies this tool's comments for update-in-place rather
// than piling up a new comment per push.
const CommentMarker = "<!-- covrs-coverage-report -->"

// annotationBatchSize is the maximum number of annotations GitHub's checks
// API accepts per request.
const annotationBatchSize = 50

// Client is a thin GitHub REST API adapter.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
}

// NewClient creates a client, reading the token from GITHUB_TOKEN when not
// supplied directly.
func NewClient(token string) *Client {
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	return &Client{httpClient: &http.Client{}, apiURL: DefaultAPIURL, token: token}
}

// NewClientWithHTTP creates a client against a custom HTTP client and API
// base URL, for tests.
func NewClientWithHTTP(token string, httpClient *http.Client, apiURL string) *Client {
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{httpClient: httpClient, apiURL: apiURL, token: token}
}

type issueComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// UpsertCoverageComment posts body as a new PR comment, or updates the
// existing covrs comment (identified by CommentMarker) in place.
func (c *Client) UpsertCoverageComment(ctx context.Context, owner, repo string, prNumber int, body string) error {
	id, err := c.findCoverageComment(ctx, owner, repo, prNumber)
	if err != nil {
		return err
	}
	if id == 0 {
		_, err := c.createComment(ctx, owner, repo, prNumber, body)
		return err
	}
	return c.updateComment(ctx, owner, repo, id, body)
}

func (c *Client) findCoverageComment(ctx context.Context, owner, repo string, prNumber int) (int64, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.apiURL, owner, repo, prNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &coreerrors.ExternalServiceError{Service: "github", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &coreerrors.ExternalServiceError{Service: "github", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apiError(resp)
	}

	var comments []issueComment
	if err := json.NewDecoder(resp.Body).Decode(&comments); err != nil {
		return 0, &coreerrors.ExternalServiceError{Service: "github", Err: err}
	}
	for _, cm := range comments {
		if strings.Contains(cm.Body, CommentMarker) {
			return cm.ID, nil
		}
	}
	return 0, nil
}

func (c *Client) createComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.apiURL, owner, repo, prNumber)
	resp, err := c.doJSON(ctx, http.MethodPost, url, map[string]string{"body": body}, http.StatusCreated)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var cm issueComment
	if err := json.NewDecoder(resp.Body).Decode(&cm); err != nil {
		return 0, &coreerrors.ExternalServiceError{Service: "github", Err: err}
	}
	return cm.ID, nil
}

func (c *Client) updateComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", c.apiURL, owner, repo, commentID)
	resp, err := c.doJSON(ctx, http.MethodPatch, url, map[string]string{"body": body}, http.StatusOK)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// checkRunAnnotation mirrors the GitHub Checks API annotation shape.
type checkRunAnnotation struct {
	Path            string `json:"path"`
	StartLine       int    `json:"start_line"`
	EndLine         int    `json:"end_line"`
	AnnotationLevel string `json:"annotation_level"`
	Message         string `json:"message"`
}

// UpdateCheckRunAnnotations submits report's annotations to a check run in
// batches of annotationBatchSize, the limit GitHub's API enforces per call.
func (c *Client) UpdateCheckRunAnnotations(ctx context.Context, owner, repo string, checkRunID int64, annotations []report.Annotation) error {
	for start := 0; start < len(annotations); start += annotationBatchSize {
		end := start + annotationBatchSize
		if end > len(annotations) {
			end = len(annotations)
		}
		if err := c.submitAnnotationBatch(ctx, owner, repo, checkRunID, annotations[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) submitAnnotationBatch(ctx context.Context, owner, repo string, checkRunID int64, batch []report.Annotation) error {
	out := make([]checkRunAnnotation, len(batch))
	for i, a := range batch {
		out[i] = checkRunAnnotation{
			Path:            a.Path,
			StartLine:       a.StartLine,
			EndLine:         a.EndLine,
			AnnotationLevel: "warning",
			Message:         a.Message,
		}
	}
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs/%d", c.apiURL, owner, repo, checkRunID)
	payload := map[string]any{
		"output": map[string]any{
			"title":       "Diff coverage",
			"summary":     fmt.Sprintf("%d uncovered range(s)", len(batch)),
			"annotations": out,
		},
	}
	resp, err := c.doJSON(ctx, http.MethodPatch, url, payload, http.StatusOK)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, wantStatus int) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &coreerrors.ExternalServiceError{Service: "github", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, &coreerrors.ExternalServiceError{Service: "github", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &coreerrors.ExternalServiceError{Service: "github", Err: err}
	}
	if resp.StatusCode != wantStatus {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &coreerrors.ExternalServiceError{
		Service: "github",
		Err:     fmt.Errorf("%s: %s", resp.Status, string(body)),
	}
}

// WithMarker appends the hidden marker comment used to find this tool's
// previous comment on a subsequent push.
func WithMarker(body string) string {
	return body + "\n" + CommentMarker + "\n"
}
