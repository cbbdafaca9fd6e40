package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-kobo-connect/internal/features/credential"

	"go.uber.org/zap"
)

// apiError carries the HTTP status of a failed Kobo call
type apiError struct {
	StatusCode int
	URL        string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("kobo: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Client is a thin wrapper over the Kobo REST API
type Client struct {
	baseURL    string
	apiVersion int
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client from a stored credential
func NewClient(cred *credential.Credential, logger *zap.Logger) *Client {
	version := cred.APIVersion
	if version == 0 {
		version = 2
	}
	return &Client{
		baseURL:    strings.TrimRight(cred.BaseURL, "/"),
		apiVersion: version,
		token:      cred.Token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/api/v%d/%s", c.baseURL, c.apiVersion, strings.TrimLeft(path, "/"))
}

// getJSON performs an authenticated GET and decodes the JSON response.
// Some Kobo deployments prefix responses with a UTF-8 BOM; decoding is
// retried once after stripping it.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("format", "json")

	rawURL := c.endpoint(path) + "?" + params.Encode()
	return c.getJSONURL(ctx, rawURL, out)
}

// getJSONURL fetches an absolute URL (used to follow server-provided next links)
func (c *Client) getJSONURL(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kobo: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &apiError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kobo: reading response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		trimmed := bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
		if retryErr := json.Unmarshal(trimmed, out); retryErr != nil {
			return fmt.Errorf("kobo: decoding response from %s: %w", rawURL, err)
		}
	}
	return nil
}

// GetFormSchema fetches the asset definition (survey questions + choice lists)
func (c *Client) GetFormSchema(ctx context.Context, formUID string) (*Asset, error) {
	var asset Asset
	if err := c.getJSON(ctx, "assets/"+formUID+"/", nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// GetSubmission fetches a single submission by its remote id.
// A 404 is not an error: it returns (nil, nil).
func (c *Client) GetSubmission(ctx context.Context, formUID, submissionID string) (Submission, error) {
	var sub Submission
	err := c.getJSON(ctx, "assets/"+formUID+"/data/"+submissionID+"/", nil, &sub)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// submissionPage mirrors the paginated list response
type submissionPage struct {
	Count    int          `json:"count"`
	Next     string       `json:"next"`
	Previous string       `json:"previous"`
	Results  []Submission `json:"results"`
}

// SubmissionIterator walks the submissions of a form page by page.
// Each call to Submissions starts a fresh pagination from page one.
type SubmissionIterator struct {
	client   *Client
	formUID  string
	pageSize int
	started  bool
	nextURL  string
	buf      []Submission
	idx      int
}

// Submissions returns a lazy iterator over the form's submissions
func (c *Client) Submissions(formUID string, pageSize int) *SubmissionIterator {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SubmissionIterator{
		client:   c,
		formUID:  formUID,
		pageSize: pageSize,
	}
}

// Next returns the next submission. The bool result is false once the
// sequence is exhausted. Pages are fetched synchronously as needed.
func (it *SubmissionIterator) Next(ctx context.Context) (Submission, bool, error) {
	for it.idx >= len(it.buf) {
		if it.started && it.nextURL == "" {
			return nil, false, nil
		}

		var page submissionPage
		if !it.started {
			params := url.Values{}
			params.Set("limit", fmt.Sprintf("%d", it.pageSize))
			if err := it.client.getJSON(ctx, "assets/"+it.formUID+"/data/", params, &page); err != nil {
				return nil, false, err
			}
			it.started = true
		} else {
			if err := it.client.getJSONURL(ctx, it.nextURL, &page); err != nil {
				return nil, false, err
			}
		}

		it.buf = page.Results
		it.idx = 0
		it.nextURL = page.Next
	}

	sub := it.buf[it.idx]
	it.idx++
	return sub, true, nil
}
