// Package platform is the HTTP client for the textbook platform's
// submission API. It implements grading.Fetcher.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tagrade/tagrade/internal/datadir"
	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/grading"
	"github.com/tagrade/tagrade/internal/logging"
	"github.com/tagrade/tagrade/internal/roster"
	"github.com/tagrade/tagrade/internal/util"
)

const (
	defaultTimeout = 30 * time.Second

	// maxBodyBytes bounds one part's response.
	maxBodyBytes = 64 << 20

	fileMode = 0o664
)

// Client fetches submissions and writes them under the shared
// submissions directory.
type Client struct {
	baseURL    *url.URL
	token      string
	classCode  string
	layout     datadir.Layout
	httpClient *http.Client
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the class at baseURL.
func NewClient(baseURL string, layout datadir.Layout, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.NewValidationError("platform base URL is not configured").WithField("fetch.base_url")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.NewValidationError("platform base URL must be an http(s) URL").
			WithField("fetch.base_url").WithValue(baseURL)
	}

	c := &Client{
		baseURL:    u,
		classCode:  layout.ClassCode,
		layout:     layout,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// submissionResponse is the body of a successful part request.
type submissionResponse struct {
	Status      string       `json:"status"`
	Detail      string       `json:"detail,omitempty"`
	Submissions []submission `json:"submissions"`
}

type submission struct {
	Name        string    `json:"name"`
	Content     []byte    `json:"content"` // base64 in JSON
	SubmittedAt time.Time `json:"submitted_at"`
	Score       float64   `json:"score"`
}

const statusCompileError = "compile_error"

// Fetch downloads every part of lab for student. Transient failures are
// reported as grading.StatusTransientError with a nil error.
func (c *Client) Fetch(ctx context.Context, student roster.Student, lab roster.Lab) (grading.Result, error) {
	key := student.Key()
	log := c.logger.WithLab(lab.Name).WithStudent(key)

	var (
		files        []grading.File
		details      []string
		compileError bool
		droppedLate  int
	)
	for _, part := range lab.Parts {
		resp, found, err := c.fetchPart(ctx, lab.Name, part, key)
		if err != nil {
			if errors.IsRetryable(err) {
				return grading.Result{Status: grading.StatusTransientError, Detail: err.Error()}, nil
			}
			return grading.Result{}, err
		}
		if !found {
			continue
		}
		if resp.Status == statusCompileError {
			compileError = true
		}
		if resp.Detail != "" {
			details = append(details, part.Name+": "+resp.Detail)
		}

		subs := resp.Submissions[:0]
		for _, s := range resp.Submissions {
			if lab.IsLate(s.SubmittedAt) {
				droppedLate++
				continue
			}
			subs = append(subs, s)
		}

		written, err := c.write(lab.Name, key, part, pick(subs, lab.Options.HighestScoreOnly))
		if err != nil {
			return grading.Result{}, err
		}
		files = append(files, written...)
	}

	if droppedLate > 0 {
		details = append(details, fmt.Sprintf("%d late submission(s) discarded", droppedLate))
		log.Info("discarded late submissions", "count", droppedLate)
	}

	result := grading.Result{Files: files, Detail: strings.Join(details, "; ")}
	switch {
	case compileError:
		result.Status = grading.StatusCompileError
	case len(files) == 0:
		result.Status = grading.StatusNoSubmission
	default:
		result.Status = grading.StatusOK
	}
	return result, nil
}

// fetchPart requests one part. found is false on 404.
func (c *Client) fetchPart(ctx context.Context, lab string, part roster.Part, student string) (submissionResponse, bool, error) {
	var out submissionResponse

	endpoint := c.baseURL.JoinPath("courses", c.classCode, "labs", part.PartID, "submissions", student)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return out, false, errors.NewFetchError("create request", err).WithTarget(lab, student)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return out, false, ctx.Err()
		}
		return out, false, errors.NewFetchError("send request", err).WithTarget(lab, student).WithTransient(true)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return out, false, ctx.Err()
		}
		return out, false, errors.NewFetchError("read response", err).WithTarget(lab, student).WithTransient(true)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return out, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return out, false, errors.NewFetchError(fmt.Sprintf("platform returned %d", resp.StatusCode), nil).
			WithTarget(lab, student).WithTransient(true)
	case resp.StatusCode != http.StatusOK:
		return out, false, errors.NewFetchError(
			fmt.Sprintf("platform returned %d: %s", resp.StatusCode, util.TruncateString(strings.TrimSpace(string(body)), 200)),
			nil,
		).WithTarget(lab, student)
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, false, errors.NewFetchError("decode response", err).WithTarget(lab, student)
	}
	return out, true, nil
}

// pick chooses which submissions to keep: the single best-scoring one, or
// the latest version of every file name.
func pick(subs []submission, highestOnly bool) []submission {
	if len(subs) == 0 {
		return nil
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
	})

	if highestOnly {
		best := subs[0]
		for _, s := range subs[1:] {
			if s.Score >= best.Score {
				best = s
			}
		}
		return []submission{best}
	}

	latest := make(map[string]int, len(subs))
	var names []string
	for i, s := range subs {
		if _, ok := latest[s.Name]; !ok {
			names = append(names, s.Name)
		}
		latest[s.Name] = i
	}
	out := make([]submission, 0, len(names))
	for _, name := range names {
		out = append(out, subs[latest[name]])
	}
	return out
}

func (c *Client) write(lab, student string, part roster.Part, subs []submission) ([]grading.File, error) {
	if len(subs) == 0 {
		return nil, nil
	}
	dir := filepath.Join(c.layout.SubmissionDir(lab, student), util.EscapeName(part.Name))
	if err := datadir.EnsureDir(dir); err != nil {
		return nil, err
	}

	files := make([]grading.File, 0, len(subs))
	for _, s := range subs {
		name := filepath.Base(filepath.Clean("/" + s.Name))
		if name == "/" || name == "." {
			return nil, errors.NewFetchError(fmt.Sprintf("submission has an unusable file name %q", s.Name), nil).
				WithTarget(lab, student)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, s.Content, fileMode); err != nil {
			return nil, errors.NewFilesystemError("write", path, err)
		}
		files = append(files, grading.File{
			Part:        part.Name,
			Name:        name,
			Path:        path,
			Size:        int64(len(s.Content)),
			MIME:        mimetype.Detect(s.Content).String(),
			Score:       s.Score,
			SubmittedAt: s.SubmittedAt,
		})
	}
	return files, nil
}
