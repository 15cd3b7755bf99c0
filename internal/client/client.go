// Package client talks to the testdesk HTTP API. *Client satisfies session.Backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coachline/testdesk/internal/exam"
	"github.com/coachline/testdesk/internal/grading"
)

// ErrUnauthorized means the server rejected the token or the credentials.
var ErrUnauthorized = errors.New("unauthorized")

type Client struct {
	base  string
	token string
	http  *http.Client
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:  strings.TrimSuffix(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
	}
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (userID string, err error) {
	var out struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &out); err != nil {
		return "", err
	}
	c.token = out.AccessToken
	return out.UserID, nil
}

func (c *Client) Paper(ctx context.Context, examID int64) (exam.Paper, error) {
	var p exam.Paper
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/exams/%d", examID), nil, &p)
	return p, err
}

func (c *Client) SaveAnswer(ctx context.Context, examID int64, a exam.Answer) error {
	body := map[string]*exam.Option{"selected_option": a.Selected}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/exams/%d/responses/%d", examID, a.QuestionID), body, nil)
}

func (c *Client) SaveAll(ctx context.Context, examID int64, answers []exam.Answer) error {
	body := map[string][]exam.Answer{"responses": answers}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/exams/%d/responses", examID), body, nil)
}

func (c *Client) Submit(ctx context.Context, sub grading.Submission) (grading.Summary, error) {
	var sum grading.Summary
	err := c.do(ctx, http.MethodPost, "/attempts", sub, &sum)
	return sum, err
}

func (c *Client) Review(ctx context.Context, examID int64) (exam.Review, error) {
	var rev exam.Review
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/exams/%d/result", examID), nil, &rev)
	return rev, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, exam.ErrPersistence, err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return statusError(method, path, res)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// statusError turns an API error response back into the error taxonomy.
func statusError(method, path string, res *http.Response) error {
	msg := res.Status
	var eb struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	} else if s := strings.TrimSpace(string(raw)); s != "" {
		msg = s
	}
	var kind error
	switch {
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		kind = ErrUnauthorized
	case res.StatusCode == http.StatusNotFound:
		kind = exam.ErrExamNotFound
	case res.StatusCode/100 == 4:
		kind = exam.ErrInvalidRequest
	default:
		kind = exam.ErrPersistence
	}
	return fmt.Errorf("%s %s: %w (%d: %s)", method, path, kind, res.StatusCode, msg)
}
