package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AzielCF/az-postsync/domains/publisher"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://graph.facebook.com/v21.0"
	defaultTimeout = 30 * time.Second

	// subcode the Graph API uses for "maximum posts per 24h reached"
	subcodePublishLimit = 2207042
)

// Graph API codes that mean "slow down" rather than "this request is wrong".
var rateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true, 80002: true}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the Graph-style media publishing endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ publisher.IPlatformAPI = (*Client)(nil)

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, httpClient: hc}
}

type graphError struct {
	Error struct {
		Message     string `json:"message"`
		Type        string `json:"type"`
		Code        int    `json:"code"`
		Subcode     int    `json:"error_subcode"`
		IsTransient bool   `json:"is_transient"`
		FBTraceID   string `json:"fbtrace_id"`
	} `json:"error"`
}

func (c *Client) CreateContainer(ctx context.Context, accountID, token string, req publisher.ContainerRequest) (string, error) {
	form := url.Values{}
	switch {
	case len(req.Children) > 0:
		form.Set("media_type", "CAROUSEL")
		form.Set("children", strings.Join(req.Children, ","))
	case req.Media.Kind == publisher.MediaVideo:
		if req.IsChildItem {
			form.Set("media_type", "VIDEO")
		} else {
			form.Set("media_type", "REELS")
		}
		form.Set("video_url", req.Media.URL)
	default:
		form.Set("image_url", req.Media.URL)
	}
	if req.IsChildItem {
		form.Set("is_carousel_item", "true")
	} else if req.Caption != "" {
		form.Set("caption", req.Caption)
	}

	var resp struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("%s/%s/media", c.baseURL, url.PathEscape(accountID))
	if err := c.do(ctx, "create_container", http.MethodPost, endpoint, token, form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", publisher.Transient("create_container", fmt.Errorf("response carried no container id"))
	}
	logrus.WithFields(logrus.Fields{"container_id": resp.ID, "child": req.IsChildItem, "carousel": len(req.Children) > 0}).
		Debug("[INSTAGRAM] container created")
	return resp.ID, nil
}

func (c *Client) PollStatus(ctx context.Context, token, containerID string) (publisher.ContainerStatus, error) {
	var resp struct {
		StatusCode string `json:"status_code"`
		Status     string `json:"status"`
	}
	q := url.Values{"fields": {"status_code,status"}}
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(containerID), q.Encode())
	if err := c.do(ctx, "poll_status", http.MethodGet, endpoint, token, nil, &resp); err != nil {
		return "", err
	}
	status := publisher.ContainerStatus(strings.ToUpper(strings.TrimSpace(resp.StatusCode)))
	switch status {
	case publisher.ContainerInProgress, publisher.ContainerFinished, publisher.ContainerError,
		publisher.ContainerExpired, publisher.ContainerPublished:
		return status, nil
	}
	return "", publisher.Transient("poll_status", fmt.Errorf("unknown container status %q (%s)", resp.StatusCode, resp.Status))
}

func (c *Client) Publish(ctx context.Context, accountID, token, containerID string) (string, error) {
	form := url.Values{"creation_id": {containerID}}
	var resp struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("%s/%s/media_publish", c.baseURL, url.PathEscape(accountID))
	if err := c.do(ctx, "publish", http.MethodPost, endpoint, token, form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", publisher.Transient("publish", fmt.Errorf("response carried no media id"))
	}
	return resp.ID, nil
}

func (c *Client) Permalink(ctx context.Context, token, mediaID string) (string, error) {
	var resp struct {
		Permalink string `json:"permalink"`
	}
	q := url.Values{"fields": {"permalink"}}
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(mediaID), q.Encode())
	if err := c.do(ctx, "permalink", http.MethodGet, endpoint, token, nil, &resp); err != nil {
		return "", err
	}
	return resp.Permalink, nil
}

func (c *Client) RecentMedia(ctx context.Context, accountID, token string, limit int) ([]publisher.RecentMedia, error) {
	if limit <= 0 {
		limit = 10
	}
	var resp struct {
		Data []struct {
			ID        string `json:"id"`
			Caption   string `json:"caption"`
			Permalink string `json:"permalink"`
			Timestamp string `json:"timestamp"`
		} `json:"data"`
	}
	q := url.Values{"fields": {"id,caption,permalink,timestamp"}, "limit": {strconv.Itoa(limit)}}
	endpoint := fmt.Sprintf("%s/%s/media?%s", c.baseURL, url.PathEscape(accountID), q.Encode())
	if err := c.do(ctx, "recent_media", http.MethodGet, endpoint, token, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]publisher.RecentMedia, 0, len(resp.Data))
	for _, m := range resp.Data {
		ts, _ := time.Parse("2006-01-02T15:04:05-0700", m.Timestamp)
		out = append(out, publisher.RecentMedia{ID: m.ID, Caption: m.Caption, Permalink: m.Permalink, Timestamp: ts})
	}
	return out, nil
}

// do executes one Graph request and classifies any failure.
func (c *Client) do(ctx context.Context, op, method, endpoint, token string, form url.Values, dest interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return publisher.Permanent(op, err.Error())
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return publisher.Transient(op, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 400 {
		return classify(op, resp.StatusCode, data)
	}
	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			return publisher.Transient(op, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func classify(op string, status int, body []byte) *publisher.PublishError {
	var ge graphError
	_ = json.Unmarshal(body, &ge)

	pe := &publisher.PublishError{
		Op:         op,
		HTTPStatus: status,
		Code:       ge.Error.Code,
		Subcode:    ge.Error.Subcode,
		Message:    ge.Error.Message,
	}
	if pe.Message == "" {
		pe.Message = strings.TrimSpace(string(body))
		if pe.Message == "" {
			pe.Message = http.StatusText(status)
		}
	}

	switch {
	case status == http.StatusTooManyRequests || rateLimitCodes[ge.Error.Code] || ge.Error.Subcode == subcodePublishLimit:
		pe.Kind = publisher.KindRateLimited
	case status >= 500 || ge.Error.IsTransient || ge.Error.Code == 1 || ge.Error.Code == 2:
		pe.Kind = publisher.KindTransient
	default:
		pe.Kind = publisher.KindPermanent
	}
	return pe
}
