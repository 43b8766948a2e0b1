package instagram

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/AzielCF/az-postsync/domains/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestCreateContainer_SingleImageSendsCaption(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotForm url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		_, _ = w.Write([]byte(`{"id":"c-1"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	id, err := c.CreateContainer(context.Background(), "17841", "tok", publisher.ContainerRequest{
		Media:   publisher.MediaItem{URL: "https://cdn.test/a.jpg", Kind: publisher.MediaImage},
		Caption: "hello #x",
	})
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)
	assert.Equal(t, "/17841/media", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "https://cdn.test/a.jpg", gotForm.Get("image_url"))
	assert.Equal(t, "hello #x", gotForm.Get("caption"))
	assert.Empty(t, gotForm.Get("is_carousel_item"))
}

func TestCreateContainer_CarouselChildAndParent(t *testing.T) {
	var forms []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		forms = append(forms, r.PostForm)
		_, _ = w.Write([]byte(`{"id":"c"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	ctx := context.Background()
	_, err := c.CreateContainer(ctx, "1", "tok", publisher.ContainerRequest{
		Media:       publisher.MediaItem{URL: "https://cdn.test/v.mp4", Kind: publisher.MediaVideo},
		Caption:     "ignored for children",
		IsChildItem: true,
	})
	require.NoError(t, err)
	_, err = c.CreateContainer(ctx, "1", "tok", publisher.ContainerRequest{
		Caption:  "parent caption",
		Children: []string{"a", "b"},
	})
	require.NoError(t, err)

	require.Len(t, forms, 2)
	assert.Equal(t, "true", forms[0].Get("is_carousel_item"))
	assert.Equal(t, "VIDEO", forms[0].Get("media_type"))
	assert.Equal(t, "https://cdn.test/v.mp4", forms[0].Get("video_url"))
	assert.Empty(t, forms[0].Get("caption"))

	assert.Equal(t, "CAROUSEL", forms[1].Get("media_type"))
	assert.Equal(t, "a,b", forms[1].Get("children"))
	assert.Equal(t, "parent caption", forms[1].Get("caption"))
}

func TestCreateContainer_SingleVideoIsReel(t *testing.T) {
	var form url.Values
	c := NewClient(Config{HTTPClient: &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		return jsonResponse(http.StatusOK, `{"id":"c-9"}`), nil
	})}})

	_, err := c.CreateContainer(context.Background(), "1", "tok", publisher.ContainerRequest{
		Media: publisher.MediaItem{URL: "https://cdn.test/v.mp4", Kind: publisher.MediaVideo},
	})
	require.NoError(t, err)
	assert.Equal(t, "REELS", form.Get("media_type"))
}

func TestPollStatus_ParsesStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/c-1", r.URL.Path)
		assert.Equal(t, "status_code,status", r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`{"status_code":"FINISHED","id":"c-1"}`))
	}))
	defer srv.Close()

	status, err := NewClient(Config{BaseURL: srv.URL}).PollStatus(context.Background(), "tok", "c-1")
	require.NoError(t, err)
	assert.Equal(t, publisher.ContainerFinished, status)
}

func TestPollStatus_UnknownStatusIsTransient(t *testing.T) {
	c := NewClient(Config{HTTPClient: &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"status_code":"WEIRD"}`), nil
	})}})
	_, err := c.PollStatus(context.Background(), "tok", "c-1")
	require.Error(t, err)
	assert.Equal(t, publisher.KindTransient, publisher.KindOf(err))
}

func TestPublishAndPermalink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/1/media_publish", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "c-1", r.PostForm.Get("creation_id"))
		_, _ = w.Write([]byte(`{"id":"m-1"}`))
	})
	mux.HandleFunc("/m-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"permalink":"https://insta.test/p/abc"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	id, err := c.Publish(context.Background(), "1", "tok", "c-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)

	link, err := c.Permalink(context.Background(), "tok", "m-1")
	require.NoError(t, err)
	assert.Equal(t, "https://insta.test/p/abc", link)
}

func TestRecentMedia_ParsesTimestamps(t *testing.T) {
	c := NewClient(Config{HTTPClient: &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		return jsonResponse(http.StatusOK, `{"data":[{"id":"m-1","caption":"hi","permalink":"p","timestamp":"2026-03-01T10:00:00+0000"}]}`), nil
	})}})

	media, err := c.RecentMedia(context.Background(), "1", "tok", 5)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "m-1", media[0].ID)
	assert.True(t, media[0].Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   publisher.ErrorKind
	}{
		{"http 429", http.StatusTooManyRequests, `{}`, publisher.KindRateLimited},
		{"app rate limit code", http.StatusBadRequest, `{"error":{"message":"Application request limit reached","code":4}}`, publisher.KindRateLimited},
		{"user rate limit code", http.StatusForbidden, `{"error":{"message":"User request limit reached","code":17}}`, publisher.KindRateLimited},
		{"publish limit subcode", http.StatusBadRequest, `{"error":{"message":"max posts","code":9,"error_subcode":2207042}}`, publisher.KindRateLimited},
		{"server error", http.StatusBadGateway, `bad gateway`, publisher.KindTransient},
		{"transient flag", http.StatusBadRequest, `{"error":{"message":"try again","code":100,"is_transient":true}}`, publisher.KindTransient},
		{"invalid media", http.StatusBadRequest, `{"error":{"message":"Media download has failed","code":9004}}`, publisher.KindPermanent},
		{"expired token", http.StatusUnauthorized, `{"error":{"message":"Session has expired","code":190}}`, publisher.KindPermanent},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pe := classify("publish", c.status, []byte(c.body))
			assert.Equal(t, c.want, pe.Kind)
			assert.Equal(t, c.status, pe.HTTPStatus)
			assert.NotEmpty(t, pe.Message)
		})
	}
}

func TestDo_NetworkErrorIsTransient(t *testing.T) {
	c := NewClient(Config{HTTPClient: &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, io.ErrUnexpectedEOF
	})}})
	_, err := c.Publish(context.Background(), "1", "tok", "c-1")
	require.Error(t, err)
	assert.Equal(t, publisher.KindTransient, publisher.KindOf(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
