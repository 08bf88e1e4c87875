package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuesEvent = `{"action":"labeled","issue":{"html_url":"https://github.com/owner/repo/issues/1"},"repository":{"html_url":"https://github.com/owner/repo"}}`

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, h http.Handler, path, body string, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestGitHubWebhook(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		sig     string
		body    string
		want    int
		wantRun bool
	}{{
		name:    "issue event",
		event:   "issues",
		sig:     sign("s3cret", issuesEvent),
		body:    issuesEvent,
		want:    http.StatusAccepted,
		wantRun: true,
	}, {
		name:  "bad signature",
		event: "issues",
		sig:   sign("other", issuesEvent),
		body:  issuesEvent,
		want:  http.StatusUnauthorized,
	}, {
		name:  "other event",
		event: "push",
		sig:   sign("s3cret", `{}`),
		body:  `{}`,
		want:  http.StatusNoContent,
	}, {
		name:  "bad payload",
		event: "issues",
		sig:   sign("s3cret", `{`),
		body:  `{`,
		want:  http.StatusBadRequest,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs atomic.Int32
			s := NewServer(func(context.Context) error {
				runs.Add(1)
				return nil
			}, "s3cret", "")

			code := post(t, s.Handler(), "/webhook/github", tt.body, map[string]string{
				"x-github-event":      tt.event,
				"x-hub-signature-256": tt.sig,
			})
			assert.Equal(t, tt.want, code)
			if tt.wantRun {
				assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
			} else {
				assert.Never(t, func() bool { return runs.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
			}
		})
	}
}

func TestGitLabWebhook(t *testing.T) {
	var runs atomic.Int32
	s := NewServer(func(context.Context) error {
		runs.Add(1)
		return nil
	}, "", "tok")
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, post(t, h, "/webhook/gitlab", `{"object_kind":"issue"}`, map[string]string{"x-gitlab-token": "nope"}))
	assert.Equal(t, http.StatusNoContent, post(t, h, "/webhook/gitlab", `{"object_kind":"push"}`, map[string]string{"x-gitlab-token": "tok"}))
	assert.Equal(t, http.StatusAccepted, post(t, h, "/webhook/gitlab", `{"object_kind":"issue","object_attributes":{"action":"close"}}`, map[string]string{"x-gitlab-token": "tok"}))
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTriggerCoalesces(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	s := NewServer(func(context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}, "", "")

	ctx := context.Background()
	s.Trigger(ctx)
	<-started

	// Both arrive while the first pass is running and share one follow-up.
	s.Trigger(ctx)
	s.Trigger(ctx)
	close(release)

	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return runs.Load() > 2 }, 100*time.Millisecond, 10*time.Millisecond)
}
