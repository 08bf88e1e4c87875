// Package webhook turns issue events from partner repositories into sync
// passes. Bursts of events collapse into at most one pass running and one
// pass queued behind it.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/singleflight"
)

// SyncFunc runs one sync pass.
type SyncFunc func(ctx context.Context) error

type Server struct {
	sync         SyncFunc
	githubSecret string
	gitlabSecret string

	group   singleflight.Group
	pending atomic.Bool
}

func NewServer(sync SyncFunc, githubSecret, gitlabSecret string) *Server {
	return &Server{
		sync:         sync,
		githubSecret: githubSecret,
		gitlabSecret: gitlabSecret,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/github", s.handleGitHub)
	mux.HandleFunc("POST /webhook/gitlab", s.handleGitLab)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type githubPayload struct {
	Action string `json:"action"`
	Issue  struct {
		URL string `json:"html_url"`
	} `json:"issue"`
	Repository struct {
		HTMLURL string `json:"html_url"`
	} `json:"repository"`
}

func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	log := clog.FromContext(r.Context())

	body, err := s.readAndVerify(r, s.githubSecret, "x-hub-signature-256")
	if err != nil {
		log.With("err", err).Warn("GitHub webhook verification failed")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if r.Header.Get("x-github-event") != "issues" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var payload githubPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	log.With("action", payload.Action, "repo", payload.Repository.HTMLURL, "issue_url", payload.Issue.URL).
		Info("Issue event received, scheduling sync")
	s.Trigger(context.WithoutCancel(r.Context()))
	w.WriteHeader(http.StatusAccepted)
}

type gitlabPayload struct {
	ObjectKind       string `json:"object_kind"`
	ObjectAttributes struct {
		Action string `json:"action"`
		URL    string `json:"url"`
	} `json:"object_attributes"`
	Project struct {
		WebURL string `json:"web_url"`
	} `json:"project"`
}

func (s *Server) handleGitLab(w http.ResponseWriter, r *http.Request) {
	log := clog.FromContext(r.Context())

	token := r.Header.Get("x-gitlab-token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.gitlabSecret)) != 1 {
		log.Warn("GitLab webhook token mismatch")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var payload gitlabPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if payload.ObjectKind != "issue" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	log.With("action", payload.ObjectAttributes.Action, "repo", payload.Project.WebURL, "issue_url", payload.ObjectAttributes.URL).
		Info("Issue event received, scheduling sync")
	s.Trigger(context.WithoutCancel(r.Context()))
	w.WriteHeader(http.StatusAccepted)
}

// Trigger schedules a sync pass and returns immediately. If a pass is
// already running, one more pass runs after it.
func (s *Server) Trigger(ctx context.Context) {
	s.pending.Store(true)
	go func() {
		// A goroutine that joined a pass which had already stopped looping
		// finds pending still set and leads the next one.
		for s.pending.Load() {
			s.group.Do("sync", func() (any, error) {
				for s.pending.Swap(false) {
					if err := s.sync(ctx); err != nil {
						clog.FromContext(ctx).With("err", err).Error("Triggered sync failed")
					}
				}
				return nil, nil
			})
		}
	}()
}

func (s *Server) readAndVerify(r *http.Request, secret, sigHeader string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return body, nil // verification disabled
	}
	if !verifyHMAC(body, secret, r.Header.Get(sigHeader)) {
		return nil, fmt.Errorf("signature mismatch")
	}
	return body, nil
}

func verifyHMAC(body []byte, secret, sig string) bool {
	sig = strings.TrimPrefix(sig, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
