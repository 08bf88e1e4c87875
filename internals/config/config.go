// Package config loads the run configuration from the environment and the
// partner project list from a YAML or JSON file.
package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// CanonicalOwner is the owner of the canonical directory; any other owner
// runs in fork mode.
const CanonicalOwner = "ubiquity"

type Env struct {
	OwnerName string `env:"DEVPOOL_OWNER_NAME,required"`
	RepoName  string `env:"DEVPOOL_REPO_NAME,required"`

	GitHubToken   string `env:"GITHUB_TOKEN,required"`
	GitLabToken   string `env:"GITLAB_TOKEN"`
	GitLabBaseURL string `env:"GITLAB_BASE_URL,default=https://gitlab.com"`

	ProjectsFile    string `env:"PROJECTS_FILE,default=projects.yaml"`
	StorageRepoURL  string `env:"STORAGE_REPO_URL"` // defaults to the directory repository
	StorageBranch   string `env:"STORAGE_BRANCH,default=__STORAGE__"`
	MaxPayloadBytes int    `env:"MAX_PAYLOAD_BYTES,default=100000000"`

	SlackToken   string `env:"SLACK_BOT_TOKEN"`
	SlackChannel string `env:"SLACK_CHANNEL"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`

	Addr          string `env:"ADDR,default=:8080"`
	MetricsAddr   string `env:"METRICS_ADDR,default=:2112"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	GitLabSecret  string `env:"GITLAB_WEBHOOK_SECRET"`
}

func LoadEnv(ctx context.Context) (Env, error) {
	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return Env{}, fmt.Errorf("process env: %w", err)
	}
	return env, nil
}

func (e Env) IsFork() bool { return e.OwnerName != CanonicalOwner }

func (e Env) DirectoryURL() string {
	return "https://github.com/" + e.OwnerName + "/" + e.RepoName
}

func (e Env) DirectorySlug() string { return e.OwnerName + "/" + e.RepoName }

func (e Env) StorageURL() string {
	if e.StorageRepoURL != "" {
		return e.StorageRepoURL
	}
	return e.DirectoryURL()
}

// Projects is the partner project configuration.
type Projects struct {
	URLs     []string          `yaml:"urls" json:"urls"`
	Category map[string]string `yaml:"category" json:"category"`
	Opt      Opt               `yaml:"opt" json:"opt"`
}

// Opt entries are either an org ("ubiquity") or a repo ("ubiquity/pay.ubq.fi").
type Opt struct {
	In  []string `yaml:"in" json:"in"`
	Out []string `yaml:"out" json:"out"`
}

func LoadProjects(path string) (Projects, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Projects{}, fmt.Errorf("read projects: %w", err)
	}
	return ParseProjects(b)
}

// ParseProjects accepts YAML, and therefore JSON.
func ParseProjects(b []byte) (Projects, error) {
	var p Projects
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Projects{}, fmt.Errorf("parse projects: %w", err)
	}
	return p, nil
}

// OrgLister expands an organization into its repository URLs.
type OrgLister interface {
	OrgRepos(ctx context.Context, org string) ([]string, error)
}

// Resolve returns the partner repository URLs: the allow-list plus every
// opted-in org or repo, minus the opted-out ones, deduplicated in order.
func (p Projects) Resolve(ctx context.Context, orgs OrgLister) ([]string, error) {
	var urls []string
	urls = append(urls, p.URLs...)

	for _, entry := range p.Opt.In {
		entry = strings.Trim(entry, "/ ")
		if strings.Contains(entry, "/") {
			urls = append(urls, "https://github.com/"+entry)
			continue
		}
		repos, err := orgs.OrgRepos(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("expand org %s: %w", entry, err)
		}
		urls = append(urls, repos...)
	}

	var out []string
	seen := map[string]bool{}
	for _, u := range urls {
		slug := strings.ToLower(slugOf(u))
		if seen[slug] || p.optedOut(slug) {
			continue
		}
		seen[slug] = true
		out = append(out, u)
	}
	return out, nil
}

func (p Projects) optedOut(slug string) bool {
	org, _, _ := strings.Cut(slug, "/")
	return slices.ContainsFunc(p.Opt.Out, func(entry string) bool {
		entry = strings.ToLower(strings.Trim(entry, "/ "))
		return entry == slug || entry == org
	})
}

func slugOf(repoURL string) string {
	s := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	parts := strings.Split(s, "/")
	if len(parts) < 2 {
		return s
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}
