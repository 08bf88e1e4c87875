package main

import (
	"context"
	"fmt"

	"github.com/google/go-github/v60/github"

	"github.com/jadenj13/devpool/internals/config"
	"github.com/jadenj13/devpool/internals/git"
	"github.com/jadenj13/devpool/internals/identity"
	"github.com/jadenj13/devpool/internals/llm"
	"github.com/jadenj13/devpool/internals/metrics"
	"github.com/jadenj13/devpool/internals/persist"
	"github.com/jadenj13/devpool/internals/social"
	"github.com/jadenj13/devpool/internals/syncer"
)

// app holds the clients shared by every command.
type app struct {
	env       config.Env
	gh        *github.Client
	factory   *git.Factory
	graph     *git.GraphClient
	directory git.Tracker
	projects  config.Projects
}

func newApp(ctx context.Context) (*app, error) {
	env, err := config.LoadEnv(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := config.LoadProjects(env.ProjectsFile)
	if err != nil {
		return nil, err
	}

	gh := git.NewGitHubClient(ctx, env.GitHubToken)
	var opts []git.FactoryOption
	if env.GitLabToken != "" {
		opts = append(opts, git.WithGitLab(env.GitLabToken, env.GitLabBaseURL))
	}
	factory := git.NewFactory(gh, opts...)

	directory, _, err := factory.TrackerFor(ctx, env.DirectoryURL())
	if err != nil {
		return nil, fmt.Errorf("directory tracker: %w", err)
	}

	return &app{
		env:       env,
		gh:        gh,
		factory:   factory,
		graph:     git.NewGraphClient(gh),
		directory: directory,
		projects:  projects,
	}, nil
}

func (a *app) partnerURLs(ctx context.Context) ([]string, error) {
	return a.projects.Resolve(ctx, a.factory)
}

func (a *app) announcer() syncer.Announcer {
	if a.env.SlackToken == "" || a.env.SlackChannel == "" {
		return nil
	}
	var drafter social.Drafter
	if a.env.AnthropicKey != "" {
		drafter = llm.NewClient(a.env.AnthropicKey)
	}
	return social.NewAnnouncer(social.NewSlackPoster(a.env.SlackToken, a.env.SlackChannel), drafter)
}

// syncOnce runs a full pass and commits its snapshots to the storage branch.
func (a *app) syncOnce(ctx context.Context) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.SyncRuns.WithLabelValues(result).Inc()
	}()

	urls, err := a.partnerURLs(ctx)
	if err != nil {
		return fmt.Errorf("resolve projects: %w", err)
	}

	repo, err := git.Clone(ctx, a.env.StorageURL(), a.env.StorageBranch, a.env.GitHubToken)
	if err != nil {
		return fmt.Errorf("clone storage: %w", err)
	}
	defer repo.Cleanup()

	posts := social.Map{}
	if err := persist.LoadJSON(repo, syncer.SocialFile, &posts); err != nil {
		return err
	}

	opts := []syncer.Option{syncer.WithSocialMap(posts)}
	if ann := a.announcer(); ann != nil {
		opts = append(opts, syncer.WithAnnouncer(ann))
	}
	resolver := identity.NewResolver(a.graph, a.factory, a.directory, a.graph)
	s := syncer.New(a.directory, a.factory, resolver, syncer.Config{
		Projects:      urls,
		Categories:    a.projects.Category,
		IsFork:        a.env.IsFork(),
		DirectorySlug: a.env.DirectorySlug(),
	}, opts...)

	res, err := s.Run(ctx)
	if err != nil {
		return err
	}

	w := persist.NewWriter(a.env.MaxPayloadBytes)
	if err := s.Stage(w, res); err != nil {
		return err
	}
	return w.Flush(ctx, countingCommitter{repo}, "Update DevPool snapshots")
}

type countingCommitter struct{ persist.Committer }

func (c countingCommitter) CommitFiles(ctx context.Context, files []persist.File, message string) error {
	err := c.Committer.CommitFiles(ctx, files, message)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StorageBatches.WithLabelValues(result).Inc()
	return err
}
