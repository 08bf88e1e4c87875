package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/jadenj13/devpool/internals/identity"
	"github.com/jadenj13/devpool/internals/issue"
	"github.com/jadenj13/devpool/internals/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print directory statistics without writing anything",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		urls, err := a.partnerURLs(ctx)
		if err != nil {
			return fmt.Errorf("resolve projects: %w", err)
		}

		var partners []issue.Issue
		for _, u := range urls {
			t, _, err := a.factory.TrackerFor(ctx, u)
			if err != nil {
				clog.FromContext(ctx).With("project", u, "err", err).Warn("Skipping partner repository")
				continue
			}
			found, err := t.ListIssues(ctx)
			if err != nil {
				clog.FromContext(ctx).With("project", u, "err", err).Warn("Skipping partner repository")
				continue
			}
			partners = append(partners, found...)
		}

		directory, err := a.directory.ListIssues(ctx)
		if err != nil {
			return fmt.Errorf("list directory issues: %w", err)
		}

		s := stats.Aggregate(ctx, directory, identity.Build(ctx, partners), a.env.DirectorySlug())
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	},
}
