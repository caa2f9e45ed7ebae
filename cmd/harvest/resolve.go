package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-harvest/fetcher"
	"github.com/aluiziolira/go-harvest/sitemap"
)

func newResolveCmd(a *app) *cobra.Command {
	var feed bool
	cmd := &cobra.Command{
		Use:   "resolve URL...",
		Short: "Print the page URLs listed in one or more sitemaps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fetcher.New(a.cfg)
			if err != nil {
				return err
			}
			resolver := sitemap.NewResolver(f, sitemap.WithFollowIndex(a.cfg.FollowSitemapIndex))

			var urls []string
			if feed {
				for _, u := range args {
					urls = append(urls, resolver.ResolveFeed(cmd.Context(), u)...)
				}
			} else {
				urls = resolver.ResolveAll(cmd.Context(), args)
			}
			out := cmd.OutOrStdout()
			for _, u := range urls {
				fmt.Fprintln(out, u)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&feed, "feed", false, "Treat arguments as RSS/Atom feeds")
	cmd.Flags().Bool("follow-sitemap-index", false, "Expand sitemap index documents")
	return cmd
}
