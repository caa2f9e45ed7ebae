package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-harvest/fetcher"
	"github.com/aluiziolira/go-harvest/models"
)

func newFetchCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetch one URL through the cache and retry policy and print the body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fetcher.New(a.cfg)
			if err != nil {
				return err
			}
			body, err := f.Fetch(cmd.Context(), models.NewGet(args[0], models.ParseCategory(category)))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), body)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", string(models.CategoryGeneric), "Cache category: sitemap, category, product or generic")
	return cmd
}
