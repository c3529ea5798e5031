package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ethnograph/internal/artifact"
	"ethnograph/internal/model"
	"ethnograph/internal/probe"
	"ethnograph/internal/records"
)

func newCSVCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "csv",
		Short: "Parse country CSVs into " + string(artifact.Parsed) + "/ artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			regions, err := a.regions()
			if err != nil {
				return err
			}
			_, err = a.parseCSV(regions)
			return err
		},
	}
}

func newDossiersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dossiers",
		Short: "Parse narrative dossiers into " + string(artifact.Descriptions) + "/ artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			regions, err := a.regions()
			if err != nil {
				return err
			}
			_, err = a.parseDossiers(regions)
			return err
		},
	}
}

func newMatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Merge parsed descriptions into parsed countries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := a.layout()
			countries, err := readStage[model.CountryRecord](cmd.Context(), l.All(artifact.Parsed))
			if err != nil {
				return err
			}
			var descs []model.CountryDescription
			if path := l.All(artifact.Descriptions); artifact.Exists(path) {
				if descs, err = readStage[model.CountryDescription](cmd.Context(), path); err != nil {
					return err
				}
			} else {
				a.log.Warnw("no descriptions artifact; matching without dossiers", "path", path)
			}
			_, _, err = a.matchAll(countries, descs)
			return err
		},
	}
}

func newLoadCmd(a *app) *cobra.Command {
	var opts loadOptions
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load matched artifacts into the relational store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			regions, err := a.regions()
			if err != nil {
				return err
			}
			countries, err := readStage[model.CountryRecord](cmd.Context(), a.layout().All(artifact.Matched))
			if err != nil {
				return err
			}
			_, err = a.load(cmd.Context(), regions, countries, opts)
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Load into an in-memory store and only report counts")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var opts loadOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run csv, dossiers, match and load in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			regions, err := a.regions()
			if err != nil {
				return err
			}
			countries, err := a.parseCSV(regions)
			if err != nil {
				return err
			}
			descs, err := a.parseDossiers(regions)
			if err != nil {
				return err
			}
			matched, _, err := a.matchAll(countries, descs)
			if err != nil {
				return err
			}
			_, err = a.load(cmd.Context(), regions, matched, opts)
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Load into an in-memory store and only report counts")
	return cmd
}

func newProbeCmd(a *app) *cobra.Command {
	var (
		maxBytes int
		tree     bool
	)
	cmd := &cobra.Command{
		Use:   "probe <file.csv>",
		Short: "Show the detected layout, columns and record tree of one CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := probe.File(args[0], maxBytes)
			if err != nil {
				return withCode(exitInput, err)
			}
			if err := probe.WriteReport(a.stdout, res); err != nil {
				return err
			}
			if !tree || res.Table.Len() == 0 {
				return nil
			}
			name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			c := records.NewBuilder(a.log).Country(name, "", res.Table)
			fmt.Fprintln(a.stdout)
			writeTree(a.stdout, c)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxBytes, "bytes", probe.DefaultMaxBytes, "Bytes to sample from the start of the file")
	cmd.Flags().BoolVar(&tree, "tree", true, "Print the built record tree")
	return cmd
}

func writeTree(w io.Writer, c model.CountryRecord) {
	fmt.Fprintf(w, "%s (%s, %s)\n", c.Name, c.Slug, c.Schema)
	for _, r := range c.Ethnicities {
		fmt.Fprintf(w, "  %s [%s] pop=%d country=%.2f%% africa=%.4f%%\n",
			r.Name, r.Key, r.Population, r.PercentageInCountry, r.PercentageInAfrica)
		for _, s := range r.Subgroups {
			fmt.Fprintf(w, "    - %s [%s] pop=%d country=%.2f%%\n", s.Name, s.Key, s.Population, s.PercentageInCountry)
		}
	}
}
