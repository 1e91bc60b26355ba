// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/batch"
	"github.com/jcodagnone/addrverify/store"
	"github.com/jcodagnone/addrverify/verify"
	"github.com/spf13/cobra"
)

var batchOptions = struct {
	MaxProcs int
	Accept   bool
	NoSave   bool
}{}

var batchCmd = &cobra.Command{
	Use:   "batch [file...]",
	Short: "Verify files of addresses",
	Long: `Verifies one address per line, formatted as

    street|line2|city|state|zip[|country]

Lines starting with '#' are ignored. Without files, addresses are read from
stdin. Disagreements with the geocoder keep the typed address unless --accept
is given. Every result is printed as a tab separated line, prefixed by its
file and line number.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		provider, err := requireProvider(ctx)
		if err != nil {
			return err
		}

		var repo store.Repository
		if !batchOptions.NoSave {
			repo, err = openRepository()
			if err != nil {
				return err
			}
			defer repo.DB().Close()
		}

		if len(args) == 0 {
			_, err := runBatch(ctx, provider, repo, "-", os.Stdin)

			return err
		}

		var total batch.Metrics

		for _, name := range args {
			metrics, err := runBatchFile(ctx, provider, repo, name)
			total.Merge(metrics)

			if err != nil {
				return err
			}
		}

		if len(args) > 1 {
			log.Printf("✅ Total: %s", total.String())
		}

		return nil
	},
}

func runBatchFile(ctx context.Context, provider verify.Provider, repo store.Repository, name string) (*batch.Metrics, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening batch file: %w", err)
	}
	defer f.Close()

	return runBatch(ctx, provider, repo, name, f)
}

func runBatch(ctx context.Context, provider verify.Provider, repo store.Repository, name string, input io.Reader) (*batch.Metrics, error) {
	entries, err := batch.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	opts := batch.Options{MaxProcs: batchOptions.MaxProcs}
	if batchOptions.Accept {
		opts.Policy = batch.AcceptSuggested
	}

	if repo != nil {
		source := "batch"
		if name != "-" {
			source = "batch:" + name
		}

		opts.OnResolved = func(e batch.Entry, a address.StructuredAddress, m address.Method) {
			if err := repo.Save(&store.Record{Address: a, Method: m, Source: source}); err != nil {
				log.Printf("Saving %s line %d: %v", name, e.Line, err)
			}
		}
	}

	results, metrics, err := batch.Run(ctx, provider, entries, opts)

	for _, r := range results {
		status := string(r.Method)
		if r.Err != nil {
			status = "error: " + r.Err.Error()
		}

		diffs := make([]string, 0, len(r.Differences))
		for _, f := range r.Differences {
			diffs = append(diffs, string(f))
		}

		fmt.Printf("%s:%d\t%s\t%s\t%s\n", name, r.Line, status, strings.Join(diffs, ","), r.Address.String())
	}

	log.Printf("✅ %s: %s", name, metrics.String())

	return &metrics, err
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().IntVar(&batchOptions.MaxProcs, "max-procs", 4, "concurrent verifications")
	batchCmd.Flags().BoolVar(&batchOptions.Accept, "accept", false, "take the geocoder's suggestions")
	batchCmd.Flags().BoolVar(&batchOptions.NoSave, "no-save", false, "do not store the verified addresses")
}
