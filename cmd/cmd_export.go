// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/jcodagnone/addrverify/store"
	"github.com/jcodagnone/addrverify/utils/numutils"
	"github.com/spf13/cobra"
)

const addressesFile = "addresses.json"

var exportOptions = struct {
	File string
}{}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the verified addresses to a file",
	Long:  `Exports every stored address to a local JSON file. The file is sorted to minimize diffs when checking into version control.`,
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		n, err := store.ExportJSON(repo, exportOptions.File)
		if err != nil {
			return fmt.Errorf("exporting addresses: %w", err)
		}

		fmt.Printf("✅ Exported %s addresses to %s\n", numutils.FormatInt(int64(n)), exportOptions.File)

		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import verified addresses from a file",
	Long:  `Imports a file written by 'export'. Addresses already stored are updated.`,
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		n, err := store.ImportJSON(repo, exportOptions.File)
		if err != nil {
			return fmt.Errorf("importing addresses: %w", err)
		}

		fmt.Printf("✅ Imported %s addresses from %s\n", numutils.FormatInt(int64(n)), exportOptions.File)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	exportCmd.Flags().StringVarP(&exportOptions.File, "file", "f", addressesFile, "addresses file")
	importCmd.Flags().StringVarP(&exportOptions.File, "file", "f", addressesFile, "addresses file")
}
