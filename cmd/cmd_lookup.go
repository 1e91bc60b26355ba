// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/places"
	"github.com/spf13/cobra"
)

var lookupOptions = struct {
	Zip    string
	Radius float64
}{}

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Query the address provider directly",
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

var lookupSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Print the autocomplete predictions for a partial address",
	Example: `  addrverify lookup search "123 main"
  addrverify lookup search --zip 78701 "123 main"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		p, err := requireProvider(ctx)
		if err != nil {
			return err
		}

		var bias *places.LocationBias
		if lookupOptions.Zip != "" {
			if err := address.ValidateZip(lookupOptions.Zip); err != nil {
				return err
			}

			bias = &places.LocationBias{PostalCode: lookupOptions.Zip, RadiusMeters: lookupOptions.Radius}

			if d, err := p.Geocode(ctx, lookupOptions.Zip+" "+address.DefaultCountry); err == nil {
				if center, ok := address.ParseDetail(*d).Point(); ok {
					bias.Center = &center
				}
			} else {
				log.Printf("⚠️ Could not locate ZIP %s, searching without bias: %v", lookupOptions.Zip, err)
			}
		}

		predictions, err := p.Search(ctx, strings.Join(args, " "), bias)
		if err != nil {
			return fmt.Errorf("searching: %w", err)
		}

		for _, pr := range predictions {
			fmt.Printf("%s\t%s\t%s\n", pr.ID, pr.PrimaryText, pr.SecondaryText)
		}

		return nil
	},
}

var lookupDetailsCmd = &cobra.Command{
	Use:   "details <place-id>",
	Short: "Print the structured address of a place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		p, err := requireProvider(ctx)
		if err != nil {
			return err
		}

		d, err := p.Details(ctx, args[0])
		if err != nil {
			return fmt.Errorf("getting details: %w", err)
		}

		return printJSON(address.ParseDetail(*d))
	},
}

var lookupGeocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Print the structured address the geocoder finds for a free-form address",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		p, err := requireProvider(ctx)
		if err != nil {
			return err
		}

		d, err := p.Geocode(ctx, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("geocoding: %w", err)
		}

		return printJSON(address.ParseDetail(*d))
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.AddCommand(lookupSearchCmd)
	lookupCmd.AddCommand(lookupDetailsCmd)
	lookupCmd.AddCommand(lookupGeocodeCmd)

	lookupSearchCmd.Flags().StringVar(&lookupOptions.Zip, "zip", "", "bias predictions towards this ZIP code")
	lookupSearchCmd.Flags().Float64Var(&lookupOptions.Radius, "radius", places.DefaultBiasRadius, "bias radius in meters")
}
