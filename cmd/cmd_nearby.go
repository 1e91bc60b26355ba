// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strconv"

	"github.com/jcodagnone/addrverify/spatial"
	"github.com/jcodagnone/addrverify/utils/numutils"
	"github.com/spf13/cobra"
)

var nearbyOptions = struct {
	Radius float64
	Limit  int
}{}

var nearbyCmd = &cobra.Command{
	Use:     "nearby <lat> <lng>",
	Short:   "List stored addresses within a radius of a point",
	Example: `  addrverify nearby 30.2672 -97.7431 --radius 5000`,
	Args:    cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("parsing latitude: %w", err)
		}

		lng, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("parsing longitude: %w", err)
		}

		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		matches, err := repo.Nearby(spatial.Point{Lat: lat, Lng: lng}, nearbyOptions.Radius, nearbyOptions.Limit)
		if err != nil {
			return err
		}

		for _, m := range matches {
			fmt.Printf("%8.0fm\t%s\t%s\n", m.DistanceMeters, m.Method, m.Address.String())
		}

		total, err := repo.Count()
		if err != nil {
			return err
		}

		fmt.Printf("%s of %s addresses within %sm\n",
			numutils.FormatInt(int64(len(matches))),
			numutils.FormatInt(int64(total)),
			numutils.FormatInt(int64(nearbyOptions.Radius)))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(nearbyCmd)
	nearbyCmd.Flags().Float64Var(&nearbyOptions.Radius, "radius", 1000, "radius in meters")
	nearbyCmd.Flags().IntVar(&nearbyOptions.Limit, "limit", 20, "maximum number of addresses (0 for all)")
}
