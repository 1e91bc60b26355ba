// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jcodagnone/addrverify/server"
	"github.com/jcodagnone/addrverify/store"
	"github.com/jcodagnone/addrverify/utils/numutils"
	"github.com/spf13/cobra"
)

var serveOptions = struct {
	Addr       string
	Seed       string
	SessionTTL time.Duration
}{}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the address verification web service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		provider, err := newProvider(commandContext(cmd))
		if err != nil {
			return err
		}

		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		if serveOptions.Seed != "" {
			seeded, n, err := store.SeedIfEmpty(repo, serveOptions.Seed)
			if err != nil {
				return fmt.Errorf("seeding addresses: %w", err)
			}

			if seeded {
				log.Printf("✅ Seeded %s addresses from %s", numutils.FormatInt(int64(n)), serveOptions.Seed)
			}
		}

		srv := server.NewServer(provider, repo, server.Options{SessionTTL: serveOptions.SessionTTL})
		defer srv.Close()

		fmt.Println("🏠 Address verification server starting...")
		fmt.Printf("📍 Listening on http://%s\n", serveOptions.Addr)

		return srv.Run(serveOptions.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveOptions.Addr, "addr", "localhost:8080", "listen address")
	serveCmd.Flags().StringVar(&serveOptions.Seed, "seed", "", "addresses file to import when the database is empty")
	serveCmd.Flags().DurationVar(&serveOptions.SessionTTL, "session-ttl", server.DefaultSessionTTL, "idle time before a session expires")
}
