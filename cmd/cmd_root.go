// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})

	// A missing .env is fine: the environment may already carry the keys.
	_ = godotenv.Load()
}

var rootCmd = &cobra.Command{
	Use:   "addrverify",
	Short: "US postal address autocomplete and verification",
	Long: `
addrverify turns free-form US addresses into verified, structured ones. It
suggests addresses while the street is typed, geocodes manually entered
addresses, and asks before replacing what was typed.

Google Maps lookups need GOOGLE_MAPS_API_KEY (environment or .env file), or
--adc to fetch the key with Application Default Credentials.
`,
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
