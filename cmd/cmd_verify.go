// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/store"
	"github.com/jcodagnone/addrverify/verify"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var verifyOptions = struct {
	Fields map[address.Field]*string
	Accept bool
	Keep   bool
	NoSave bool
}{
	Fields: map[address.Field]*string{
		address.FieldStreet:  new(string),
		address.FieldLine2:   new(string),
		address.FieldCity:    new(string),
		address.FieldState:   new(string),
		address.FieldZipCode: new(string),
	},
}

var verifyFieldOrder = []address.Field{
	address.FieldStreet, address.FieldLine2, address.FieldCity, address.FieldState, address.FieldZipCode,
}

// prompter reads answers from stdin, announcing questions only on a
// terminal.
type prompter struct {
	in          *bufio.Reader
	interactive bool
}

func (p *prompter) ask(question string) (string, error) {
	if p.interactive {
		fmt.Fprint(os.Stderr, question)
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify one manually entered address",
	Long: `Geocodes a typed address. When the geocoder disagrees with what was typed,
both versions are shown and the choice is asked on stdin (or given with
--accept / --keep). Fields not given as flags are asked for.`,
	Example: `  addrverify verify --street "123 Main St" --city Austin --state TX --zip 78701`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if verifyOptions.Accept && verifyOptions.Keep {
			return errors.New("--accept and --keep are mutually exclusive")
		}

		ctx := commandContext(cmd)

		provider, err := requireProvider(ctx)
		if err != nil {
			return err
		}

		var repo store.Repository
		if !verifyOptions.NoSave {
			if repo, err = openRepository(); err != nil {
				return err
			}
			defer repo.DB().Close()
		}

		flow := verify.NewFlow(provider, verify.FlowOptions{
			ManualOnly: true,
			OnResolved: func(a address.StructuredAddress, m address.Method) {
				if repo == nil {
					return
				}

				if err := repo.Save(&store.Record{Address: a, Method: m, Source: "cli"}); err != nil {
					log.Printf("Saving verified address: %v", err)
				}
			},
		})
		defer flow.Close()

		p := &prompter{in: bufio.NewReader(os.Stdin), interactive: isatty.IsTerminal(os.Stdin.Fd())}

		for _, f := range verifyFieldOrder {
			value := *verifyOptions.Fields[f]
			if !cmd.Flags().Changed(flagName(f)) {
				if value, err = p.ask(fmt.Sprintf("%s: ", f)); err != nil {
					return fmt.Errorf("reading %s: %w", f, err)
				}
			}

			if err := flow.SetField(f, value); err != nil {
				return err
			}
		}

		outcome, err := flow.RequestVerification(ctx)
		if err != nil {
			return err
		}

		final := outcome.Address

		if outcome.Kind == address.Unresolved {
			snap := flow.Snapshot()

			fmt.Println("The geocoder suggests a different address:")
			for _, f := range snap.Differences {
				fmt.Printf("  %-8s typed %-24q suggested %q\n", f, snap.Draft.Get(f), snap.Candidate.Get(f))
			}

			accept := verifyOptions.Accept
			if !accept && !verifyOptions.Keep {
				answer, err := p.ask("Use the suggested address? [y/N] ")
				if err != nil {
					return fmt.Errorf("reading answer: %w", err)
				}

				accept = strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
			}

			if accept {
				final, err = flow.AcceptSuggestion()
			} else {
				final, err = flow.KeepOriginal()
			}

			if err != nil {
				return err
			}
		}

		fmt.Printf("✅ %s\n", final.String())

		return printJSON(final)
	},
}

func flagName(f address.Field) string {
	if f == address.FieldZipCode {
		return "zip"
	}

	return string(f)
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	for _, f := range verifyFieldOrder {
		verifyCmd.Flags().StringVar(verifyOptions.Fields[f], flagName(f), "", fmt.Sprintf("%s of the address", f))
	}

	verifyCmd.Flags().BoolVar(&verifyOptions.Accept, "accept", false, "take the geocoder's suggestion without asking")
	verifyCmd.Flags().BoolVar(&verifyOptions.Keep, "keep", false, "keep the typed address without asking")
	verifyCmd.Flags().BoolVar(&verifyOptions.NoSave, "no-save", false, "do not store the verified address")
}
