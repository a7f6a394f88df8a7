// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/accumulatenetwork/sigreq/internal/resolver"
	"gitlab.com/accumulatenetwork/sigreq/internal/signers"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
)

var cmdResolve = &cobra.Command{
	Use:   "resolve <transaction file>",
	Short: "Show the keys that must sign a transaction",
	Long:  "Show the keys that must sign a transaction. The transaction is read from the file, or from stdin if the file is -.",
	Args:  cobra.ExactArgs(1),
	Run:   resolve,
}

var cmdOwed = &cobra.Command{
	Use:   "owed <transaction file>",
	Short: "Show which of a user's keys could still help authorize a transaction",
	Args:  cobra.ExactArgs(1),
	Run:   owed,
}

var flagOwed struct {
	Keys    []string
	Signed  []string
	Revoked []string
}

func init() {
	cmdMain.AddCommand(cmdResolve, cmdOwed)

	cmdOwed.Flags().StringSliceVarP(&flagOwed.Keys, "key", "k", nil, "The user's public keys (hex)")
	cmdOwed.Flags().StringSliceVarP(&flagOwed.Signed, "signed", "s", nil, "Public keys (hex) that have already signed")
	cmdOwed.Flags().StringSliceVar(&flagOwed.Revoked, "revoked", nil, "Public keys (hex) whose signatures were revoked")
	_ = cmdOwed.MarkFlagRequired("key")
}

func resolveFile(name string) *resolver.SignatureAudit {
	e, _ := openEngine()
	defer e.Close()

	audit, err := e.ResolveSignatureRequirement(context.Background(), readInput(name), network())
	checkf(err, "resolve")
	return audit
}

func resolve(_ *cobra.Command, args []string) {
	audit := resolveFile(args[0])
	check(printResult(os.Stdout, audit, func(w io.Writer) {
		printAudit(w, audit)
	}))
}

func parseKeys(hex []string) []keytree.PublicKey {
	keys := make([]keytree.PublicKey, len(hex))
	for i, s := range hex {
		var err error
		keys[i], err = keytree.ParsePublicKey(s)
		check(err)
	}
	return keys
}

func owed(_ *cobra.Command, args []string) {
	userKeys := keytree.NewSet(parseKeys(flagOwed.Keys)...)
	var recorded []signers.RecordedSignature
	for _, k := range parseKeys(flagOwed.Signed) {
		recorded = append(recorded, signers.RecordedSignature{PublicKey: k})
	}
	for _, k := range parseKeys(flagOwed.Revoked) {
		recorded = append(recorded, signers.RecordedSignature{PublicKey: k, Revoked: true})
	}

	audit := resolveFile(args[0])
	result := struct {
		Owed     keytree.Set `json:"owed"`
		Complete bool        `json:"complete"`
		Expired  bool        `json:"expired,omitempty"`
	}{
		Owed:     signers.KeysStillOwed(audit, userKeys, recorded),
		Complete: signers.IsComplete(audit, recorded),
		Expired:  audit.Expired,
	}

	check(printResult(os.Stdout, result, func(w io.Writer) {
		switch {
		case result.Expired:
			fmt.Fprintln(w, colorBad.Sprint("Transaction has expired"))
			return
		case result.Complete:
			fmt.Fprintln(w, colorSuccess.Sprint("✔"), "The requirement is met")
		default:
			fmt.Fprintln(w, colorBad.Sprint("🗴"), "The requirement is not met")
		}
		if result.Owed.Len() == 0 {
			fmt.Fprintln(w, "None of the keys are owed")
			return
		}
		fmt.Fprintln(w, colorLabel.Sprint("Owed:"))
		printKeys(w, result.Owed)
	}))
}
