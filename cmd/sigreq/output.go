// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/resolver"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// printResult writes v as JSON or YAML, or calls text for text output.
func printResult(w io.Writer, v any, text func(io.Writer)) error {
	switch strings.ToLower(flagMain.Output) {
	case outputText:
		text(w)
		return nil

	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case outputYAML:
		// Go through JSON so the JSON marshallers are used
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var u any
		err = json.Unmarshal(b, &u)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(u)

	default:
		return errors.BadRequest.WithFormat("unsupported output format %q", flagMain.Output)
	}
}

var (
	colorKey     = color.New(color.FgCyan)
	colorNode    = color.New(color.FgYellow)
	colorBad     = color.New(color.FgRed)
	colorLabel   = color.New(color.Bold)
	colorSuccess = color.New(color.FgGreen)
)

var treeFormat = keytree.Format{
	Leaf: func(k keytree.PublicKey) string {
		if !k.IsSignable() {
			return colorBad.Sprint(k.String())
		}
		return colorKey.Sprint(k.String())
	},
	Node: func(t *keytree.KeyTree) string {
		if t.IsKeyList() {
			return colorNode.Sprintf("all of %d", len(t.Children))
		}
		return colorNode.Sprintf("%d of %d", t.Threshold, len(t.Children))
	},
}

func printTree(w io.Writer, t *keytree.KeyTree) {
	keytree.Fprint(w, t, treeFormat)
}

func printAudit(w io.Writer, audit *resolver.SignatureAudit) {
	if audit.Expired {
		fmt.Fprintln(w, colorBad.Sprint("Transaction has expired"))
		return
	}

	fmt.Fprintln(w, colorLabel.Sprint("Requirement:"))
	printTree(w, audit.Root)
	fmt.Fprintf(w, "%s %v\n", colorLabel.Sprint("Accounts:"), audit.ConsultedAccounts)
	if len(audit.ReceiverAccounts) > 0 {
		fmt.Fprintf(w, "%s %v\n", colorLabel.Sprint("Receivers:"), audit.ReceiverAccounts)
	}
	if len(audit.ConsultedNodes) > 0 {
		fmt.Fprintf(w, "%s %v\n", colorLabel.Sprint("Nodes:"), audit.ConsultedNodes)
	}
	if audit.NewlyIntroducedKeys.Len() > 0 {
		fmt.Fprintln(w, colorLabel.Sprint("New keys:"))
		printKeys(w, audit.NewlyIntroducedKeys)
	}
}

func printKeys(w io.Writer, keys keytree.Set) {
	for _, k := range keys.Sorted() {
		fmt.Fprintf(w, "  %s\n", colorKey.Sprint(k.String()))
	}
}

func printRecord(w io.Writer, r *keycache.Record) {
	fmt.Fprintf(w, "%s %v\n", colorLabel.Sprint("Entity:"), r.Entity)
	if r.Populated() {
		fmt.Fprintf(w, "%s %s\n", colorLabel.Sprint("Checked:"), humanize.Time(r.LastCheckedAt))
	} else {
		fmt.Fprintf(w, "%s never\n", colorLabel.Sprint("Checked:"))
	}
	if r.SourceVersionTag != "" {
		fmt.Fprintf(w, "%s %s\n", colorLabel.Sprint("Version:"), r.SourceVersionTag)
	}
	if r.ReceiverSignatureRequired != nil {
		fmt.Fprintf(w, "%s %v\n", colorLabel.Sprint("Receiver signature required:"), *r.ReceiverSignatureRequired)
	}
	if r.RefreshLease != "" {
		fmt.Fprintf(w, "%s %s (taken %s)\n", colorLabel.Sprint("Refresh lease:"), r.RefreshLease, humanize.RelTime(r.UpdatedAt, time.Now(), "ago", "from now"))
	}
	fmt.Fprintln(w, colorLabel.Sprint("Key:"))
	printTree(w, r.KeyTree)
}

func readInput(name string) []byte {
	var b []byte
	var err error
	if name == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(name)
	}
	checkf(err, "read %s", name)
	return b
}
