// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/internal/resolver"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

func withOutput(t *testing.T, format string) {
	old := flagMain.Output
	flagMain.Output = format
	t.Cleanup(func() { flagMain.Output = old })
}

func testAudit() *resolver.SignatureAudit {
	return &resolver.SignatureAudit{
		Root: keytree.All(
			keytree.NewThreshold(1, keytree.Leaf("\x01"), keytree.Leaf("\x02")),
			keytree.Leaf(keytree.Unsignable("contract")),
		),
		ConsultedAccounts:   []ledger.EntityID{ledger.NewEntityID(1234)},
		NewlyIntroducedKeys: keytree.NewSet(),
	}
}

func TestPrintText(t *testing.T) {
	color.NoColor = true
	withOutput(t, outputText)

	buf := new(strings.Builder)
	audit := testAudit()
	require.NoError(t, printResult(buf, audit, func(w io.Writer) { printAudit(w, audit) }))
	require.Contains(t, buf.String(), "Requirement:")
	require.Contains(t, buf.String(), "1 of 2")
	require.NotContains(t, buf.String(), "New keys:")
}

func TestPrintJSON(t *testing.T) {
	withOutput(t, outputJSON)

	buf := new(strings.Builder)
	require.NoError(t, printResult(buf, testAudit(), nil))
	require.Contains(t, buf.String(), `"consultedAccounts"`)
}

func TestPrintYAML(t *testing.T) {
	withOutput(t, outputYAML)

	buf := new(strings.Builder)
	require.NoError(t, printResult(buf, testAudit(), nil))
	require.Contains(t, buf.String(), "consultedAccounts:")
}

func TestPrintUnknownFormat(t *testing.T) {
	withOutput(t, "xml")
	require.Error(t, printResult(io.Discard, testAudit(), nil))
}
