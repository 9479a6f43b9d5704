package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "consentctl",
		Short: "consentctl - offline tooling for consent policies and holder keys",
		Long: `consentctl - offline tooling for consent policies and holder keys.

Everything here runs locally; nothing is submitted to a ledger.

Available commands:
  canonicalize - Validate a policy against a template and print its hash
  descriptor   - Scope a policy to datasets and hash the descriptor
  templates    - List the built-in policy templates
  keys         - Derive holder keys, sign revocations, fingerprint keys
  did          - Convert between base58 verkeys and did:key

Examples:
  consentctl canonicalize policy.json
  consentctl descriptor policy.json --dataset ds-1 --dataset ds-2
  consentctl keys derive --seed wallet --asset vc-1
  consentctl keys sign --key holder.pem --asset vc-1 --timestamp 2026-03-01T12:00:00.000Z`,
		SilenceUsage: true,
	}
	root.PersistentFlags().Bool("compact", false, "Print single-line JSON")

	root.AddCommand(newCanonicalizeCmd())
	root.AddCommand(newDescriptorCmd())
	root.AddCommand(newTemplatesCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newDidCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
