package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"consentis/pkg/didkey"
	"consentis/pkg/edkeys"
)

type keyPairOutput struct {
	AssetID       string `json:"assetId"`
	PrivateKeyPEM string `json:"privateKeyPem"`
	PublicKeyPEM  string `json:"publicKeyPem"`
	Fingerprint   string `json:"fingerprint"`
	Alg           string `json:"alg"`
}

type signatureOutput struct {
	AssetID   string `json:"assetId"`
	Timestamp string `json:"timestamp"`
	ToSign    string `json:"toSign"`
	Signature string `json:"signature"`
	Alg       string `json:"alg"`
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Derive holder keys, sign revocations and fingerprint keys",
	}
	cmd.AddCommand(newKeysDeriveCmd(), newKeysSignCmd(), newKeysFingerprintCmd())
	return cmd
}

func newKeysDeriveCmd() *cobra.Command {
	var seed, asset string
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive the Ed25519 key pair bound to one asset from a wallet seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, err := edkeys.DeriveEd25519(edkeys.DecodeSeed(seed), asset)
			if err != nil {
				return err
			}
			privPEM, err := priv.PEM()
			if err != nil {
				return err
			}
			pubPEM, err := priv.Public().PEM()
			if err != nil {
				return err
			}
			fp, err := priv.Public().Fingerprint()
			if err != nil {
				return err
			}
			return printJSON(cmd, keyPairOutput{
				AssetID:       asset,
				PrivateKeyPEM: privPEM,
				PublicKeyPEM:  pubPEM,
				Fingerprint:   fp,
				Alg:           priv.Type.Algorithm(),
			})
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "Wallet seed (raw text or base64, optionally prefixed b64:)")
	cmd.Flags().StringVar(&asset, "asset", "", "Asset id the key is bound to")
	_ = cmd.MarkFlagRequired("seed")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func newKeysSignCmd() *cobra.Command {
	var keyFile, asset, timestamp string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign the revocation message for an anchor",
		Long: `Sign "assetId|createdTimestamp" with the holder's private key.

The timestamp must be the anchor's createdTimestamp exactly as the ledger
returned it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pemText, err := os.ReadFile(keyFile)
			if err != nil {
				return err
			}
			priv, err := edkeys.ParsePrivateKeyPEM(string(pemText))
			if err != nil {
				return err
			}
			msg := edkeys.RevocationMessage(asset, timestamp)
			return printJSON(cmd, signatureOutput{
				AssetID:   asset,
				Timestamp: timestamp,
				ToSign:    string(msg),
				Signature: priv.SignBase64(msg),
				Alg:       priv.Type.Algorithm(),
			})
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "PKCS#8 PEM private key file")
	cmd.Flags().StringVar(&asset, "asset", "", "Asset id")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Anchor createdTimestamp")
	for _, f := range []string{"key", "asset", "timestamp"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newKeysFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [file]",
		Short: "Print the SHA-256 fingerprint of a public key's SPKI encoding",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			fp, err := edkeys.SPKIFingerprint(string(raw))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), fp)
			return err
		},
	}
}

func newDidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "did",
		Short: "Convert between base58 verkeys and did:key identifiers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "from-verkey <verkey>",
		Short: "Print the did:key form of a base58 Ed25519 verkey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			did, err := didkey.FromVerkey(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), did)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "to-verkey <did>",
		Short: "Print the base58 verkey inside a did:key identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verkey, err := didkey.ToVerkey(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), verkey)
			return err
		},
	})
	return cmd
}
