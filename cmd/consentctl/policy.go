package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"consentis/internal/policy"
)

// readInput reads the named file, or stdin for "-" or no argument.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func printJSON(cmd *cobra.Command, v any) error {
	compact, _ := cmd.Flags().GetBool("compact")
	enc := json.NewEncoder(cmd.OutOrStdout())
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func canonicalize(cmd *cobra.Command, args []string) (*policy.Result, error) {
	raw, err := readInput(cmd, args)
	if err != nil {
		return nil, err
	}
	doc, err := policy.ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	version, _ := cmd.Flags().GetString("template")
	c := policy.NewCanonicalizer(policy.MustDefaultRegistry())
	res, err := c.Canonicalize(version, doc)
	if err != nil {
		var verr *policy.ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				fmt.Fprintln(cmd.ErrOrStderr(), "  -", v)
			}
		}
		return nil, err
	}
	return res, nil
}

func newCanonicalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canonicalize [file]",
		Short: "Validate a policy against a template and print its canonical form",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := canonicalize(cmd, args)
			if err != nil {
				return err
			}
			if hashOnly, _ := cmd.Flags().GetBool("hash-only"); hashOnly {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), res.PolicyHash)
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("template", "", "Template version (default: latest)")
	cmd.Flags().Bool("hash-only", false, "Print only the policy hash")
	return cmd
}

func newDescriptorCmd() *cobra.Command {
	var (
		datasets []string
		issuer   string
		version  string
	)
	cmd := &cobra.Command{
		Use:   "descriptor [file]",
		Short: "Scope a policy to datasets and print the hashed descriptor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(datasets) == 0 {
				return fmt.Errorf("at least one --dataset is required")
			}
			res, err := canonicalize(cmd, args)
			if err != nil {
				return err
			}
			in := policy.DescriptorInput{
				Policy:            res.Document,
				PolicyHash:        res.PolicyHash,
				TemplateHash:      res.TemplateHash,
				TemplateVersion:   res.TemplateVersion,
				DatasetIDs:        datasets,
				DescriptorVersion: version,
			}
			if issuer != "" {
				in.IssuerOrgID = &issuer
			}
			out, err := policy.GenerateContractDescriptor(in, time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().String("template", "", "Template version (default: latest)")
	cmd.Flags().StringArrayVar(&datasets, "dataset", nil, "Dataset id (repeatable)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Issuer organization id")
	cmd.Flags().StringVar(&version, "version", policy.DefaultDescriptorVersion, "Descriptor version")
	return cmd
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in policy templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := policy.MustDefaultRegistry()
			latest := reg.Latest()
			for _, v := range reg.Versions() {
				marker := ""
				if latest != nil && v == latest.Version {
					marker = " (latest)"
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", v, marker); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
