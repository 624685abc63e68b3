package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/scheme-eligibility/internal/catalog"
	"github.com/mmeshcher/scheme-eligibility/internal/matching"
	"github.com/mmeshcher/scheme-eligibility/internal/middleware"
	"github.com/mmeshcher/scheme-eligibility/internal/model"
	"github.com/mmeshcher/scheme-eligibility/internal/rules"
	"github.com/mmeshcher/scheme-eligibility/internal/validation"
)

const app = "schemectl"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          app,
		Short:        "schemectl validates scheme catalogs and evaluates profiles against them",
		SilenceUsage: true,
	}

	root.AddCommand(newValidateCmd(), newMatchCmd(), newFieldsCmd(), newTokenCmd())
	return root
}

// loadCatalog читает каталог из файла или встроенный каталог, если путь пуст.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalog]",
		Short: "Check that a catalog file loads; without an argument checks the embedded catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			c, err := loadCatalog(path)
			if err != nil {
				return err
			}

			for _, s := range c.List() {
				rule := "(no conditions)"
				if s.Rule != nil {
					rule = s.Rule.String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.ID, rule)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d schemes\n", c.Len())
			return nil
		},
	}
}

type matchOutput struct {
	TotalSchemes  int             `json:"total_schemes"`
	EligibleCount int             `json:"eligible_count"`
	Verdicts      []verdictOutput `json:"verdicts"`
}

type verdictOutput struct {
	SchemeID         string   `json:"scheme_id"`
	Eligible         bool     `json:"eligible"`
	Reason           string   `json:"reason"`
	FailedConditions []string `json:"failed_conditions,omitempty"`
}

func newMatchCmd() *cobra.Command {
	var (
		catalogPath   string
		profilePath   string
		eligibleFirst bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Evaluate a profile (YAML or JSON) against every scheme in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(profilePath)
			if err != nil {
				return fmt.Errorf("read profile: %w", err)
			}
			var p model.UserProfile
			if err := yaml.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode profile: %w", err)
			}
			p = validation.Normalize(p)
			if err := validation.ValidateProfile(p); err != nil {
				return fmt.Errorf("invalid profile: %w", err)
			}

			verdicts := matching.NewEngine(nil).Match(p, c, matching.Options{SortEligibleFirst: eligibleFirst})
			summary := matching.Summarize(verdicts)

			out := matchOutput{
				TotalSchemes:  summary.TotalSchemes,
				EligibleCount: summary.EligibleCount,
				Verdicts:      make([]verdictOutput, 0, len(verdicts)),
			}
			for _, v := range verdicts {
				out.Verdicts = append(out.Verdicts, verdictOutput{
					SchemeID:         v.SchemeID,
					Eligible:         v.Eligible,
					Reason:           v.Reason,
					FailedConditions: v.FailedConditions,
				})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&catalogPath, "catalog", "c", "", "catalog file (default is the embedded catalog)")
	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "profile file")
	cmd.Flags().BoolVar(&eligibleFirst, "eligible-first", false, "list eligible schemes before the rest")
	_ = cmd.MarkFlagRequired("profile")

	return cmd
}

func newFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List profile fields usable in eligibility rules",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, f := range rules.Fields() {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		role   string
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user; use --role reviewer for status changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("secret is required: pass --secret or set JWT_SECRET")
			}
			if userID <= 0 {
				return fmt.Errorf("user id must be positive, got %d", userID)
			}

			token, err := middleware.NewAuthMiddleware(secret).IssueToken(userID, role, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "user id (token subject)")
	cmd.Flags().StringVarP(&role, "role", "r", "", "role claim, e.g. reviewer")
	cmd.Flags().StringVarP(&secret, "secret", "s", "", "signing secret (default is $JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
