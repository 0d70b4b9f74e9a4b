package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"MediaRadar/internal/domain"
)

var (
	campaignOrg     string
	campaignID      string
	monitorStatuses []string
	approveDryRun   bool
	approveMinScore float64
	approveMinTier  string
	approveMaxCount int
)

var readinessCmd = &cobra.Command{
	Use:   "readiness",
	Short: "Evaluate readiness of one campaign",
	RunE:  runReadiness,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Evaluate readiness of every campaign in an organization",
	RunE:  runMonitor,
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Auto-approve matched opportunities of a campaign",
	RunE:  runApprove,
}

func init() {
	for _, c := range []*cobra.Command{readinessCmd, monitorCmd, approveCmd} {
		c.Flags().StringVar(&campaignOrg, "org", "", "organization ID")
		_ = c.MarkFlagRequired("org")
	}
	for _, c := range []*cobra.Command{readinessCmd, approveCmd} {
		c.Flags().StringVar(&campaignID, "campaign", "", "campaign ID")
		_ = c.MarkFlagRequired("campaign")
	}

	monitorCmd.Flags().StringSliceVar(&monitorStatuses, "status", nil, "campaign statuses to include (draft, active, executing, paused, completed)")

	approveCmd.Flags().BoolVar(&approveDryRun, "dry-run", false, "report the selection without approving")
	approveCmd.Flags().Float64Var(&approveMinScore, "min-score", 0, "minimum opportunity score (overrides config)")
	approveCmd.Flags().StringVar(&approveMinTier, "min-tier", "", "minimum outlet tier A, B or C (overrides config)")
	approveCmd.Flags().IntVar(&approveMaxCount, "max-count", 0, "maximum approvals per run (overrides config)")

	rootCmd.AddCommand(readinessCmd, monitorCmd, approveCmd)
}

func runReadiness(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.Service().CalculateReadiness(cmd.Context(), campaignOrg, campaignID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	statuses := make([]domain.CampaignStatus, 0, len(monitorStatuses))
	for _, s := range monitorStatuses {
		statuses = append(statuses, domain.CampaignStatus(strings.ToLower(strings.TrimSpace(s))))
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.Service().MonitorCampaignsReadiness(cmd.Context(), campaignOrg, statuses...)
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}
	return report.Err()
}

func runApprove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	policy := cfg.ApprovalPolicy()
	policy.DryRun = approveDryRun

	flags := cmd.Flags()
	if flags.Changed("min-score") {
		policy.MinScore = approveMinScore
	}
	if flags.Changed("min-tier") {
		tier, ok := domain.ParseTier(approveMinTier)
		if !ok {
			return fmt.Errorf("invalid --min-tier %q", approveMinTier)
		}
		policy.MinTier = tier
	}
	if flags.Changed("max-count") {
		policy.MaxCount = approveMaxCount
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.Service().AutoApproveMatches(cmd.Context(), campaignOrg, campaignID, policy)
	if err != nil {
		return err
	}
	return printJSON(result)
}
