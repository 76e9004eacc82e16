package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/huntingdonterrace/issueboard/internal/app"
	"github.com/huntingdonterrace/issueboard/internal/config"
	"github.com/huntingdonterrace/issueboard/internal/dispatch"
)

var rootCmd = &cobra.Command{
	Use:   "issueboard",
	Short: "issueboard - community issue tracking and weekly report delivery",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the full service (channels + weekly scheduler + API)",
	RunE:  runServe,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate and send the weekly report now",
	RunE:  runReport,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize the config file",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show issueboard configuration status",
	RunE:  runStatus,
}

var (
	channelFlag   string
	recipientFlag string
)

func init() {
	reportCmd.Flags().StringVarP(&channelFlag, "channel", "c", "", "Delivery channel (email, whatsapp, telegram)")
	reportCmd.Flags().StringVarP(&recipientFlag, "recipient", "r", "", "Recipient override (address, phone number or chat id)")
	_ = reportCmd.MarkFlagRequired("channel")
	rootCmd.AddCommand(serveCmd, reportCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	return a.Run(context.Background())
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	ctx := context.Background()
	if err := a.Channels().StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	defer func() { _ = a.Channels().StopAll() }()

	attempt, summary := a.Reporter().SendNow(ctx, dispatch.Target{
		Channel:   channelFlag,
		Recipient: recipientFlag,
	})

	fmt.Printf("Channel: %s\n", attempt.Channel)
	fmt.Printf("Outcome: %s\n", attempt.Outcome)
	if attempt.Err != "" {
		fmt.Printf("Error: %s\n", attempt.Err)
	}
	if summary != nil {
		fmt.Printf("Period: %s to %s\n",
			summary.WeekStart.Format("2006-01-02"), summary.WeekEnd.Format("2006-01-02"))
		fmt.Printf("Issues: total=%d new=%d resolved=%d\n",
			summary.TotalIssues, summary.NewIssues, summary.ResolvedIssues)
	}

	if attempt.Outcome != dispatch.OutcomeSent {
		return fmt.Errorf("report not delivered: %s", attempt.Outcome)
	}
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set the Airtable credentials\n", cfgPath)
	fmt.Println("  2. Enable the channels you want reports on")
	fmt.Println("  3. Run 'issueboard serve' and scan the WhatsApp QR code if enabled")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	if cfg.Store.APIKey != "" && len(cfg.Store.APIKey) > 8 {
		masked := cfg.Store.APIKey[:4] + "..." + cfg.Store.APIKey[len(cfg.Store.APIKey)-4:]
		fmt.Printf("Airtable key: %s\n", masked)
	} else if cfg.Store.APIKey != "" {
		fmt.Println("Airtable key: set")
	} else {
		fmt.Println("Airtable key: not set")
	}
	fmt.Printf("Airtable base: %s table: %s\n", cfg.Store.BaseID, cfg.Store.Table)
	fmt.Printf("Report cadence: %s order=%v\n", cfg.Report.Cron, cfg.Report.Order)
	fmt.Printf("Email: enabled=%v\n", cfg.Channels.Email.Enabled)
	fmt.Printf("WhatsApp: enabled=%v\n", cfg.Channels.WhatsApp.Enabled)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)

	return nil
}
