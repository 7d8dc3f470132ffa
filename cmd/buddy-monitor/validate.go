package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"buddy-monitor/internal/config"
)

func validateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print the resulting checks and repairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}

			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen).SprintFunc()
			gray := color.New(color.FgHiBlack).SprintFunc()
			cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

			fmt.Fprintf(out, "%s\n\n", green("Configuration valid"))

			fmt.Fprintf(out, "%s\n", cyan("Checks:"))
			for _, name := range config.CheckNames() {
				check, _ := cfg.GetCheckConfig(name)
				if !check.Enabled {
					fmt.Fprintf(out, "  %s %s\n", gray("○"), gray(name+" (disabled)"))
					continue
				}
				critical := ""
				if check.Critical {
					critical = " critical"
				}
				fmt.Fprintf(out, "  %s %-16s every %s%s\n", green("●"), name, time.Duration(check.Interval), critical)
			}

			fmt.Fprintf(out, "\n%s\n", cyan("Repairs:"))
			for _, name := range config.RepairNames() {
				repair, _ := cfg.GetRepairConfig(name)
				if !repair.Enabled {
					fmt.Fprintf(out, "  %s %s\n", gray("○"), gray(name+" (disabled)"))
					continue
				}
				fmt.Fprintf(out, "  %s %-22s cooldown %s\n", green("●"), name, time.Duration(repair.Cooldown))
			}

			return nil
		},
	}
}
