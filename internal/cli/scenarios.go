package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	scenariosJSON  bool
	scenariosCheck bool
)

const healthCheckTimeout = 5 * time.Second

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the available conversation scenarios",
	Long: `List the scenarios loaded from the scenarios directory.

With --check, the intelligence service health endpoint is checked as well;
in scripted mode the check always reports "scripted".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Scenarios == nil {
			return fmt.Errorf("scenario store not initialized")
		}
		out := cmd.OutOrStdout()
		list := Scenarios.List()

		if scenariosJSON {
			data, err := json.MarshalIndent(list, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting scenarios as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
		} else if len(list) == 0 {
			fmt.Fprintln(out, "No scenarios found.")
		} else {
			fmt.Fprintf(out, "%-28s %-10s %-14s %s\n", "ID", "MESSAGES", "TICKET", "TITLE")
			for _, s := range list {
				ticket := s.TicketNumber
				if ticket == "" {
					ticket = "-"
				}
				if s.IsGapScenario {
					ticket += " (gap)"
				}
				fmt.Fprintf(out, "%-28s %-10d %-14s %s\n", s.ID, s.MessageCount, ticket, s.Title)
			}
		}

		if !scenariosCheck {
			return nil
		}
		if Intelligence == nil {
			return fmt.Errorf("intelligence service not initialized")
		}
		ctx, cancel := context.WithTimeout(commandContext(cmd), healthCheckTimeout)
		defer cancel()
		health, err := Intelligence.Health(ctx)
		if err != nil {
			return fmt.Errorf("intelligence service unreachable: %w", err)
		}
		fmt.Fprintf(out, "\nIntelligence service: %s\n", health.Status)
		return nil
	},
}

var scenariosShowCmd = &cobra.Command{
	Use:   "show <scenario-id>",
	Short: "Print a scenario definition as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Scenarios == nil {
			return fmt.Errorf("scenario store not initialized")
		}
		sc, err := Scenarios.Get(args[0])
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(sc)
		if err != nil {
			return fmt.Errorf("formatting scenario %s: %w", sc.ID, err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	scenariosCmd.Flags().BoolVar(&scenariosJSON, "json", false, "Output scenarios as JSON")
	scenariosCmd.Flags().BoolVar(&scenariosCheck, "check", false, "Also check the intelligence service health endpoint")
	scenariosCmd.AddCommand(scenariosShowCmd)
	rootCmd.AddCommand(scenariosCmd)
}
