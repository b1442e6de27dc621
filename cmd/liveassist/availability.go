package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/chat"
)

func newAvailabilityCommand() *cobra.Command {
	var skill string
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Check whether an agent is available to take a chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := chat.New(settings)
			if err != nil {
				return err
			}
			availability, err := session.GetAvailability(cmd.Context(), chat.AvailabilityOptions{Skill: skill})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "availability: %t\n", availability.Availability)
			return nil
		},
	}
	cmd.Flags().StringVar(&skill, "skill", "", "restrict the check to a skill")
	return cmd
}
