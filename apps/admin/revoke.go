package main

import (
	"github.com/spf13/cobra"

	"github.com/elecmate/sitebrief/core/user"
)

func (cli *commandLine) revokeCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "revoke BRIEFING_ID",
		Short: "Deactivate a briefing's signing links",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || userID == "" {
				return usageErr(cmd)
			}
			n, err := cli.svc.RevokeTokens(cmd.Context(), user.User{ID: userID}, args[0])
			if err != nil {
				return err
			}
			printf(cmd, "revoked %d signing link(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "the briefing owner's id")
	return cmd
}
