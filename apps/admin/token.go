package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	echoapi "github.com/elecmate/sitebrief/apps/api/echo"
	"github.com/elecmate/sitebrief/core/user"
)

// tokenCmd mints a JWT like the ones the auth provider issues, for local development.
func (cli *commandLine) tokenCmd() *cobra.Command {
	var usr user.User

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development API token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !usr.IsAuthenticated() {
				return usageErr(cmd)
			}
			if cli.conf.Env == "PROD" {
				return errors.New("refusing to mint tokens in PROD")
			}
			token, err := echoapi.GenerateToken(cli.conf, echoapi.GetUserClaims(cli.conf, usr))
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&usr.ID, "user-id", "", "the user's id (JWT subject)")
	cmd.Flags().StringVar(&usr.Email, "email", "", "the user's email")
	cmd.Flags().StringVar(&usr.Name, "name", "", "the user's display name")
	return cmd
}
