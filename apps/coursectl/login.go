package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and save the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := a.promptPassword("Password: ")
			if err != nil {
				return errors.Wrap(err, "reading password")
			}
			if err = a.srv.Login(cmd.Context(), args[0], pwd); err != nil {
				return err
			}
			if err = a.saveToken(a.srv.Token()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s.\n", args[0])
			return nil
		},
	}
}
