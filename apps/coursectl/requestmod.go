package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/clonecademy/clonecademy/client"
)

func newRequestModCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "request-mod <reason>...",
		Short: "Ask the admins for moderator rights",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := client.NewModRequestForm(a.srv)
			if err := form.Check(cmd.Context()); err != nil {
				return err
			}
			if !form.State().Available {
				fmt.Fprintln(a.out, "You already requested moderator rights.")
				return nil
			}

			if err := form.Send(cmd.Context(), strings.Join(args, " ")); err != nil {
				if errors.Cause(err) == client.ErrModRequestUnavailable {
					return err
				}
				return errors.Errorf("request refused: %s", form.State().ErrorMessage)
			}
			fmt.Fprintln(a.out, "Request sent, the admins will get back to you.")
			return nil
		},
	}
}
