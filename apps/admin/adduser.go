package main

import (
	"context"
	"fmt"

	"github.com/clonecademy/clonecademy/core/user"
)

// addUser creates an active user. Rights are granted as given, no matter who runs the command.
func (cli *commandLine) addUser(nu user.NewUser) error {
	ctx := context.Background()
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	name := usr.Username
	if name == "" {
		name = usr.Email
	}
	fmt.Fprintf(cli.out, "user %q created (id %s)\n", name, usr.ID)
	return nil
}
