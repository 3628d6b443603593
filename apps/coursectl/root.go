package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/clonecademy/clonecademy/client"
	"github.com/clonecademy/clonecademy/core"
)

var readPasswordFunc = term.ReadPassword // mockable

// app carries what every command needs; srv is built before any command runs.
type app struct {
	conf   *core.Config
	logger core.Logger
	in     io.Reader
	out    io.Writer
	srv    *client.Server

	apiURL    string
	tokenFile string
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "coursectl",
		Short:         "Browse CloneCademy courses from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.connect()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.out)

	root.PersistentFlags().StringVar(&a.apiURL, "api", "", "API base URL (overrides <ENV>_CLIENT_BASEURL)")
	root.PersistentFlags().StringVar(&a.tokenFile, "token-file", defaultTokenFile(), "File holding the session token")

	root.AddCommand(newLoginCmd(a))
	root.AddCommand(newCourseCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newRequestModCmd(a))
	return root
}

func (a *app) connect() error {
	conf := a.conf.Client
	if a.apiURL != "" {
		conf.BaseURL = a.apiURL
	}
	if conf.Token == "" {
		conf.Token = a.readToken()
	}
	srv, err := client.NewServer(conf, a.logger)
	if err != nil {
		return errors.Wrap(err, "creating client")
	}
	a.srv = srv
	return nil
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".coursectl-token"
	}
	return filepath.Join(dir, "clonecademy", "token")
}

// readToken returns the saved token, or "" when there is none.
func (a *app) readToken() string {
	if a.tokenFile == "" {
		return ""
	}
	b, err := os.ReadFile(a.tokenFile)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warn("reading token file", err)
		}
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (a *app) saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(a.tokenFile), 0o700); err != nil {
		return errors.Wrap(err, "creating token directory")
	}
	return errors.Wrap(os.WriteFile(a.tokenFile, []byte(token+"\n"), 0o600), "writing token file")
}

// promptPassword reads a password from the terminal without echoing it.
func (a *app) promptPassword(label string) (string, error) {
	fmt.Fprint(a.out, label)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
