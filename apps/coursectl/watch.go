package main

import (
	"bufio"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/clonecademy/clonecademy/client"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [id]",
		Short: "Open courses by typing their ids, one per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var initial client.Params
			if len(args) == 1 {
				initial = client.Params{client.DefaultParamKey: args[0]}
			}
			src := client.NewParamSource(initial)

			view := client.NewCourseView(a.srv, a.logger)
			view.OnChange = func(st client.CourseViewState) { printCourse(a.out, st) }
			sub := view.Listen(ctx, src)
			defer sub.Close()

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(a.in)
				for scanner.Scan() {
					select {
					case lines <- scanner.Text():
					case <-ctx.Done():
						return
					}
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						// end of input: let the pending loads print before leaving
						sub.Drain()
						return errors.Wrap(sub.Err(), "loading course")
					}
					if id := strings.TrimSpace(line); id != "" {
						src.Navigate(client.Params{client.DefaultParamKey: id})
					}
				}
			}
		},
	}
}
