package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/clonecademy/clonecademy/client"
)

func newCourseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "course <id>",
		Short: "Show a course and your progress in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view := client.NewCourseView(a.srv, a.logger)
			if err := view.Load(cmd.Context(), client.CourseID(args[0])); err != nil {
				return err
			}
			printCourse(a.out, view.State())
			return nil
		},
	}
}

func printCourse(out io.Writer, st client.CourseViewState) {
	switch {
	case st.Loading:
		fmt.Fprintln(out, "Loading...")
		return
	case st.Err != nil:
		fmt.Fprintln(out, "Error:", st.Err)
		return
	case st.Course == nil:
		return
	}

	c := st.Course
	fmt.Fprintf(out, "%s (%s)\n", c.Name, st.Completion)
	for i, m := range c.Modules {
		fmt.Fprintf(out, "  %d. %s\n", i+1, m.Name)
		for j, q := range m.Questions {
			mark := " "
			if c.IsSolved(q.ID) {
				mark = "x"
			}
			fmt.Fprintf(out, "     [%s] %d.%d %s\n", mark, i+1, j+1, q.Title)
		}
	}
}
