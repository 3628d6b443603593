package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/course"
	"github.com/clonecademy/clonecademy/core/user"
)

// courseFile is the import format:
//
//	categories: [Biochemistry]
//	courses:
//	  - name: Genetics
//	    category: Biochemistry
//	    modules:
//	      - name: Basics
//	        questions:
//	          - {type: info_text, title: Read, text_field: ...}
type courseFile struct {
	Categories []string            `yaml:"categories"`
	Courses    []course.SaveCourse `yaml:"courses"`
}

// loadCourses imports the courses of r on behalf of the moderator modUname. Missing categories
// are created; courses whose name is taken are skipped.
func (cli *commandLine) loadCourses(r io.Reader, modUname string) error {
	ctx := context.Background()

	var file courseFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return errors.Wrap(err, "decoding courses")
	}

	mod, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: core.CleanString(modUname, true /* lower */)})
	if err != nil {
		return errors.Wrapf(err, "getting moderator %q", modUname)
	}

	names := append([]string(nil), file.Categories...)
	for _, c := range file.Courses {
		names = append(names, c.Category)
	}
	for _, name := range names {
		if err = cli.ensureCategory(ctx, mod, name); err != nil {
			return err
		}
	}

	var created, skipped int
	for _, data := range file.Courses {
		data.ID = 0
		if err = data.Validate(cli.validate); err != nil {
			return errors.Wrapf(err, "course %q", data.Name)
		}
		exists, err := cli.courseRepo.CourseNameExists(ctx, data.Name, 0)
		if err != nil {
			return errors.Wrap(err, "checking course name")
		}
		if exists {
			skipped++
			fmt.Fprintf(cli.out, "skipped %q: name taken\n", data.Name)
			continue
		}
		if _, err = cli.courseSvc.Save(ctx, mod, data); err != nil {
			return errors.Wrapf(err, "saving course %q", data.Name)
		}
		created++
	}
	fmt.Fprintf(cli.out, "%d course(s) imported, %d skipped\n", created, skipped)
	return nil
}

func (cli *commandLine) ensureCategory(ctx context.Context, mod user.User, name string) error {
	nc := course.NewCategory{Name: name}
	if err := nc.Validate(cli.validate); err != nil {
		return errors.Wrapf(err, "category %q", name)
	}
	_, err := cli.courseRepo.GetCategoryByName(ctx, nc.Name)
	if err == nil {
		return nil
	}
	if errors.Cause(err) != course.ErrCategoryNotFound {
		return errors.Wrap(err, "getting category")
	}
	if _, err = cli.courseSvc.CreateCategory(ctx, mod, nc); err != nil {
		return errors.Wrapf(err, "creating category %q", nc.Name)
	}
	return nil
}
