package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/course"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=field,-other` to DB orderings; "-" means descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindCourseID reads the `:id` path param. Malformed ids are reported as not found.
func bindCourseID(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errHTTPNotFound
	}
	return id, nil
}

func bindIndex(ctx echo.Context, name string) (int, error) {
	idx, err := strconv.Atoi(ctx.Param(name))
	if err != nil || idx < 1 {
		return 0, errHTTPNotFound
	}
	return idx, nil
}

// bindPosition reads the 1-based `:module` and `:question` path params.
func bindPosition(ctx echo.Context) (course.Position, error) {
	var (
		pos course.Position
		err error
	)
	if pos.Module, err = bindIndex(ctx, "module"); err != nil {
		return pos, err
	}
	pos.Question, err = bindIndex(ctx, "question")
	return pos, err
}
