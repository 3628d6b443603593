package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/clonecademy/clonecademy/core/course"
	"github.com/clonecademy/clonecademy/core/user"
)

type courseAPI struct {
	svc      course.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc user.ServiceInterface,
	svc course.ServiceInterface,
	validate *validator.Validate,
) {
	api := courseAPI{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}
	authed := activeUserMiddleware(usrSvc)
	moderator := moderatorMiddleware(usrSvc)

	cg := g.Group("/categories", jwt, authed)
	cg.GET("", api.queryCategories)
	cg.POST("", api.createCategory, moderator)

	g.GET("/statistics", api.allStatistics, jwt, adminMiddleware(usrSvc))

	ug := g.Group("/courses", jwt, authed)
	ug.GET("", api.query)
	ug.POST("", api.save, moderator)

	ug.GET("/:id", api.detail)
	ug.PUT("/:id", api.save, moderator)
	ug.GET("/:id/edit", api.retrieveForEdit, moderator)
	ug.POST("/:id/visibility", api.toggleVisibility, moderator)

	ug.GET("/:id/:module", api.module)
	ug.GET("/:id/:module/:question", api.question)
	ug.POST("/:id/:module/:question", api.answer)
}

// Handlers

func (api *courseAPI) queryCategories(ctx echo.Context) error {
	cats, err := api.svc.Categories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	if cats == nil {
		cats = []course.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *courseAPI) createCategory(ctx echo.Context) error {
	var data course.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	cat, err := api.svc.CreateCategory(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *courseAPI) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.CourseSummary{})
	}
	filter.Clean()

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	courses, err := api.svc.Query(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.CourseSummary{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

// save creates a course on POST /courses and edits it on PUT /courses/:id.
func (api *courseAPI) save(ctx echo.Context) error {
	var data course.SaveCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveCourse")
	}

	code := http.StatusCreated
	data.ID = 0
	if ctx.Param("id") != "" {
		id, err := bindCourseID(ctx)
		if err != nil {
			return err
		}
		data.ID = id
		code = http.StatusOK
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.Save(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "saving course")
	}
	return ctx.JSON(code, c)
}

func (api *courseAPI) retrieveForEdit(ctx echo.Context) error {
	id, err := bindCourseID(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.GetForEdit(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseAPI) toggleVisibility(ctx echo.Context) error {
	id, err := bindCourseID(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.ToggleVisibility(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "toggling visibility")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"id": c.ID, "is_visible": c.IsVisible})
}

func (api *courseAPI) detail(ctx echo.Context) error {
	id, err := bindCourseID(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	detail, err := api.svc.Detail(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *courseAPI) module(ctx echo.Context) error {
	id, err := bindCourseID(ctx)
	if err != nil {
		return err
	}
	idx, err := bindIndex(ctx, "module")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	m, err := api.svc.Module(ctx.Request().Context(), usr, id, idx)
	if err != nil {
		return errors.Wrap(err, "getting module")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *courseAPI) question(ctx echo.Context) error {
	id, err := bindCourseID(ctx)
	if err != nil {
		return err
	}
	pos, err := bindPosition(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := api.svc.Question(ctx.Request().Context(), usr, id, pos)
	if err != nil {
		return errors.Wrap(err, "getting question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *courseAPI) answer(ctx echo.Context) error {
	id, err := bindCourseID(ctx)
	if err != nil {
		return err
	}
	pos, err := bindPosition(ctx)
	if err != nil {
		return err
	}
	var data course.AnswerRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AnswerRequest")
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.svc.Answer(ctx.Request().Context(), usr, id, pos, data)
	if err != nil {
		return errors.Wrap(err, "answering question")
	}
	return ctx.JSON(http.StatusOK, res)
}

// allStatistics lists every user's tries, admins only.
func (api *courseAPI) allStatistics(ctx echo.Context) error {
	stats, err := api.svc.AllStatistics(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying statistics")
	}
	if stats == nil {
		stats = []course.QuestionStatistic{}
	}
	return ctx.JSON(http.StatusOK, stats)
}
