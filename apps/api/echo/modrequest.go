package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/clonecademy/clonecademy/core/course"
	"github.com/clonecademy/clonecademy/core/user"
)

// ModRequestResponse acknowledges a moderator request.
type ModRequestResponse struct {
	Request string `json:"Request"`
}

// profileAPI serves the authenticated user's own resources under /user.
type profileAPI struct {
	svc       user.ServiceInterface
	courseSvc course.ServiceInterface
	validate  *validator.Validate
}

func registerModRequestAPI(
	g *echo.Group,
	jwt, limiter echo.MiddlewareFunc,
	svc user.ServiceInterface,
	courseSvc course.ServiceInterface,
	validate *validator.Validate,
) {
	api := profileAPI{svc: svc, courseSvc: courseSvc, validate: validate}

	pg := g.Group("/user", jwt, activeUserMiddleware(svc))
	pg.GET("/can_request_mod", api.canRequestMod)
	pg.POST("/request_mod", api.requestMod, limiter)
	pg.GET("/statistics", api.statistics)
}

func (api *profileAPI) canRequestMod(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, api.svc.ModRequestStatus(usr))
}

func (api *profileAPI) requestMod(ctx echo.Context) error {
	var data user.ModRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ModRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.RequestMod(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "requesting moderator rights")
	}
	return ctx.JSON(http.StatusOK, ModRequestResponse{Request: "ok"})
}

func (api *profileAPI) statistics(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	stats, err := api.courseSvc.Statistics(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying statistics")
	}
	if stats == nil {
		stats = []course.QuestionStatistic{}
	}
	return ctx.JSON(http.StatusOK, stats)
}
