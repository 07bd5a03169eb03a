package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/roster"
)

type rosterApi struct {
	svc      *roster.Service
	blobs    blobDeps
	validate *validator.Validate
}

func registerRosterAPI(g *echo.Group, api rosterApi) {
	cg := g.Group("/classes")
	cg.GET("", api.queryClassRooms)
	cg.POST("", api.createClassRoom)
	cg.GET("/:id", api.retrieveClassRoom)
	cg.PUT("/:id", api.updateClassRoom)
	cg.DELETE("/:id", api.destroyClassRoom)

	sg := g.Group("/students")
	sg.GET("", api.queryStudents)
	sg.POST("", api.createStudent)
	sg.GET("/:id", api.retrieveStudent)
	sg.PUT("/:id", api.updateStudent)
	sg.DELETE("/:id", api.destroyStudent)
	sg.POST("/:id/toggle", api.toggleStudent)
	sg.PUT("/:id/photo", api.replacePhoto)
}

// ClassRooms

func (api *rosterApi) queryClassRooms(ctx echo.Context) error {
	var filter roster.ClassRoomFilter
	if err := bind(ctx, &filter, "ClassRoomFilter"); err != nil {
		return err
	}
	classes, err := api.svc.QueryClassRooms(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []roster.ClassRoomView{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *rosterApi) createClassRoom(ctx echo.Context) error {
	var data roster.ClassRoomInput
	if err := bind(ctx, &data, "ClassRoomInput"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	class, err := api.svc.CreateClassRoom(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, class)
}

func (api *rosterApi) retrieveClassRoom(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	class, err := api.svc.GetClassRoom(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding class")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *rosterApi) updateClassRoom(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data roster.ClassRoomInput
	if err = bind(ctx, &data, "ClassRoomInput"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	class, err := api.svc.UpdateClassRoom(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *rosterApi) destroyClassRoom(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteClassRoom(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *rosterApi) queryStudents(ctx echo.Context) error {
	var filter roster.StudentFilter
	if err := bind(ctx, &filter, "StudentFilter"); err != nil {
		return err
	}
	students, pageInfo, err := api.svc.FilterStudents(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "filtering students")
	}
	resp := StudentPage{Students: make([]StudentResponse, 0, len(students)), PageInfo: pageInfo}
	for _, s := range students {
		resp.Students = append(resp.Students, newStudentResponse(s, api.svc.PhotoURL))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *rosterApi) createStudent(ctx echo.Context) error {
	var data roster.StudentInput
	if err := bind(ctx, &data, "StudentInput"); err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}
	student, err := api.svc.CreateStudent(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, student)
}

func (api *rosterApi) retrieveStudent(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	student, err := api.svc.GetStudent(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, newStudentResponse(student, api.svc.PhotoURL))
}

func (api *rosterApi) updateStudent(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data roster.StudentInput
	if err = bind(ctx, &data, "StudentInput"); err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if _, err = api.svc.GetStudent(rctx, id); err != nil {
		return errors.Wrap(err, "finding student")
	}
	if err = data.Validate(rctx, api.validate, api.svc, id); err != nil {
		return err
	}
	student, err := api.svc.UpdateStudent(rctx, id, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *rosterApi) destroyStudent(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	deactivated, err := api.svc.DeleteStudent(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if deactivated {
		return ctx.JSON(http.StatusOK, SuccessResponse{
			Success: "The student has attendance history and was deactivated instead.",
		})
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *rosterApi) toggleStudent(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	student, err := api.svc.ToggleStatus(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "toggling student status")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *rosterApi) replacePhoto(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	r, err := api.blobs.formFile(ctx, "photo")
	if err != nil {
		return err
	}
	if r == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "photo", Error: "this field is required"})
	}
	student, err := api.svc.ReplacePhoto(ctx.Request().Context(), id, r)
	if err != nil {
		return errors.Wrap(err, "replacing photo")
	}
	return ctx.JSON(http.StatusOK, newStudentResponse(roster.StudentView{Student: student}, api.svc.PhotoURL))
}

type (
	StudentPage struct {
		Students []StudentResponse `json:"students"`
		PageInfo core.PageInfo     `json:"page_info"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)
