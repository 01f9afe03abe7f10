package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/notification"
	"github.com/trezcool/shule/core/user"
)

type notificationApi struct {
	service *notification.Service
	userSvc *user.Service
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *notification.Service, userSvc *user.Service) {
	api := notificationApi{service: svc, userSvc: userSvc}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.notificationQuery)
	ng.GET("/unread-count", api.notificationUnreadCount)
	ng.POST("/:id/read", api.notificationMarkRead)

	g.POST("/devices", api.deviceRegister, jwt)
	g.POST("/announcements", api.announcementCreate, jwt, adminMiddleware())
}

// Handlers

func (api *notificationApi) notificationQuery(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	notifs, err := api.service.Query(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) notificationUnreadCount(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	count, err := api.service.UnreadCount(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UnreadCountResponse{Count: count})
}

func (api *notificationApi) notificationMarkRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	n, err := api.service.Get(reqCtx, ctx.Param("id"))
	if err != nil || n.UserID != claims.Subject { // foreign notifications do not exist
		return errHttpNotFound
	}

	if err = api.service.MarkRead(reqCtx, n.ID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) deviceRegister(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	data := new(notification.NewDeviceToken)
	if err = ctx.Bind(data); err != nil {
		return err
	}
	if err = data.Validate(); err != nil {
		return err
	}

	dt, err := api.service.RegisterDevice(ctx.Request().Context(), claims.Subject, data.Token)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, dt)
}

func (api *notificationApi) announcementCreate(ctx echo.Context) error {
	data := new(AnnouncementRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()

	// no explicit recipients: announce to everyone
	recipients := data.RecipientIDs
	if len(recipients) == 0 {
		users, err := api.userSvc.QueryAll(reqCtx)
		if err != nil {
			return err
		}
		for _, usr := range users {
			if usr.IsActive {
				recipients = append(recipients, usr.ID)
			}
		}
	}

	res := api.service.Announce(reqCtx, data.Title, data.Body, recipients)
	return ctx.JSON(http.StatusAccepted, AnnouncementResponse{
		Recipients: len(recipients),
		PushSent:   res.Success,
		PushFailed: res.Failed,
	})
}

type (
	UnreadCountResponse struct {
		Count int `json:"count"`
	}

	AnnouncementRequest struct {
		Title        string   `json:"title" validate:"required"`
		Body         string   `json:"body"`
		RecipientIDs []string `json:"recipient_ids"`
	}

	AnnouncementResponse struct {
		Recipients int `json:"recipients"`
		PushSent   int `json:"push_sent"`
		PushFailed int `json:"push_failed"`
	}
)

func (ar *AnnouncementRequest) Validate() error {
	ar.Title = core.CleanString(ar.Title)
	ar.Body = core.CleanString(ar.Body)
	return core.Validate.Struct(ar)
}
