package controller

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-campaigns/app/dispatch"
	"github.com/vibast-solutions/ms-go-campaigns/app/dto"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
	"github.com/vibast-solutions/ms-go-campaigns/app/ingest"
	"github.com/vibast-solutions/ms-go-campaigns/app/service"
)

// Dispatcher streams the progress of a campaign while delivering it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job entity.CampaignJob) iter.Seq[dispatch.Event]
}

// Scheduler queues a campaign for background delivery.
type Scheduler interface {
	Schedule(ctx context.Context, delay time.Duration, job entity.CampaignJob) error
}

type CampaignController struct {
	campaigns   *service.CampaignService
	dispatcher  Dispatcher
	scheduler   Scheduler
	defaultMode string
	log         logrus.FieldLogger
}

// NewCampaignController constructs the HTTP campaign controller.
func NewCampaignController(campaigns *service.CampaignService, dispatcher Dispatcher, scheduler Scheduler, defaultMode string, log logrus.FieldLogger) *CampaignController {
	return &CampaignController{
		campaigns:   campaigns,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		defaultMode: defaultMode,
		log:         log,
	}
}

// Submit validates the form, stores the campaign and then either streams
// delivery progress or hands the campaign to the background queue.
func (c *CampaignController) Submit(ctx echo.Context) error {
	req, err := dto.SubmitFromEchoContext(ctx, c.defaultMode)
	if err != nil {
		if isInputError(err) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		c.log.WithError(err).Error("read campaign submission")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to send emails"})
	}

	reqCtx := requestContext(ctx)
	campaign, job, err := c.campaigns.Submit(reqCtx, service.SubmitInput{
		CampaignName: req.CampaignName,
		Subject:      req.Subject,
		Body:         req.Body,
		Interval:     req.Interval,
		CSV:          req.File,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrIntervalTooLow) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": dto.ErrIntervalTooLow.Error()})
		}
		if isInputError(err) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		c.log.WithError(err).Error("submit campaign")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create campaign"})
	}

	if req.Mode == dto.ModeScheduled {
		if err := c.scheduler.Schedule(reqCtx, req.Delay, job); err != nil {
			c.log.WithError(err).WithField("campaign_id", campaign.ID).Error("schedule campaign")
			return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to schedule campaign"})
		}
		return ctx.JSON(http.StatusOK, map[string]any{
			"success":    true,
			"campaignId": campaign.ID,
			"message":    "Campaign scheduled",
		})
	}

	return c.stream(ctx, job)
}

// stream writes one JSON event per line and flushes after each. When the
// client goes away before the campaign finishes, the rest is queued.
func (c *CampaignController) stream(ctx echo.Context, job entity.CampaignJob) error {
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Campaign-ID", job.CampaignID)
	res.WriteHeader(http.StatusOK)
	res.Flush()

	reqCtx := ctx.Request().Context()
	log := c.log.WithField("campaign_id", job.CampaignID)
	enc := json.NewEncoder(res)

	writeFailed := false
	finished := false
	for ev := range c.dispatcher.Dispatch(reqCtx, job) {
		if ev.Type == dispatch.EventComplete {
			finished = true
		}
		if err := enc.Encode(ev); err != nil {
			log.WithError(err).Warn("write progress event")
			writeFailed = true
			break
		}
		res.Flush()
	}

	if !finished && (writeFailed || reqCtx.Err() != nil) {
		log.Info("client disconnected, handing campaign to the queue")
		if err := c.scheduler.Schedule(context.WithoutCancel(reqCtx), 0, job); err != nil {
			log.WithError(err).Error("hand off campaign")
		}
	}
	return nil
}

// UpdateRecipient sets the delivery flag of one campaign recipient.
func (c *CampaignController) UpdateRecipient(ctx echo.Context) error {
	req, err := dto.UpdateRecipientFromEchoContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	rec, err := c.campaigns.UpdateRecipient(requestContext(ctx), req.CampaignID, req.Email, req.IsSent)
	if err != nil {
		if errors.Is(err, service.ErrRecipientNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		c.log.WithError(err).Error("update recipient")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update email status"})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"email":   rec.Email,
		"isSent":  rec.IsSent,
	})
}

// Status returns the stored state of one campaign.
func (c *CampaignController) Status(ctx echo.Context) error {
	campaignID := ctx.QueryParam("campaignId")
	if campaignID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Missing campaignId"})
	}

	campaign, err := c.campaigns.Status(requestContext(ctx), campaignID)
	if err != nil {
		if errors.Is(err, service.ErrCampaignNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Campaign not found"})
		}
		c.log.WithError(err).Error("load campaign status")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load campaign"})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"campaign": campaign,
	})
}

// List returns the campaign tracking view.
func (c *CampaignController) List(ctx echo.Context) error {
	params := dto.ListFromEchoContext(ctx)

	campaigns, err := c.campaigns.List(requestContext(ctx), params.Limit, params.Offset)
	if err != nil {
		c.log.WithError(err).Error("list campaigns")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch campaigns"})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"campaigns": campaigns,
	})
}

func isInputError(err error) bool {
	for _, target := range []error{
		dto.ErrMissingFields,
		dto.ErrIntervalTooLow,
		dto.ErrInvalidMode,
		dto.ErrInvalidDelay,
		ingest.ErrEmptyInput,
		ingest.ErrParseFailure,
		ingest.ErrNoValidRecipients,
		ingest.ErrPayloadTooLarge,
		ingest.ErrInvalidFile,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func requestContext(ctx echo.Context) context.Context {
	reqCtx := ctx.Request().Context()
	if id := ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return service.WithRequestID(reqCtx, id)
	}
	return reqCtx
}
