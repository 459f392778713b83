package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// NextRunReporter exposes the next scheduled ingestion.
type NextRunReporter interface {
	NextRun() *time.Time
}

// SettingsHandler serves mail and scheduler configuration.
type SettingsHandler struct {
	settings  *service.SettingsService
	scheduler NextRunReporter
}

// NewSettingsHandler constructs handler. scheduler may be nil.
func NewSettingsHandler(settings *service.SettingsService, scheduler NextRunReporter) *SettingsHandler {
	return &SettingsHandler{settings: settings, scheduler: scheduler}
}

// GetMail GET /api/settings/mail.
func (h *SettingsHandler) GetMail(c *fiber.Ctx) error {
	cfg, err := h.settings.MailConfig(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMailConfigResponse(cfg)})
}

// PutMail PUT /api/settings/mail.
func (h *SettingsHandler) PutMail(c *fiber.Ctx) error {
	var req dto.MailConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	cfg, err := h.settings.UpdateMailConfig(c.UserContext(), req.ToDomain())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMailConfigResponse(cfg)})
}

// GetScheduler GET /api/settings/scheduler.
func (h *SettingsHandler) GetScheduler(c *fiber.Ctx) error {
	cfg, err := h.settings.SchedulerSettings(c.UserContext())
	if err != nil {
		return err
	}
	configured, err := h.settings.MailConfigured(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	resp := dto.SchedulerResponse{
		Enabled:         cfg.Enabled,
		IntervalMinutes: cfg.IntervalMinutes,
		LastRunAt:       cfg.LastRunAt,
		LastRunCount:    cfg.LastRunCount,
		MailConfigured:  configured,
	}
	if h.scheduler != nil {
		resp.NextRunAt = h.scheduler.NextRun()
	}
	return c.JSON(fiber.Map{"data": resp})
}

// PutScheduler PUT /api/settings/scheduler.
func (h *SettingsHandler) PutScheduler(c *fiber.Ctx) error {
	var req dto.SchedulerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if _, err := h.settings.UpdateSchedulerSettings(c.UserContext(), req.Enabled, req.IntervalMinutes); err != nil {
		return err
	}
	return h.GetScheduler(c)
}
