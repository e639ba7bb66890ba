package controllers

import (
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/settings"
)

const maskedValue = "********"

type settingView struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func viewSetting(key, value string) settingView {
	if value != "" && models.IsSecretSetting(key) {
		value = maskedValue
	}
	return settingView{Key: key, Value: value}
}

// HandleListSettings returns the stored runtime settings with credentials masked
func (ac *APIController) HandleListSettings(c *fiber.Ctx) error {
	if ac.settings == nil {
		return errorResponse(c, fiber.StatusServiceUnavailable, "settings_unavailable", "Settings store is not configured")
	}
	values, err := ac.settings.All(c.UserContext())
	if err != nil {
		log.Errorf("[Settings] failed to list settings: %v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load settings")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]settingView, 0, len(keys))
	for _, k := range keys {
		out = append(out, viewSetting(k, values[k]))
	}
	return c.JSON(fiber.Map{"settings": out})
}

type updateSettingRequest struct {
	Value string `json:"value" validate:"max=10000"`
}

// HandleUpdateSetting stores one runtime setting. The next snapshot read picks
// it up, so switching the active gateway needs no restart.
func (ac *APIController) HandleUpdateSetting(c *fiber.Ctx) error {
	if ac.settings == nil || ac.policy == nil {
		return errorResponse(c, fiber.StatusServiceUnavailable, "settings_unavailable", "Settings store is not configured")
	}
	key := c.Params("key")

	var req updateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_body", "Request body must be JSON")
	}
	if err := ac.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	ctx := c.UserContext()
	if err := ac.policy.Check(ctx, key, req.Value); err != nil {
		switch {
		case errors.Is(err, settings.ErrUnknownSetting):
			return errorResponse(c, fiber.StatusNotFound, "unknown_setting", "Unknown setting "+key)
		case errors.Is(err, settings.ErrInvalidSetting):
			return errorResponse(c, fiber.StatusUnprocessableEntity, "invalid_setting", err.Error())
		default:
			log.Errorf("[Settings] failed to check %s: %v", key, err)
			return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to check setting")
		}
	}
	if err := ac.settings.SetValue(ctx, key, req.Value); err != nil {
		log.Errorf("[Settings] failed to store %s: %v", key, err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store setting")
	}
	ac.policy.Invalidate()

	log.Infof("[Settings] %s updated by operator", key)
	return c.JSON(viewSetting(key, req.Value))
}
