package handlers

import (
	"errors"
	"net/http"

	"chatline/internal/services"

	"github.com/gofiber/fiber/v2"
)

// GetProfileHandler returns the authenticated user's own profile.
func GetProfileHandler(userService *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		u, err := userService.GetProfile(c.Context(), userID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(u)
	}
}

// UpdateProfileHandler updates name and/or profile picture URL. The picture
// itself lives in the external media host; only its URL is accepted here.
func UpdateProfileHandler(userService *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var body struct {
			Name          *string `json:"name"`
			ProfilePicURL *string `json:"profile_pic_url"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
		}
		if body.Name == nil && body.ProfilePicURL == nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "nothing to update"})
		}

		updated, err := userService.UpdateProfile(c.Context(), userID, body.Name, body.ProfilePicURL)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(updated)
	}
}
