package webhook

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/strava", func(c *fiber.Ctx) error {
		res, err := svc.Verify(c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
		if err != nil {
			return fiber.NewError(fiber.StatusForbidden, err.Error())
		}
		return c.JSON(res)
	})

	// Strava retries anything but a 200, so failures are only logged.
	r.Post("/strava", func(c *fiber.Ctx) error {
		var e Event
		if err := c.BodyParser(&e); err != nil {
			log.Printf("webhook payload rejected: %v", err)
			return c.SendStatus(fiber.StatusOK)
		}
		if err := svc.Handle(c.Context(), e); err != nil {
			log.Printf("webhook event failed: %v", err)
		}
		return c.SendStatus(fiber.StatusOK)
	})
}
