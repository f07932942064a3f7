package progression

import (
	"crypto/subtle"
	"errors"

	"backend-theentity/internal/pursuit"
	"backend-theentity/internal/save"
	"backend-theentity/internal/strava"

	"github.com/gofiber/fiber/v2"
)

const paymentSecretHeader = "X-Payment-Secret"

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler, paymentSecret string) {
	saves := r.Group("/saves", authMiddleware)
	saves.Post("/", func(c *fiber.Ctx) error {
		var opts pursuit.StartOptions
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&opts); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
			}
		}
		v, err := svc.Start(c.Context(), playerID(c), opts)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(v)
	})
	saves.Get("/me", func(c *fiber.Ctx) error {
		v, err := svc.Status(c.Context(), playerID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(v)
	})

	runs := r.Group("/runs", authMiddleware)
	runs.Post("/", func(c *fiber.Ctx) error {
		var req RunRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		res, err := svc.LogRun(c.Context(), playerID(c), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})
	runs.Delete("/:id", func(c *fiber.Ctx) error {
		v, err := svc.DeleteRun(c.Context(), playerID(c), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(v)
	})
	runs.Post("/:id/convert", func(c *fiber.Ctx) error {
		res, err := svc.ConvertRun(c.Context(), playerID(c), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(res)
	})

	quests := r.Group("/quests", authMiddleware)
	quests.Post("/accept", func(c *fiber.Ctx) error {
		v, err := svc.AcceptQuest(c.Context(), playerID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(v)
	})
	quests.Post("/discard", func(c *fiber.Ctx) error {
		v, err := svc.DiscardQuest(c.Context(), playerID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(v)
	})

	r.Post("/consumables/:item", authMiddleware, func(c *fiber.Ctx) error {
		res, err := svc.UseConsumable(c.Context(), playerID(c), pursuit.Consumable(c.Params("item")))
		if err != nil {
			return httpError(err)
		}
		if res.Purchase != nil {
			return c.Status(fiber.StatusPaymentRequired).JSON(res)
		}
		return c.JSON(res)
	})

	stravaRoutes := r.Group("/strava", authMiddleware)
	stravaRoutes.Post("/link", func(c *fiber.Ctx) error {
		var req LinkRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := svc.LinkStrava(c.Context(), playerID(c), req); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	stravaRoutes.Post("/backfill", func(c *fiber.Ctx) error {
		res, err := svc.Backfill(c.Context(), playerID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(res)
	})

	r.Post("/payments/:id/confirm", func(c *fiber.Ctx) error {
		got := c.Get(paymentSecretHeader)
		if paymentSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(paymentSecret)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid payment secret")
		}
		res, err := svc.ConfirmPurchase(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(res)
	})
}

func playerID(c *fiber.Ctx) string {
	id, _ := c.Locals("player_id").(string)
	return id
}

func httpError(err error) error {
	return fiber.NewError(statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pursuit.ErrInvalidDistance),
		errors.Is(err, pursuit.ErrInvalidDuration),
		errors.Is(err, pursuit.ErrInvalidDifficulty),
		errors.Is(err, pursuit.ErrUnknownConsumable),
		errors.Is(err, ErrInvalidLink):
		return fiber.StatusBadRequest
	case errors.Is(err, pursuit.ErrPaymentRequired):
		return fiber.StatusPaymentRequired
	case errors.Is(err, save.ErrNotFound),
		errors.Is(err, save.ErrMappingNotFound),
		errors.Is(err, save.ErrPurchaseNotFound),
		errors.Is(err, pursuit.ErrRunNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, pursuit.ErrNotOnboarded),
		errors.Is(err, pursuit.ErrNoDistanceToday),
		errors.Is(err, pursuit.ErrNotCaught),
		errors.Is(err, pursuit.ErrNoQuest),
		errors.Is(err, pursuit.ErrQuestNotAvailable),
		errors.Is(err, pursuit.ErrRunNotConvertible),
		errors.Is(err, ErrPurchaseNotApplicable):
		return fiber.StatusConflict
	case errors.Is(err, strava.ErrUnauthorized),
		errors.Is(err, strava.ErrNotFound):
		return fiber.StatusBadGateway
	case errors.Is(err, ErrStravaUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
