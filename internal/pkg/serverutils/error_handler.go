package serverutils

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(fiber.Map{
				"success": false,
				"code":    fiberErr.Code,
				"message": fiberErr.Message,
			})
		}

		log.Printf("[ERROR] %s %s: %v", ctx.Method(), ctx.Path(), err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"code":    fiber.StatusInternalServerError,
			"message": "internal server error",
		})
	}
}
