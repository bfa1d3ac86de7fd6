package middleware

import (
	"fmt"

	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err == nil {
				return
			}

			body := utils.ErrorBody{Success: false, Code: "INTERNAL_SERVER_ERROR", Message: fmt.Sprintf("%v", err)}
			status := fiber.StatusInternalServerError

			switch e := err.(type) {
			case pkgError.FieldErrors:
				status = e.StatusCode()
				body.Code = e.ErrCode()
				body.Message = e.Error()
				body.Errors = map[string]string(e)
			case pkgError.GenericError:
				status = e.StatusCode()
				body.Code = e.ErrCode()
				body.Message = e.Error()
			default:
				logrus.Errorf("[HTTP] Panic recovered in %s %s: %v", ctx.Method(), ctx.Path(), err)
			}

			_ = ctx.Status(status).JSON(body)
		}()

		return ctx.Next()
	}
}
