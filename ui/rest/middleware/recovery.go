package middleware

import (
	"errors"
	"fmt"

	pkgError "github.com/AzielCF/az-postsync/pkg/error"
	"github.com/AzielCF/az-postsync/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				var res utils.ResponseData
				res.Status = 500
				res.Code = "INTERNAL_SERVER_ERROR"
				res.Message = fmt.Sprintf("%v", err)

				var generic pkgError.GenericError
				if e, ok := err.(error); ok && errors.As(e, &generic) {
					res.Status = generic.StatusCode()
					res.Code = generic.ErrCode()
					res.Message = e.Error()
				} else {
					logrus.Errorf("[REST] Panic recovered in middleware: %v", err)
				}

				_ = ctx.Status(res.Status).JSON(res)
			}
		}()

		return ctx.Next()
	}
}
