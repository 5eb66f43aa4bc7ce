package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/tryexperimenter/experimenter-api/internal/models"
	"gorm.io/gorm"
)

// APICallAudit records an api_calls row for every v1 request. The insert
// runs off the request path and must never interrupt the request it
// describes.
func APICallAudit(db *gorm.DB, environment string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// c.Path() is backed by a recycled buffer; copy before handing it
		// to the goroutine.
		path := utils.CopyString(c.Path())
		if strings.HasPrefix(path, "/v1/") {
			go func() {
				defer func() {
					if r := recover(); r != nil {
						slog.Error("api call audit panicked", "recover", r)
					}
				}()
				call := models.APICall{Environment: environment, Endpoint: path}
				if err := db.Create(&call).Error; err != nil {
					slog.Error("failed to record api call", "endpoint", path, "error", err.Error())
				}
			}()
		}
		return c.Next()
	}
}
