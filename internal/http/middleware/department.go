package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"funnelmetrics/internal/department"
)

// DepartmentLocal is the Locals key holding the selected department.
const DepartmentLocal = "department"

// DepartmentFilter sets the department in the request context from the
// department query param or the X-Department header.
func DepartmentFilter(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("department", c.Get("X-Department"))
		dept, err := department.Parse(raw)
		if err != nil {
			logger.Warn("Invalid department provided",
				slog.String("department", raw),
				slog.Any("error", err))
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": err.Error(),
				"kind":  "invalid_request",
			})
		}

		c.Locals(DepartmentLocal, dept)
		if dept != department.None {
			logger.Debug("Applied department filter", slog.String("department", string(dept)))
		}
		return c.Next()
	}
}

// SelectedDepartment returns the department set by DepartmentFilter.
func SelectedDepartment(c *fiber.Ctx) department.Department {
	if dept, ok := c.Locals(DepartmentLocal).(department.Department); ok {
		return dept
	}
	return department.None
}
