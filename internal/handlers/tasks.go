package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/plexshare/backend/internal/services"
	"github.com/plexshare/backend/pkg/utils"
)

type TasksHandler struct {
	Tasks *services.DailyTasks
}

func NewTasksHandler(tasks *services.DailyTasks) *TasksHandler {
	return &TasksHandler{Tasks: tasks}
}

// Run executes one cycle synchronously. Job failures are reported inside
// the cycle report rather than as a request error.
func (h *TasksHandler) Run(c *fiber.Ctx) error {
	report := h.Tasks.RunCycle(requestContext(c))
	message := "tasks completed"
	for _, job := range report.Jobs {
		if job.Error != "" {
			message = "tasks completed with errors"
			break
		}
	}
	return utils.Outcome(c, fiber.StatusOK, message, report)
}

func (h *TasksHandler) Status(c *fiber.Ctx) error {
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"running":  h.Tasks.Running(),
		"interval": h.Tasks.Interval.String(),
	})
}
