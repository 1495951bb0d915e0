package handlers

import (
	"github.com/gofiber/fiber/v2"

	"vpanel/internal/config"
	"vpanel/internal/services/cron"
)

// CronHandler exposes the cron REST surface consumed by the dashboard.
type CronHandler struct {
	store           *cron.Store
	dispatcher      cron.Dispatcher
	defaultLogLimit int
	maxLogLimit     int
}

func NewCronHandler(store *cron.Store, dispatcher cron.Dispatcher, cfg config.CronConfig) *CronHandler {
	return &CronHandler{
		store:           store,
		dispatcher:      dispatcher,
		defaultLogLimit: cfg.LogDefaultLimit,
		maxLogLimit:     cfg.LogMaxLimit,
	}
}

type CreateCronJobRequest struct {
	NodeID      string `json:"node_id" validate:"required,max=36"`
	Name        string `json:"name" validate:"required,max=100"`
	Schedule    string `json:"schedule" validate:"required,max=100"`
	Command     string `json:"command" validate:"required,max=4096"`
	User        string `json:"user" validate:"omitempty,max=100"`
	Enabled     *bool  `json:"enabled"`
	Timeout     int    `json:"timeout" validate:"omitempty,min=1,max=86400"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

type UpdateCronJobRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Schedule    *string `json:"schedule" validate:"omitempty,max=100"`
	Command     *string `json:"command" validate:"omitempty,max=4096"`
	User        *string `json:"user" validate:"omitempty,max=100"`
	Enabled     *bool   `json:"enabled"`
	Timeout     *int    `json:"timeout" validate:"omitempty,min=1,max=86400"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// List returns all cron jobs, optionally filtered by node.
func (h *CronHandler) List(c *fiber.Ctx) error {
	jobs, err := h.store.List(c.Query("node_id"))
	if err != nil {
		return failFromError(c, err)
	}
	return OK(c, jobs)
}

// Get returns a single job.
func (h *CronHandler) Get(c *fiber.Ctx) error {
	job, err := h.store.Get(c.Params("id"))
	if err != nil {
		return failFromError(c, err)
	}
	return OK(c, job)
}

// Create validates and persists a new job.
func (h *CronHandler) Create(c *fiber.Ctx) error {
	var req CreateCronJobRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	job, err := h.store.Create(cron.CreateJobParams{
		NodeID:      req.NodeID,
		Name:        req.Name,
		Schedule:    req.Schedule,
		Command:     req.Command,
		User:        req.User,
		Enabled:     req.Enabled,
		Timeout:     req.Timeout,
		Description: req.Description,
	})
	if err != nil {
		return failFromError(c, err)
	}
	return Created(c, job)
}

// Update applies a partial edit.
func (h *CronHandler) Update(c *fiber.Ctx) error {
	var req UpdateCronJobRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	job, err := h.store.Update(c.Params("id"), cron.UpdateJobParams{
		Name:        req.Name,
		Schedule:    req.Schedule,
		Command:     req.Command,
		User:        req.User,
		Enabled:     req.Enabled,
		Timeout:     req.Timeout,
		Description: req.Description,
	})
	if err != nil {
		return failFromError(c, err)
	}
	return OK(c, job)
}

// Delete removes a job and its logs.
func (h *CronHandler) Delete(c *fiber.Ctx) error {
	if err := h.store.Delete(c.Params("id")); err != nil {
		return failFromError(c, err)
	}
	return OK(c, nil)
}

// Run triggers an immediate out-of-band execution. It does not touch the
// job's regular schedule and works for disabled jobs too, so operators can
// test a job before enabling it.
func (h *CronHandler) Run(c *fiber.Ctx) error {
	job, err := h.store.Get(c.Params("id"))
	if err != nil {
		return failFromError(c, err)
	}
	h.dispatcher.Dispatch(*job)
	return Accepted(c)
}

// Logs returns recent execution logs, most recent first.
func (h *CronHandler) Logs(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.store.Get(id); err != nil {
		return failFromError(c, err)
	}

	limit := c.QueryInt("limit", h.defaultLogLimit)
	if limit <= 0 {
		limit = h.defaultLogLimit
	}
	if limit > h.maxLogLimit {
		limit = h.maxLogLimit
	}

	logs, err := h.store.ListLogs(id, limit)
	if err != nil {
		return failFromError(c, err)
	}
	return OK(c, logs)
}
