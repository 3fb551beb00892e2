package crontask

import (
	"strconv"

	pkgcron "github.com/dialect-so/core/internal/pkg/cron"
	"github.com/dialect-so/core/internal/pkg/pagination"
	"github.com/dialect-so/core/internal/pkg/response"
	"github.com/dialect-so/core/internal/pkg/taskqueue"
	"github.com/gin-gonic/gin"
)

// Handler exposes the scheduler and the task queue for operators.
type Handler struct {
	sched   *pkgcron.Scheduler
	taskSvc *taskqueue.Service
}

func NewHandler(sched *pkgcron.Scheduler, taskSvc *taskqueue.Service) *Handler {
	return &Handler{sched: sched, taskSvc: taskSvc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/cron-task", authMW)
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.POST("/:name/run", h.run)

	tasks := rg.Group("/tasks", authMW)
	tasks.GET("", h.listTasks)
	tasks.GET("/:taskId", h.getTask)
	tasks.POST("/:taskId/cancel", h.cancelTask)
	tasks.DELETE("", h.deleteTasks)
}

// GET /cron-task — list all jobs
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// GET /cron-task/:name — get single job status
func (h *Handler) get(c *gin.Context) {
	result, err := h.sched.GetTask(c.Param("name"))
	if err != nil {
		response.NotFoundMsg(c, "cron job not found")
		return
	}
	response.OK(c, result)
}

// POST /cron-task/:name/run — manually trigger a job
func (h *Handler) run(c *gin.Context) {
	if err := h.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
		response.NotFoundMsg(c, "cron job not found")
		return
	}
	response.OK(c, gin.H{"message": "job triggered"})
}

// GET /tasks
func (h *Handler) listTasks(c *gin.Context) {
	q := pagination.FromContext(c)

	var taskType *string
	if t := c.Query("type"); t != "" {
		taskType = &t
	}
	var status *taskqueue.TaskStatus
	if raw := c.Query("status"); raw != "" {
		s := taskqueue.TaskStatus(raw)
		status = &s
	}

	tasks, total, err := h.taskSvc.List(c.Request.Context(), q.Page, q.Size, taskType, status)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))
	response.Paged(c, tasks, response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	})
}

// GET /tasks/:taskId
func (h *Handler) getTask(c *gin.Context) {
	task, err := h.taskSvc.GetByID(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFoundMsg(c, "task not found")
		return
	}
	response.OK(c, task)
}

// POST /tasks/:taskId/cancel
func (h *Handler) cancelTask(c *gin.Context) {
	if err := h.taskSvc.Cancel(c.Request.Context(), c.Param("taskId")); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.NoContent(c)
}

// DELETE /tasks?before=<unix_ms> — prune finished tasks
func (h *Handler) deleteTasks(c *gin.Context) {
	var before int64
	if raw := c.Query("before"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			before = v
		}
	}
	if err := h.taskSvc.DeleteCompleted(c.Request.Context(), before); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
