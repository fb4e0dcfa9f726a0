package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"clubhub-backend/internal/account"
	"clubhub-backend/internal/apperrors"
	"clubhub-backend/internal/config"
	"clubhub-backend/internal/credit"
	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/event"
	"clubhub-backend/internal/notify"
	"clubhub-backend/internal/payment"
	"clubhub-backend/internal/store"
	"clubhub-backend/internal/task"
)

// App holds the services behind the HTTP handlers.
type App struct {
	Accounts *account.Service
	Events   *event.Workflow
	Tasks    *task.Workflow
	Ledger   *credit.Ledger
	// Payments is nil when no webhook secret is configured.
	Payments *payment.Confirmer
	Users    store.Users

	log       *logrus.Entry
	jwtSecret []byte
	now       func() time.Time
}

func NewApp(st store.Store, cfg config.Config, log *logrus.Entry) *App {
	ledger := credit.NewLedger(st, st, log.WithField("component", "credit"))
	events := event.NewWorkflow(st,
		notify.NewLogDispatcher(log.WithField("component", "notify")),
		log.WithField("component", "event"),
		event.WithMaxAttempts(cfg.CASMaxAttempts),
	)

	app := &App{
		Accounts: account.NewService(st, log.WithField("component", "account"), account.WithMaxAttempts(cfg.CASMaxAttempts)),
		Events:   events,
		Tasks:    task.NewWorkflow(st, st, ledger, log.WithField("component", "task"), task.WithMaxAttempts(cfg.CASMaxAttempts)),
		Ledger:   ledger,
		Users:    st,

		log:       log.WithField("component", "http"),
		jwtSecret: []byte(cfg.JWTSecret),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if cfg.PaymentWebhookSecret != "" {
		app.Payments = payment.NewConfirmer(
			payment.NewHMACVerifier(cfg.PaymentWebhookSecret),
			events, st, log.WithField("component", "payment"),
		)
	}
	return app
}

// -----------------------------
// Helper functions
// -----------------------------

func jsonError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

// writeError renders err with the status of its kind. Internal failures are
// logged and their details withheld.
func (a *App) writeError(c *gin.Context, op string, err error) {
	log := a.log.WithField("operation", op)

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperrors.KindInternal {
		log.WithError(err).Error("request failed")
		body := gin.H{"error": "internal error", "code": apperrors.KindInternal}
		if appErr != nil && appErr.Reason == apperrors.ReasonContention {
			body["error"] = appErr.Message
			body["reason"] = appErr.Reason
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}

	log.WithError(err).Debug("request rejected")
	body := gin.H{"error": appErr.Message, "code": appErr.Kind}
	if appErr.Reason != apperrors.ReasonNone {
		body["reason"] = appErr.Reason
	}
	if field := appErr.Metadata["field"]; field != "" {
		body["field"] = field
	}
	c.JSON(appErr.Kind.HTTPStatus(), body)
}

// parseDate accepts RFC3339 or YYYY-MM-DD. dateOnly reports the latter.
func parseDate(raw string) (t time.Time, dateOnly bool, err error) {
	raw = strings.TrimSpace(raw)
	if t, err = time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err = time.Parse("2006-01-02", raw)
	return t, true, err
}

func (a *App) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// -----------------------------
// Accounts
// -----------------------------

func (a *App) Me(c *gin.Context) {
	const op = "handlers.Me"
	actor := actorFromContext(c)

	user, err := a.Accounts.Get(c.Request.Context(), actor, actor.ID)
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (a *App) CreateUser(c *gin.Context) {
	const op = "handlers.CreateUser"

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	user, err := a.Accounts.Create(c.Request.Context(), actorFromContext(c), account.CreateInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
		Club:     req.Club,
	})
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (a *App) GetUser(c *gin.Context) {
	const op = "handlers.GetUser"

	user, err := a.Accounts.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (a *App) UpdateUserRole(c *gin.Context) {
	const op = "handlers.UpdateUserRole"

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	user, err := a.Accounts.UpdateRole(c.Request.Context(), actorFromContext(c), c.Param("id"), req.Role)
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (a *App) AssignUserClub(c *gin.Context) {
	const op = "handlers.AssignUserClub"

	var req AssignClubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	user, err := a.Accounts.AssignClub(c.Request.Context(), actorFromContext(c), c.Param("id"), req.Club)
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (a *App) GetCreditHistory(c *gin.Context) {
	const op = "handlers.GetCreditHistory"
	ctx := c.Request.Context()
	actor := actorFromContext(c)

	user, err := a.Accounts.Get(ctx, actor, c.Param("id"))
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	entries, err := a.Ledger.History(ctx, actor, user.ID)
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, CreditHistoryResponse{
		UserID:      user.ID,
		CreditScore: user.CreditScore,
		Entries:     entries,
	})
}

// -----------------------------
// Events
// -----------------------------

func (a *App) CreateEvent(c *gin.Context) {
	const op = "handlers.CreateEvent"

	var body CreateEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	eventDate, _, err := parseDate(body.Date)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid date format (use RFC3339 or YYYY-MM-DD)")
		return
	}

	created, err := a.Events.Create(c.Request.Context(), actorFromContext(c), event.CreateInput{
		Title:       body.Title,
		Description: body.Description,
		Location:    body.Location,
		Date:        eventDate,
		Capacity:    body.Capacity,
		Club:        domain.Club(strings.ToUpper(strings.TrimSpace(body.Club))),
		Invitees:    body.Invitees,
	})
	if err != nil {
		a.writeError(c, op, err)
		return
	}

	notification := "sent"
	if created.Degraded() {
		notification = "failed"
	}
	c.JSON(http.StatusCreated, gin.H{
		"event":        created.Event,
		"notification": notification,
	})
}

func (a *App) GetEvent(c *gin.Context) {
	const op = "handlers.GetEvent"

	ev, err := a.Events.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (a *App) ApproveEvent(c *gin.Context) {
	const op = "handlers.ApproveEvent"

	ev, err := a.Events.Approve(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (a *App) DeleteEvent(c *gin.Context) {
	const op = "handlers.DeleteEvent"

	if err := a.Events.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}

func (a *App) JoinEvent(c *gin.Context) {
	const op = "handlers.JoinEvent"

	ev, err := a.Events.Participate(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (a *App) LeaveEvent(c *gin.Context) {
	const op = "handlers.LeaveEvent"

	ev, err := a.Events.Unregister(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// GET /api/events/search?keyword=&start_date=&end_date=&role=organizer|attendee&club=
//
// - keyword searches title, description and location
// - dates filter the event date; a bare end date includes the whole day
// - role narrows to events the caller organizes or attends
func (a *App) SearchEvents(c *gin.Context) {
	const op = "handlers.SearchEvents"
	actor := actorFromContext(c)

	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	filter := store.EventFilter{Keyword: strings.TrimSpace(req.Keyword)}
	if req.StartDate != "" {
		start, _, err := parseDate(req.StartDate)
		if err != nil {
			jsonError(c, http.StatusBadRequest, "invalid start_date format")
			return
		}
		filter.From = start
	}
	if req.EndDate != "" {
		end, dateOnly, err := parseDate(req.EndDate)
		if err != nil {
			jsonError(c, http.StatusBadRequest, "invalid end_date format")
			return
		}
		if dateOnly {
			end = end.Add(24*time.Hour - time.Second)
		}
		filter.To = end
	}
	switch req.Role {
	case "":
	case "organizer":
		filter.CreatorID = actor.ID
	case "attendee":
		filter.Participant = actor.ID
	default:
		jsonError(c, http.StatusBadRequest, "role must be 'organizer' or 'attendee'")
		return
	}
	if req.Club != "" {
		club, err := domain.ParseClub(req.Club)
		if err != nil {
			jsonError(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.Club = club
	}

	a.listEvents(c, op, filter)
}

func (a *App) GetOrganizedEvents(c *gin.Context) {
	a.listEvents(c, "handlers.GetOrganizedEvents", store.EventFilter{CreatorID: actorFromContext(c).ID})
}

func (a *App) GetJoinedEvents(c *gin.Context) {
	a.listEvents(c, "handlers.GetJoinedEvents", store.EventFilter{Participant: actorFromContext(c).ID})
}

func (a *App) listEvents(c *gin.Context, op string, filter store.EventFilter) {
	events, err := a.Events.Search(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// ConfirmPayment is called by the payment provider, not by a logged-in
// user; the body signature authenticates it.
func (a *App) ConfirmPayment(c *gin.Context) {
	const op = "handlers.ConfirmPayment"

	payload, err := c.GetRawData()
	if err != nil {
		jsonError(c, http.StatusBadRequest, "could not read body")
		return
	}

	ev, err := a.Payments.Confirm(c.Request.Context(), c.Param("id"), payload, c.GetHeader("X-Signature"))
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// -----------------------------
// Tasks
// -----------------------------

func (a *App) CreateTask(c *gin.Context) {
	const op = "handlers.CreateTask"

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	t, err := a.Tasks.Create(c.Request.Context(), actorFromContext(c), task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		Credits:     req.Credits,
		Priority:    req.Priority,
		IsGlobal:    req.IsGlobal,
	})
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, newTaskResponse(t))
}

func (a *App) GetTask(c *gin.Context) {
	const op = "handlers.GetTask"

	t, err := a.Tasks.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(t))
}

func (a *App) ListTasks(c *gin.Context) {
	const op = "handlers.ListTasks"
	actor := actorFromContext(c)

	var req TaskListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	filter := store.TaskFilter{Keyword: strings.TrimSpace(req.Keyword)}
	switch req.Role {
	case "":
	case "assignee":
		filter.AssignedTo = actor.ID
	case "creator":
		filter.CreatedBy = actor.ID
	default:
		jsonError(c, http.StatusBadRequest, "role must be 'assignee' or 'creator'")
		return
	}

	tasks, err := a.Tasks.List(c.Request.Context(), actor, filter)
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskResponse(t))
	}
	c.JSON(http.StatusOK, out)
}

func (a *App) UpdateTaskStatus(c *gin.Context) {
	const op = "handlers.UpdateTaskStatus"

	var req UpdateTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	t, err := a.Tasks.UpdateStatus(c.Request.Context(), actorFromContext(c), c.Param("id"), task.StatusUpdate{
		Status: domain.TaskStatus(req.Status),
		Verify: req.Verify,
	})
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(t))
}

func (a *App) VerifyTask(c *gin.Context) {
	const op = "handlers.VerifyTask"

	t, err := a.Tasks.Verify(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(t))
}

func (a *App) DeleteTask(c *gin.Context) {
	const op = "handlers.DeleteTask"

	if err := a.Tasks.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		a.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}
