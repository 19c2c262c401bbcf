package patientflow

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/transit"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Patient and dispatcher entry points
	api.POST("/triage-assessments", h.SubmitTriage)
	api.POST("/dispatches", h.ConfirmDispatch)

	patients := api.Group("/patients")
	patients.GET("", h.ListPatients)
	patients.GET("/:id", h.GetPatient)
	patients.GET("/:id/history", h.GetHistory)
	patients.GET("/:id/transit", h.GetTransit)
	patients.POST("/:id/lobby-arrival", h.MarkLobbyArrival)
	patients.POST("/:id/responder-updates", h.SubmitResponderUpdate)
	patients.POST("/:id/resource-plan", h.RequestResourcePlan)
	patients.POST("/:id/plan-approval", h.ApprovePlan)

	// Role projections
	views := api.Group("/views")
	views.GET("/ops", h.OpsQueue)
	views.GET("/ops/stats", h.OpsStats)
	views.GET("/prep", h.PrepBoard)
	views.POST("/prep/context", h.ActivatePrepContext)
	views.DELETE("/prep/context", h.DeactivatePrepContext)
	views.GET("/clinician", h.ClinicianQueue)
	views.GET("/responder", h.ResponderActive)

	advice := api.Group("/advice")
	advice.POST("/first-aid", h.FirstAid)
	advice.POST("/chat", h.Chat)
}

// httpError maps service errors onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownNHSNumber), errors.Is(err, ErrUnknownHospital):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrNotEligible),
		errors.Is(err, ErrLegAlreadyStarted), errors.Is(err, ErrLegNotStarted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidSeverity),
		errors.Is(err, ErrImmutableField), errors.Is(err, ErrAppendOnly):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrPlanUnavailable), errors.Is(err, ErrUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Entry points --

func (h *Handler) SubmitTriage(c echo.Context) error {
	var sub TriageSubmission
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.SubmitTriage(c.Request().Context(), sub)
	if err != nil {
		return httpError(err)
	}
	if out.Patient != nil {
		return c.JSON(http.StatusCreated, out)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ConfirmDispatch(c echo.Context) error {
	var req DispatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.ConfirmDispatch(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

// -- Patients --

func (h *Handler) ListPatients(c echo.Context) error {
	items, err := h.svc.ListPatients(Status(c.QueryParam("status")))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Paginate(items, pagination.FromContext(c)))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	events, err := h.svc.History(id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) GetTransit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	leg := transit.ToHospital
	if q := c.QueryParam("leg"); q != "" {
		if leg, err = transit.ParseDirection(q); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	snap, err := h.svc.Transit(id, leg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) MarkLobbyArrival(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.MarkLobbyArrival(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SubmitResponderUpdate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var u ResponderUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.SubmitResponderUpdate(c.Request().Context(), id, u)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) RequestResourcePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.RequestResourcePlan(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type approvalRequest struct {
	Plan *ResourcePlan `json:"plan"`
}

func (h *Handler) ApprovePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req approvalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.ApprovePlan(c.Request().Context(), id, req.Plan)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Views --

func (h *Handler) OpsQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.OpsQueue())
}

func (h *Handler) OpsStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.OpsStats())
}

func (h *Handler) PrepBoard(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.PrepBoard())
}

func (h *Handler) ActivatePrepContext(c echo.Context) error {
	h.svc.SetPrepContext(c.Request().Context(), true)
	return c.JSON(http.StatusOK, map[string]bool{"active": true})
}

func (h *Handler) DeactivatePrepContext(c echo.Context) error {
	h.svc.SetPrepContext(c.Request().Context(), false)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ClinicianQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ClinicianQueue())
}

func (h *Handler) ResponderActive(c echo.Context) error {
	p := h.svc.ResponderActive()
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active patient")
	}
	return c.JSON(http.StatusOK, p)
}

// -- Advice --

type firstAidRequest struct {
	Symptoms string `json:"symptoms"`
}

func (h *Handler) FirstAid(c echo.Context) error {
	var req firstAidRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	text, err := h.svc.FirstAid(c.Request().Context(), req.Symptoms)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"instructions": text})
}

func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reply, err := h.svc.Chat(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"reply": reply})
}
