package records

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vaxportal/portal/internal/platform/apiclient"
	"github.com/vaxportal/portal/internal/platform/session"
	"github.com/vaxportal/portal/pkg/pagination"
)

type Handler struct {
	store *Store
	sess  *session.Session
}

func NewHandler(store *Store, sess *session.Session) *Handler {
	return &Handler{store: store, sess: sess}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// public
	api.GET("/state", h.GetState)
	api.GET("/vaccines", h.ListVaccines)
	api.GET("/news", h.ListNews)

	// any signed-in role
	read := api.Group("", session.RequireAuth(h.sess))
	read.GET("/patients/:id/appointments", h.PatientAppointments)
	read.GET("/patients/:id/covid-tests", h.PatientCovidTests)
	read.GET("/patients/:id/vaccinations", h.PatientVaccinations)
	read.GET("/patients/:id/certificates", h.PatientCertificates)
	read.GET("/patients/:id/vaccines/:vaccineId/next-dose", h.NextDose)
	read.GET("/hospitals/:id/appointments", h.HospitalAppointments)
	read.GET("/hospitals/:id/vaccinations", h.HospitalVaccinations)
	read.GET("/hospitals/:id/covid-tests", h.HospitalCovidTests)

	patient := api.Group("", session.RequireRole(h.sess, session.RolePatient))
	patient.POST("/appointments", h.CreateAppointment)

	hospital := api.Group("", session.RequireRole(h.sess, session.RoleHospital))
	hospital.PUT("/appointments/:id/status", h.UpdateAppointmentStatus)
	hospital.POST("/covid-tests", h.AddCovidTest)
	hospital.PUT("/covid-tests/result", h.UpdateCovidTestResult)
	hospital.POST("/vaccinations", h.AddVaccination)
	hospital.POST("/vaccinations/record", h.RecordVaccination)

	admin := api.Group("", session.RequireRole(h.sess, session.RoleAdmin))
	admin.POST("/vaccines", h.AddVaccine)
	admin.PUT("/vaccines/:id", h.UpdateVaccine)
	admin.DELETE("/vaccines/:id", h.DeleteVaccine)
	admin.PUT("/vaccines/:id/availability", h.UpdateVaccineAvailability)
	admin.POST("/news", h.AddNews)
	admin.PUT("/news/:id", h.UpdateNews)
	admin.DELETE("/news/:id", h.DeleteNews)
	admin.POST("/news/refresh", h.RefreshNews)
	admin.GET("/directory/patients", h.ListPatients)
	admin.GET("/directory/hospitals", h.ListHospitals)
	admin.PUT("/hospitals/:id/status", h.UpdateHospitalStatus)
}

// -- Reads --

func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Summary())
}

func (h *Handler) ListVaccines(c echo.Context) error {
	return c.JSON(http.StatusOK, pagination.Page(h.store.Vaccines(), pagination.FromContext(c)))
}

// ListNews serves published articles; ?all=true lists drafts too and needs a
// signed-in admin.
func (h *Handler) ListNews(c echo.Context) error {
	pg := pagination.FromContext(c)
	if all, _ := strconv.ParseBool(c.QueryParam("all")); !all {
		return c.JSON(http.StatusOK, pagination.Page(h.store.PublishedNews(), pg))
	}
	if !h.sess.Check(c.Request().Context()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	if p, _ := h.sess.Principal(); p.Role != "" && p.Role != session.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "required role: admin")
	}
	return c.JSON(http.StatusOK, pagination.Page(h.store.AllNews(), pg))
}

func (h *Handler) PatientAppointments(c echo.Context) error {
	return c.JSON(http.StatusOK, pagination.Page(h.store.PatientAppointments(c.Param("id")), pagination.FromContext(c)))
}

func (h *Handler) PatientCovidTests(c echo.Context) error {
	return c.JSON(http.StatusOK, pagination.Page(h.store.PatientCovidTests(c.Param("id")), pagination.FromContext(c)))
}

func (h *Handler) PatientVaccinations(c echo.Context) error {
	return c.JSON(http.StatusOK, pagination.Page(h.store.PatientVaccinations(c.Param("id")), pagination.FromContext(c)))
}

func (h *Handler) PatientCertificates(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.PatientCertificates(c.Param("id")))
}

func (h *Handler) HospitalAppointments(c echo.Context) error {
	return c.JSON(http.StatusOK, pagination.Page(h.store.HospitalAppointments(c.Param("id")), pagination.FromContext(c)))
}

func (h *Handler) HospitalVaccinations(c echo.Context) error {
	return c.JSON(http.StatusOK, pagination.Page(h.store.HospitalVaccinations(c.Param("id")), pagination.FromContext(c)))
}

func (h *Handler) HospitalCovidTests(c echo.Context) error {
	return c.JSON(http.StatusOK, pagination.Page(h.store.HospitalCovidTests(c.Param("id")), pagination.FromContext(c)))
}

type nextDoseResponse struct {
	Eligible  bool            `json:"eligible"`
	Check     *DoseCheck      `json:"check,omitempty"`
	Violation *DoseLimitError `json:"violation,omitempty"`
}

// NextDose previews the dose number RecordVaccination would assign.
func (h *Handler) NextDose(c echo.Context) error {
	patientID, vaccineID := c.Param("id"), c.Param("vaccineId")
	vaccine, ok := h.store.Vaccine(vaccineID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "vaccine not found")
	}
	check, err := ComputeNextDose(patientID, vaccineID, h.store.PatientVaccinations(patientID), vaccine)
	var limit *DoseLimitError
	switch {
	case errors.As(err, &limit):
		return c.JSON(http.StatusOK, nextDoseResponse{Violation: limit})
	case err != nil:
		return httpError(err)
	}
	return c.JSON(http.StatusOK, nextDoseResponse{Eligible: true, Check: &check})
}

func (h *Handler) ListPatients(c echo.Context) error {
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh {
		h.store.FetchDirectory(c.Request().Context())
	}
	return c.JSON(http.StatusOK, pagination.Page(h.store.Patients(), pagination.FromContext(c)))
}

func (h *Handler) ListHospitals(c echo.Context) error {
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh {
		h.store.FetchDirectory(c.Request().Context())
	}
	return c.JSON(http.StatusOK, pagination.Page(h.store.Hospitals(), pagination.FromContext(c)))
}

// -- Appointments --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var in NewAppointment
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.store.CreateAppointment(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateAppointmentStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.UpdateAppointmentStatus(c.Request().Context(), c.Param("id"), AppointmentStatus(req.Status)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Covid tests --

func (h *Handler) AddCovidTest(c echo.Context) error {
	return h.submitCovidTest(c, h.store.AddCovidTest, http.StatusCreated)
}

func (h *Handler) UpdateCovidTestResult(c echo.Context) error {
	return h.submitCovidTest(c, h.store.UpdateCovidTestResult, http.StatusOK)
}

func (h *Handler) submitCovidTest(c echo.Context, submit func(context.Context, NewCovidTest) (CovidTest, error), status int) error {
	var in NewCovidTest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			f, err := fh.Open()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			defer f.Close()
			in.FileName = fh.Filename
			in.File = f
		}
	}
	test, err := submit(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(status, test)
}

// -- Vaccinations --

func (h *Handler) AddVaccination(c echo.Context) error {
	var in NewVaccination
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.store.AddVaccination(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

type recordResponse struct {
	Vaccination Vaccination `json:"vaccination"`
	Check       DoseCheck   `json:"check"`
}

func (h *Handler) RecordVaccination(c echo.Context) error {
	var in RecordDose
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, check, err := h.store.RecordVaccination(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, recordResponse{Vaccination: v, Check: check})
}

// -- Vaccines --

func (h *Handler) AddVaccine(c echo.Context) error {
	var in VaccineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.store.AddVaccine(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) UpdateVaccine(c echo.Context) error {
	var in VaccineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.store.UpdateVaccine(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DeleteVaccine(c echo.Context) error {
	if err := h.store.DeleteVaccine(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type availabilityRequest struct {
	Available bool `json:"available"`
}

func (h *Handler) UpdateVaccineAvailability(c echo.Context) error {
	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.UpdateVaccineAvailability(c.Request().Context(), c.Param("id"), req.Available); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- News --

func (h *Handler) AddNews(c echo.Context) error {
	var in NewsInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.store.AddNews(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) UpdateNews(c echo.Context) error {
	var in NewsInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.store.UpdateNews(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) DeleteNews(c echo.Context) error {
	if err := h.store.DeleteNews(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RefreshNews(c echo.Context) error {
	h.store.RefreshNews(c.Request().Context())
	return c.JSON(http.StatusOK, pagination.Page(h.store.AllNews(), pagination.FromContext(c)))
}

// -- Directory --

func (h *Handler) UpdateHospitalStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.UpdateHospitalStatus(c.Request().Context(), c.Param("id"), HospitalStatus(req.Status)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// httpError maps store errors onto HTTP statuses. Backend client errors
// (4xx) keep their status; everything else from the backend is a 502.
func httpError(err error) *echo.HTTPError {
	var limit *DoseLimitError
	if errors.As(err, &limit) {
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"message":   limit.Error(),
			"violation": limit,
		})
	}

	var apiErr *apiclient.Error
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrVaccineNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrMissingField), errors.Is(err, ErrInvalidField),
		errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidDoseCount):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return echo.NewHTTPError(apiErr.StatusCode, apiErr.Message)
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}
