package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/imcoderdev/emergency-backend/internal/config"
	"github.com/imcoderdev/emergency-backend/internal/models"
	"github.com/imcoderdev/emergency-backend/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	incidentService service.IncidentService
	logger          *logrus.Logger
	validate        *validator.Validate
	cfg             *config.Config
}

func NewHandler(incidentService service.IncidentService, logger *logrus.Logger, cfg *config.Config) *Handler {
	return &Handler{
		incidentService: incidentService,
		logger:          logger,
		validate:        validator.New(),
		cfg:             cfg,
	}
}

// @Summary Report a new incident
// @Description Submit a new incident report. If similar open incidents are found nearby, they are returned instead and nothing is created; repeat with force=true or link to one of them. SOS reports are always created.
// @Tags Incidents
// @Accept json
// @Produce json
// @Param report body ReportIncidentRequest true "Incident report"
// @Success 201 {object} ReportResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 409 {object} ReportResponse "Duplicate candidates found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/report [post]
func (h *Handler) reportIncident(c *gin.Context) {
	var input ReportIncidentRequest
	log := h.logger.WithField("method", "reportIncident")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft := ReportDTOToIncidentModel(input)
	result, err := h.incidentService.ReportIncident(c.Request.Context(), draft, input.Force, input.SOS)
	if err != nil {
		log.WithError(err).Error("Failed to report incident in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	if len(result.Duplicates) > 0 {
		c.JSON(http.StatusConflict, ReportResponse{Duplicates: MatchesToDuplicateResponses(result.Duplicates)})
		return
	}
	c.JSON(http.StatusCreated, ReportResponse{Incident: ModelToIncidentResponse(result.Incident)})
}

// @Summary Check a draft report for duplicates
// @Description Find open incidents of the same type nearby that likely describe the same event. A draft without coordinates always yields an empty list.
// @Tags Incidents
// @Accept json
// @Produce json
// @Param draft body CheckDuplicatesRequest true "Draft to check"
// @Success 200 {array} DuplicateMatchResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/check-duplicates [post]
func (h *Handler) checkDuplicates(c *gin.Context) {
	var input CheckDuplicatesRequest
	log := h.logger.WithField("method", "checkDuplicates")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	matches, err := h.incidentService.CheckDuplicates(c.Request.Context(), CheckDTOToIncidentModel(input))
	if err != nil {
		log.WithError(err).Error("Failed to check duplicates in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, MatchesToDuplicateResponses(matches))
}

// @Summary Link a repeat report to an existing incident
// @Description Instead of creating a duplicate, confirm an existing incident: counts as an upvote and is recorded in the link audit.
// @Tags Incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Param link body LinkReportRequest true "Link request"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID or request body"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/link [post]
func (h *Handler) linkReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "linkReport").WithField("id", id)

	var input LinkReportRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.incidentService.LinkReport(c.Request.Context(), id, input.ReporterID, input.Confidence, input.DistanceMeters)
	if err != nil {
		log.WithError(err).Error("Failed to link report in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to link report"})
		return
	}

	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Get a list of incidents
// @Description Get a paginated list of incidents with optional type/severity/status filters.
// @Tags Incidents
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(10)
// @Param type query string false "Filter by incident type"
// @Param severity query string false "Filter by severity"
// @Param status query string false "Filter by status"
// @Success 200 {array} IncidentResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))

	filter := models.IncidentFilter{
		Type:     models.IncidentType(c.Query("type")),
		Severity: models.Severity(c.Query("severity")),
		Status:   models.Status(c.Query("status")),
	}

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get the responder priority queue
// @Description Get open incidents ranked by dynamic priority score, highest first.
// @Tags Incidents
// @Accept json
// @Produce json
// @Param limit query int false "Maximum queue length"
// @Success 200 {array} RankedIncidentResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/priority-queue [get]
func (h *Handler) priorityQueue(c *gin.Context) {
	log := h.logger.WithField("method", "priorityQueue")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	ranked, err := h.incidentService.PriorityQueue(c.Request.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed to build priority queue in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, RankedToResponses(ranked))
}

// @Summary Get incident by ID
// @Description Get a single incident by its ID.
// @Tags Incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident from service")
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Upvote an incident
// @Description Add a corroborating confirmation to an incident.
// @Tags Incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/upvote [patch]
func (h *Handler) upvoteIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "upvoteIncident").WithField("id", id)

	incident, err := h.incidentService.UpvoteIncident(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Error("Failed to upvote incident in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upvote incident"})
		return
	}

	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Verify an incident
// @Description Mark an incident as verified by a responder. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/verify [patch]
func (h *Handler) verifyIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "verifyIncident").WithField("id", id)

	incident, err := h.incidentService.VerifyIncident(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Error("Failed to verify incident in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify incident"})
		return
	}

	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Update incident status
// @Description Move an incident through its lifecycle, optionally attaching responder notes. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param status body UpdateStatusRequest true "Status update request"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/status [patch]
func (h *Handler) updateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "updateStatus").WithField("id", id)

	var input UpdateStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.incidentService.UpdateStatus(c.Request.Context(), id, models.Status(input.Status), input.ResponderNotes)
	if err != nil {
		log.WithError(err).Error("Failed to update incident status in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update incident status"})
		return
	}

	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Delete an incident
// @Description Delete an incident by its ID. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id} [delete]
func (h *Handler) deleteIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "deleteIncident").WithField("id", id)

	if err := h.incidentService.DeleteIncident(c.Request.Context(), id); err != nil {
		log.WithError(err).Error("Failed to delete incident in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete incident"})
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary Get incident statistics
// @Description Get aggregate incident counts by severity and status.
// @Tags Incidents
// @Accept json
// @Produce json
// @Success 200 {object} StatsResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/stats [get]
func (h *Handler) getStats(c *gin.Context) {
	log := h.logger.WithField("method", "getStats")

	stats, err := h.incidentService.GetStats(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Failed to get stats from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, StatsToResponse(stats))
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
