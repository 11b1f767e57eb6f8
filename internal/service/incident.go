package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/imcoderdev/emergency-backend/internal/config"
	"github.com/imcoderdev/emergency-backend/internal/dedup"
	"github.com/imcoderdev/emergency-backend/internal/models"
	"github.com/imcoderdev/emergency-backend/internal/priority"
	"github.com/imcoderdev/emergency-backend/internal/webhook"
	"github.com/sirupsen/logrus"
)

// IncidentRepository определяет контракт для работы с бд инцидентов
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	List(ctx context.Context, filter models.IncidentFilter, page, pageSize int) ([]*models.Incident, error)
	ListOpen(ctx context.Context) ([]*models.Incident, error)
	FindDuplicateCandidates(ctx context.Context, incidentType models.IncidentType, lat, lon float64, since time.Time) ([]*models.Incident, error)
	IncrementUpvotes(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetVerified(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes string) (*models.Incident, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SaveLink(ctx context.Context, link *models.IncidentLink) error
	GetStats(ctx context.Context) (*models.IncidentStats, error)
	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// ReportResult - результат отправки отчета.
// Если Duplicates непустой, инцидент не был создан: отправителю предлагается
// привязаться к существующему или повторить с force.
type ReportResult struct {
	Incident   *models.Incident
	Duplicates []dedup.Match
}

// IncidentService определяет контракт для бизнес-логики управления инцидентами
type IncidentService interface {
	ReportIncident(ctx context.Context, draft *models.Incident, force, sos bool) (*ReportResult, error)
	CheckDuplicates(ctx context.Context, draft *models.Incident) ([]dedup.Match, error)
	LinkReport(ctx context.Context, id uuid.UUID, reporterID string, confidence int, distanceMeters float64) (*models.Incident, error)
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter, page, pageSize int) ([]*models.Incident, error)
	PriorityQueue(ctx context.Context, limit int) ([]*models.RankedIncident, error)
	UpvoteIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	VerifyIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes string) (*models.Incident, error)
	DeleteIncident(ctx context.Context, id uuid.UUID) error
	GetStats(ctx context.Context) (*models.IncidentStats, error)
}

type incidentService struct {
	repo      IncidentRepository
	logger    *logrus.Logger
	cfg       *config.Config
	publisher webhook.Publisher
	now       func() time.Time
}

func NewIncidentService(repo IncidentRepository, logger *logrus.Logger, cfg *config.Config, publisher webhook.Publisher) IncidentService {
	return &incidentService{
		repo:      repo,
		logger:    logger,
		cfg:       cfg,
		publisher: publisher,
		now:       time.Now,
	}
}

// ReportIncident обрабатывает новый отчет. Перед созданием выполняется проверка
// дубликатов; SOS-отчеты создаются всегда и с серьезностью Critical.
func (s *incidentService) ReportIncident(ctx context.Context, draft *models.Incident, force, sos bool) (*ReportResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "ReportIncident",
		"type":    draft.Type,
		"sos":     sos,
	})
	log.Info("Processing incident report")

	now := s.now()

	if sos {
		// Паническая кнопка: никогда не блокируется проверкой дубликатов
		draft.Severity = models.SeverityCritical
	} else if !force {
		matches, err := s.CheckDuplicates(ctx, draft)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			log.WithField("duplicates", len(matches)).Info("Duplicate candidates found, report withheld")
			return &ReportResult{Duplicates: matches}, nil
		}
	}

	if draft.Severity == "" {
		draft.Severity = models.SeverityMedium
	}
	draft.Status = models.StatusReported
	draft.ReportedAt = now

	if err := s.repo.Create(ctx, draft); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return nil, fmt.Errorf("service: could not create incident: %w", err)
	}

	kind := webhook.EventReported
	if sos {
		kind = webhook.EventSOS
	}
	s.publishEvent(ctx, log, kind, draft)

	log.WithField("incident_id", draft.ID).Info("Incident created successfully")
	return &ReportResult{Incident: draft}, nil
}

// CheckDuplicates находит открытые инциденты того же типа рядом с черновиком.
// Отчет без координат никогда не блокируется: возвращается пустой результат.
func (s *incidentService) CheckDuplicates(ctx context.Context, draft *models.Incident) ([]dedup.Match, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "CheckDuplicates",
		"type":    draft.Type,
	})

	if !draft.HasLocation() {
		log.Info("Draft has no location, skipping duplicate check")
		return []dedup.Match{}, nil
	}

	now := s.now()
	since := now.Add(-dedup.LookbackWindow)
	candidates, err := s.repo.FindDuplicateCandidates(ctx, draft.Type, *draft.Latitude, *draft.Longitude, since)
	if err != nil {
		log.WithError(err).Error("Failed to load duplicate candidates")
		return nil, fmt.Errorf("service: could not load duplicate candidates: %w", err)
	}

	matches := dedup.FindDuplicates(draft, candidates, now)
	log.WithField("matches", len(matches)).Info("Duplicate check completed")
	return matches, nil
}

// LinkReport привязывает повторный отчет к существующему инциденту:
// подтверждение засчитывается как upvote, факт привязки пишется в аудит.
// Уверенность и расстояние приходят из предшествующей проверки дубликатов.
func (s *incidentService) LinkReport(ctx context.Context, id uuid.UUID, reporterID string, confidence int, distanceMeters float64) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "LinkReport",
		"incident_id": id,
	})
	log.Info("Linking report to existing incident")

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to link to a non-existent incident")
		return nil, fmt.Errorf("service: incident with id %s not found for link: %w", id, err)
	}
	if existing.Status.Terminal() {
		log.Warn("Attempted to link to a terminal incident")
		return nil, fmt.Errorf("service: incident with id %s is already %s", id, existing.Status)
	}

	updated, err := s.repo.IncrementUpvotes(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to increment upvotes for linked incident")
		return nil, fmt.Errorf("service: could not link report: %w", err)
	}

	link := &models.IncidentLink{
		IncidentID:     id,
		ReporterID:     reporterID,
		Confidence:     confidence,
		DistanceMeters: distanceMeters,
	}
	if err := s.repo.SaveLink(ctx, link); err != nil {
		log.WithError(err).Error("Failed to save incident link")
		return nil, fmt.Errorf("service: could not save incident link: %w", err)
	}

	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache after link")
	}

	s.publishEvent(ctx, log, webhook.EventLinked, updated)

	log.Info("Report linked successfully")
	return updated, nil
}

// GetIncident получает инцидент по ID, сначала из кеша, затем из бд
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Info("Fetching incident by ID")

	cached, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident from cache")
	}
	if cached != nil {
		return cached, nil
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to get incident from repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.repo.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}

	log.Info("Incident fetched successfully")
	return incident, nil
}

// ListIncidents возвращает список инцидентов с пагинацией и фильтрами
func (s *incidentService) ListIncidents(ctx context.Context, filter models.IncidentFilter, page, pageSize int) ([]*models.Incident, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"page":      page,
		"page_size": pageSize,
	})
	log.Info("Listing incidents")

	incidents, err := s.repo.List(ctx, filter, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incidents listed successfully")
	return incidents, nil
}

// PriorityQueue возвращает открытые инциденты, отсортированные по убыванию
// приоритета. Репозиторий отдает их по убыванию свежести, сортировка стабильная,
// поэтому при равных баллах порядок детерминирован.
func (s *incidentService) PriorityQueue(ctx context.Context, limit int) ([]*models.RankedIncident, error) {
	if limit < 1 {
		limit = s.cfg.QueueDefaultLimit
	}

	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "PriorityQueue",
		"limit":   limit,
	})
	log.Info("Building priority queue")

	incidents, err := s.repo.ListOpen(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list open incidents from repository")
		return nil, fmt.Errorf("service: could not build priority queue: %w", err)
	}

	now := s.now()
	ranked := make([]*models.RankedIncident, 0, len(incidents))
	for _, inc := range incidents {
		ranked = append(ranked, &models.RankedIncident{
			Incident: inc,
			Priority: priority.Score(inc, now),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	log.WithField("count", len(ranked)).Info("Priority queue built successfully")
	return ranked, nil
}

// UpvoteIncident увеличивает счетчик подтверждений инцидента
func (s *incidentService) UpvoteIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpvoteIncident",
		"incident_id": id,
	})
	log.Info("Upvoting incident")

	incident, err := s.repo.IncrementUpvotes(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to increment upvotes in repository")
		return nil, fmt.Errorf("service: could not upvote incident: %w", err)
	}

	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache after upvote")
	}

	log.WithField("upvotes", incident.Upvotes).Info("Incident upvoted successfully")
	return incident, nil
}

// VerifyIncident помечает инцидент подтвержденным диспетчером
func (s *incidentService) VerifyIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "VerifyIncident",
		"incident_id": id,
	})
	log.Info("Verifying incident")

	incident, err := s.repo.SetVerified(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to verify incident in repository")
		return nil, fmt.Errorf("service: could not verify incident: %w", err)
	}

	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache after verify")
	}

	s.publishEvent(ctx, log, webhook.EventVerified, incident)

	log.Info("Incident verified successfully")
	return incident, nil
}

// UpdateStatus переводит инцидент в новый статус жизненного цикла
func (s *incidentService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes string) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateStatus",
		"incident_id": id,
		"status":      status,
	})
	log.Info("Updating incident status")

	incident, err := s.repo.UpdateStatus(ctx, id, status, notes)
	if err != nil {
		log.WithError(err).Error("Failed to update incident status in repository")
		return nil, fmt.Errorf("service: could not update incident status: %w", err)
	}

	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache after status update")
	}

	s.publishEvent(ctx, log, webhook.EventStatusUpdated, incident)

	log.Info("Incident status updated successfully")
	return incident, nil
}

// DeleteIncident удаляет инцидент
func (s *incidentService) DeleteIncident(ctx context.Context, id uuid.UUID) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "DeleteIncident",
		"incident_id": id,
	})
	log.Info("Attempting to delete incident")

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		log.WithError(err).Warn("Attempted to delete a non-existent incident")
		return fmt.Errorf("service: incident with id %s not found for delete: %w", id, err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		log.WithError(err).Error("Failed to delete incident in repository")
		return fmt.Errorf("service: could not delete incident: %w", err)
	}

	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache after delete")
	}

	log.Info("Incident deleted successfully")
	return nil
}

// GetStats возвращает агрегированную статистику по инцидентам
func (s *incidentService) GetStats(ctx context.Context) (*models.IncidentStats, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "GetStats",
	})
	log.Info("Fetching incident stats")

	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to get stats from repository")
		return nil, fmt.Errorf("service: could not get incident stats: %w", err)
	}

	return stats, nil
}

// publishEvent публикует событие вебхука; ошибка публикации не прерывает операцию
func (s *incidentService) publishEvent(ctx context.Context, log *logrus.Entry, kind string, incident *models.Incident) {
	event := webhook.Event{
		Kind:      kind,
		Incident:  incident,
		Timestamp: s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).WithField("event_kind", kind).Warn("Failed to publish webhook event")
	}
}
