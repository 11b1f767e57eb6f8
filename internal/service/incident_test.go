package service_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imcoderdev/emergency-backend/internal/config"
	"github.com/imcoderdev/emergency-backend/internal/dedup"
	"github.com/imcoderdev/emergency-backend/internal/models"
	"github.com/imcoderdev/emergency-backend/internal/service"
	"github.com/imcoderdev/emergency-backend/internal/service/mocks"
	"github.com/imcoderdev/emergency-backend/internal/webhook"
	webhook_mocks "github.com/imcoderdev/emergency-backend/internal/webhook/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 {
	return &v
}

// newTestIncidentService — вспомогательная функция для создания инстанса сервиса с моками.
// Часы сервиса фиксируются для детерминированных расчетов.
func newTestIncidentService(t *testing.T) (service.IncidentService, *mocks.MockIncidentRepository, *webhook_mocks.MockPublisher) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockIncidentRepository(ctrl)
	publisherMock := webhook_mocks.NewMockPublisher(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		QueueDefaultLimit: 20,
	}

	svc := service.NewIncidentService(repoMock, logger, cfg, publisherMock)
	service.SetNowFunc(svc, func() time.Time { return testNow })
	return svc, repoMock, publisherMock
}

func TestReportIncident_Success(t *testing.T) {
	// Подготовка
	service, repoMock, publisherMock := newTestIncidentService(t)
	ctx := context.Background()
	draft := &models.Incident{
		Type:        models.TypeFire,
		Description: "Пожар в жилом доме",
		Latitude:    ptr(12.9716),
		Longitude:   ptr(77.5946),
	}

	// Ожидания
	// 1. Проверка дубликатов: кандидатов нет
	repoMock.EXPECT().
		FindDuplicateCandidates(ctx, models.TypeFire, 12.9716, 77.5946, testNow.Add(-dedup.LookbackWindow)).
		Return([]*models.Incident{}, nil).
		Times(1)

	// 2. Создание инцидента
	repoMock.EXPECT().
		Create(ctx, draft).
		Return(nil).
		Times(1)

	// 3. Публикация события
	publisherMock.EXPECT().
		Publish(ctx, webhook.Event{Kind: webhook.EventReported, Incident: draft, Timestamp: testNow}).
		Return(nil).
		Times(1)

	// Действие
	result, err := service.ReportIncident(ctx, draft, false, false)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, result.Incident)
	assert.Empty(t, result.Duplicates)
	assert.Equal(t, models.StatusReported, result.Incident.Status)
	assert.Equal(t, models.SeverityMedium, result.Incident.Severity)
	assert.Equal(t, testNow, result.Incident.ReportedAt)
}

func TestReportIncident_WithheldOnDuplicates(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	draft := &models.Incident{
		Type:        models.TypeAccident,
		Description: "ДТП на перекрестке",
		Latitude:    ptr(12.9716),
		Longitude:   ptr(77.5946),
	}
	candidate := &models.Incident{
		ID:          uuid.New(),
		Type:        models.TypeAccident,
		Status:      models.StatusReported,
		Description: "Столкновение двух машин",
		Latitude:    ptr(12.9716),
		Longitude:   ptr(77.5946),
		ReportedAt:  testNow.Add(-10 * time.Minute),
	}

	// Ожидания
	repoMock.EXPECT().
		FindDuplicateCandidates(ctx, models.TypeAccident, 12.9716, 77.5946, testNow.Add(-dedup.LookbackWindow)).
		Return([]*models.Incident{candidate}, nil).
		Times(1)

	// Действие
	result, err := service.ReportIncident(ctx, draft, false, false)

	// Проверки
	require.NoError(t, err)
	assert.Nil(t, result.Incident)
	require.Len(t, result.Duplicates, 1)
	assert.Same(t, candidate, result.Duplicates[0].Incident)
}

func TestReportIncident_ForceBypassesDuplicateCheck(t *testing.T) {
	// Подготовка
	service, repoMock, publisherMock := newTestIncidentService(t)
	ctx := context.Background()
	draft := &models.Incident{
		Type:        models.TypeAccident,
		Severity:    models.SeverityHigh,
		Description: "ДТП, повторная отправка",
		Latitude:    ptr(12.9716),
		Longitude:   ptr(77.5946),
	}

	// Ожидания
	// FindDuplicateCandidates не вызывается: force пропускает проверку
	repoMock.EXPECT().
		Create(ctx, draft).
		Return(nil).
		Times(1)

	publisherMock.EXPECT().
		Publish(ctx, webhook.Event{Kind: webhook.EventReported, Incident: draft, Timestamp: testNow}).
		Return(nil).
		Times(1)

	// Действие
	result, err := service.ReportIncident(ctx, draft, true, false)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, result.Incident)
	assert.Equal(t, models.SeverityHigh, result.Incident.Severity)
}

func TestReportIncident_SOSForcesCritical(t *testing.T) {
	// Подготовка
	service, repoMock, publisherMock := newTestIncidentService(t)
	ctx := context.Background()
	draft := &models.Incident{
		Type:        models.TypeMedical,
		Severity:    models.SeverityLow,
		Description: "SOS",
		Latitude:    ptr(12.9716),
		Longitude:   ptr(77.5946),
	}

	// Ожидания
	// SOS создается всегда, без проверки дубликатов
	repoMock.EXPECT().
		Create(ctx, draft).
		Return(nil).
		Times(1)

	publisherMock.EXPECT().
		Publish(ctx, webhook.Event{Kind: webhook.EventSOS, Incident: draft, Timestamp: testNow}).
		Return(nil).
		Times(1)

	// Действие
	result, err := service.ReportIncident(ctx, draft, false, true)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, result.Incident)
	assert.Equal(t, models.SeverityCritical, result.Incident.Severity)
}

func TestReportIncident_CreateError(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	draft := &models.Incident{
		Type:        models.TypeOther,
		Description: "Отчет без координат",
	}
	dbError := fmt.Errorf("ошибка базы данных")

	// Ожидания
	// Без координат проверка дубликатов пропускается, репозиторий не опрашивается
	repoMock.EXPECT().
		Create(ctx, draft).
		Return(dbError).
		Times(1)

	// Действие
	result, err := service.ReportIncident(ctx, draft, false, false)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, dbError)
}

func TestCheckDuplicates_NoLocation(t *testing.T) {
	// Подготовка
	service, _, _ := newTestIncidentService(t)
	ctx := context.Background()
	draft := &models.Incident{
		Type:        models.TypeCrime,
		Description: "Отчет без геолокации",
	}

	// Действие
	matches, err := service.CheckDuplicates(ctx, draft)

	// Проверки
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCheckDuplicates_RanksCandidates(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	draft := &models.Incident{
		Type:      models.TypeFire,
		Latitude:  ptr(12.9716),
		Longitude: ptr(77.5946),
	}
	near := &models.Incident{
		ID:         uuid.New(),
		Type:       models.TypeFire,
		Status:     models.StatusReported,
		Latitude:   ptr(12.9716),
		Longitude:  ptr(77.5946),
		ReportedAt: testNow.Add(-5 * time.Minute),
	}
	far := &models.Incident{
		ID:         uuid.New(),
		Type:       models.TypeFire,
		Status:     models.StatusReported,
		Latitude:   ptr(12.9740),
		Longitude:  ptr(77.5970),
		ReportedAt: testNow.Add(-90 * time.Minute),
	}

	// Ожидания
	repoMock.EXPECT().
		FindDuplicateCandidates(ctx, models.TypeFire, 12.9716, 77.5946, testNow.Add(-dedup.LookbackWindow)).
		Return([]*models.Incident{far, near}, nil).
		Times(1)

	// Действие
	matches, err := service.CheckDuplicates(ctx, draft)

	// Проверки
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Same(t, near, matches[0].Incident)
	assert.Same(t, far, matches[1].Incident)
	assert.Greater(t, matches[0].Confidence, matches[1].Confidence)
}

func TestCheckDuplicates_RepositoryError(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	draft := &models.Incident{
		Type:      models.TypeFire,
		Latitude:  ptr(12.9716),
		Longitude: ptr(77.5946),
	}
	dbError := fmt.Errorf("ошибка базы данных")

	// Ожидания
	repoMock.EXPECT().
		FindDuplicateCandidates(ctx, models.TypeFire, 12.9716, 77.5946, gomock.Any()).
		Return(nil, dbError).
		Times(1)

	// Действие
	matches, err := service.CheckDuplicates(ctx, draft)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, matches)
	assert.ErrorIs(t, err, dbError)
}

func TestLinkReport_Success(t *testing.T) {
	// Подготовка
	service, repoMock, publisherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	existing := &models.Incident{
		ID:     incidentID,
		Type:   models.TypeFire,
		Status: models.StatusReported,
	}
	updated := &models.Incident{
		ID:      incidentID,
		Type:    models.TypeFire,
		Status:  models.StatusReported,
		Upvotes: 1,
	}

	// Ожидания
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(existing, nil).
		Times(1)

	repoMock.EXPECT().
		IncrementUpvotes(ctx, incidentID).
		Return(updated, nil).
		Times(1)

	repoMock.EXPECT().
		SaveLink(ctx, &models.IncidentLink{
			IncidentID:     incidentID,
			ReporterID:     "reporter-42",
			Confidence:     87,
			DistanceMeters: 61.5,
		}).
		Return(nil).
		Times(1)

	repoMock.EXPECT().
		InvalidateIncidentCache(ctx, incidentID).
		Return(nil).
		Times(1)

	publisherMock.EXPECT().
		Publish(ctx, webhook.Event{Kind: webhook.EventLinked, Incident: updated, Timestamp: testNow}).
		Return(nil).
		Times(1)

	// Действие
	incident, err := service.LinkReport(ctx, incidentID, "reporter-42", 87, 61.5)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, updated, incident)
}

func TestLinkReport_TerminalIncident(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	existing := &models.Incident{
		ID:     incidentID,
		Type:   models.TypeFire,
		Status: models.StatusResolved,
	}

	// Ожидания
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(existing, nil).
		Times(1)

	// Действие
	incident, err := service.LinkReport(ctx, incidentID, "reporter-42", 90, 10)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.Contains(t, err.Error(), "Resolved")
}

func TestLinkReport_NotFound(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	dbError := fmt.Errorf("не найдено")

	// Ожидания
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(nil, dbError).
		Times(1)

	// Действие
	incident, err := service.LinkReport(ctx, incidentID, "reporter-42", 90, 10)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, dbError)
}

func TestGetIncident_Success_FromCache(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:          incidentID,
		Description: "Тестовый инцидент из кеша",
	}

	// Ожидания
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// Действие
	incident, err := service.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_Success_FromDB(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:          incidentID,
		Description: "Тестовый инцидент из БД",
	}

	// Ожидания
	// 1. Промах кеша
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(nil, nil).
		Times(1)

	// 2. Попадание в БД
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// 3. Запись в кеш
	repoMock.EXPECT().
		SetIncidentCache(ctx, expectedIncident).
		Return(nil).
		Times(1)

	// Действие
	incident, err := service.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_NotFound(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	dbError := fmt.Errorf("не найдено")

	// Ожидания
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(nil, nil).
		Times(1)

	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(nil, dbError).
		Times(1)

	// Действие
	incident, err := service.GetIncident(ctx, incidentID)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, dbError)
}

func TestListIncidents_NormalizesPagination(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	filter := models.IncidentFilter{Type: models.TypeFire}
	expected := []*models.Incident{{ID: uuid.New()}}

	// Ожидания
	// Невалидные page и pageSize приводятся к значениям по умолчанию
	repoMock.EXPECT().
		List(ctx, filter, 1, 20).
		Return(expected, nil).
		Times(1)

	// Действие
	incidents, err := service.ListIncidents(ctx, filter, 0, 500)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expected, incidents)
}

func TestPriorityQueue_SortsByPriority(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	lowFresh := &models.Incident{
		ID:         uuid.New(),
		Severity:   models.SeverityLow,
		Status:     models.StatusReported,
		ReportedAt: testNow,
	}
	criticalFresh := &models.Incident{
		ID:         uuid.New(),
		Severity:   models.SeverityCritical,
		Status:     models.StatusReported,
		ReportedAt: testNow,
	}
	highStale := &models.Incident{
		ID:         uuid.New(),
		Severity:   models.SeverityHigh,
		Status:     models.StatusReported,
		ReportedAt: testNow.Add(-time.Hour),
	}

	// Ожидания
	repoMock.EXPECT().
		ListOpen(ctx).
		Return([]*models.Incident{lowFresh, criticalFresh, highStale}, nil).
		Times(1)

	// Действие
	ranked, err := service.PriorityQueue(ctx, 10)

	// Проверки
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Same(t, criticalFresh, ranked[0].Incident)
	assert.Equal(t, 100, ranked[0].Priority)
	assert.Same(t, highStale, ranked[1].Incident)
	assert.Equal(t, 70, ranked[1].Priority)
	assert.Same(t, lowFresh, ranked[2].Incident)
	assert.Equal(t, 40, ranked[2].Priority)
}

func TestPriorityQueue_TruncatesToLimit(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidents := []*models.Incident{
		{ID: uuid.New(), Severity: models.SeverityCritical, Status: models.StatusReported, ReportedAt: testNow},
		{ID: uuid.New(), Severity: models.SeverityHigh, Status: models.StatusReported, ReportedAt: testNow},
		{ID: uuid.New(), Severity: models.SeverityLow, Status: models.StatusReported, ReportedAt: testNow},
	}

	// Ожидания
	repoMock.EXPECT().
		ListOpen(ctx).
		Return(incidents, nil).
		Times(1)

	// Действие
	ranked, err := service.PriorityQueue(ctx, 2)

	// Проверки
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Same(t, incidents[0], ranked[0].Incident)
	assert.Same(t, incidents[1], ranked[1].Incident)
}

func TestPriorityQueue_DefaultLimit(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()

	// Ожидания
	repoMock.EXPECT().
		ListOpen(ctx).
		Return([]*models.Incident{}, nil).
		Times(1)

	// Действие
	ranked, err := service.PriorityQueue(ctx, 0)

	// Проверки
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestUpvoteIncident_Success(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	updated := &models.Incident{ID: incidentID, Upvotes: 3}

	// Ожидания
	repoMock.EXPECT().
		IncrementUpvotes(ctx, incidentID).
		Return(updated, nil).
		Times(1)

	repoMock.EXPECT().
		InvalidateIncidentCache(ctx, incidentID).
		Return(nil).
		Times(1)

	// Действие
	incident, err := service.UpvoteIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, 3, incident.Upvotes)
}

func TestVerifyIncident_Success(t *testing.T) {
	// Подготовка
	service, repoMock, publisherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	verified := &models.Incident{
		ID:       incidentID,
		Status:   models.StatusVerified,
		Verified: true,
	}

	// Ожидания
	repoMock.EXPECT().
		SetVerified(ctx, incidentID).
		Return(verified, nil).
		Times(1)

	repoMock.EXPECT().
		InvalidateIncidentCache(ctx, incidentID).
		Return(nil).
		Times(1)

	publisherMock.EXPECT().
		Publish(ctx, webhook.Event{Kind: webhook.EventVerified, Incident: verified, Timestamp: testNow}).
		Return(nil).
		Times(1)

	// Действие
	incident, err := service.VerifyIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.True(t, incident.Verified)
	assert.Equal(t, models.StatusVerified, incident.Status)
}

func TestUpdateStatus_Success(t *testing.T) {
	// Подготовка
	service, repoMock, publisherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	updated := &models.Incident{
		ID:             incidentID,
		Status:         models.StatusDispatched,
		ResponderNotes: "Экипаж выехал",
	}

	// Ожидания
	repoMock.EXPECT().
		UpdateStatus(ctx, incidentID, models.StatusDispatched, "Экипаж выехал").
		Return(updated, nil).
		Times(1)

	repoMock.EXPECT().
		InvalidateIncidentCache(ctx, incidentID).
		Return(nil).
		Times(1)

	publisherMock.EXPECT().
		Publish(ctx, webhook.Event{Kind: webhook.EventStatusUpdated, Incident: updated, Timestamp: testNow}).
		Return(nil).
		Times(1)

	// Действие
	incident, err := service.UpdateStatus(ctx, incidentID, models.StatusDispatched, "Экипаж выехал")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.StatusDispatched, incident.Status)
}

func TestUpdateStatus_PublishErrorDoesNotFail(t *testing.T) {
	// Подготовка
	service, repoMock, publisherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	updated := &models.Incident{ID: incidentID, Status: models.StatusResolved}

	// Ожидания
	repoMock.EXPECT().
		UpdateStatus(ctx, incidentID, models.StatusResolved, "").
		Return(updated, nil).
		Times(1)

	repoMock.EXPECT().
		InvalidateIncidentCache(ctx, incidentID).
		Return(nil).
		Times(1)

	// Ошибка публикации не должна прерывать операцию
	publisherMock.EXPECT().
		Publish(ctx, gomock.Any()).
		Return(fmt.Errorf("очередь недоступна")).
		Times(1)

	// Действие
	incident, err := service.UpdateStatus(ctx, incidentID, models.StatusResolved, "")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, updated, incident)
}

func TestDeleteIncident_Success(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(&models.Incident{ID: incidentID}, nil).
		Times(1)

	repoMock.EXPECT().
		Delete(ctx, incidentID).
		Return(nil).
		Times(1)

	repoMock.EXPECT().
		InvalidateIncidentCache(ctx, incidentID).
		Return(nil).
		Times(1)

	// Действие
	err := service.DeleteIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
}

func TestDeleteIncident_NotFound(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	dbError := fmt.Errorf("не найдено")

	// Ожидания
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(nil, dbError).
		Times(1)

	// Действие
	err := service.DeleteIncident(ctx, incidentID)

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, dbError)
}

func TestGetStats_Success(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	expected := &models.IncidentStats{
		Total: 5,
		Open:  3,
		BySeverity: map[models.Severity]int{
			models.SeverityCritical: 1,
			models.SeverityMedium:   4,
		},
		ByStatus: map[models.Status]int{
			models.StatusReported: 3,
			models.StatusResolved: 2,
		},
	}

	// Ожидания
	repoMock.EXPECT().
		GetStats(ctx).
		Return(expected, nil).
		Times(1)

	// Действие
	stats, err := service.GetStats(ctx)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expected, stats)
}
