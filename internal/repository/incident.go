package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imcoderdev/emergency-backend/internal/dedup"
	"github.com/imcoderdev/emergency-backend/internal/models"
	"github.com/imcoderdev/emergency-backend/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// incidentColumns - общий список колонок для выборки инцидента
const incidentColumns = `
	id,
	type,
	severity,
	status,
	description,
	ST_Y(location::geometry) AS latitude,
	ST_X(location::geometry) AS longitude,
	address,
	upvotes,
	verified,
	responder_notes,
	reported_at,
	updated_at`

type IncidentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
}

func NewIncidentRepository(db *pgxpool.Pool, redisClient *redis.Client) service.IncidentRepository {
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
	}
}

// rowScanner покрывает pgx.Row и pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	incident := &models.Incident{}
	err := row.Scan(
		&incident.ID,
		&incident.Type,
		&incident.Severity,
		&incident.Status,
		&incident.Description,
		&incident.Latitude,
		&incident.Longitude,
		&incident.Address,
		&incident.Upvotes,
		&incident.Verified,
		&incident.ResponderNotes,
		&incident.ReportedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return incident, nil
}

func collectIncidents(rows pgx.Rows) ([]*models.Incident, error) {
	defer rows.Close()
	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error incident rows iteration: %w", err)
	}
	return incidents, nil
}

// Create создает новую запись об инциденте в бд.
// Инцидент без координат сохраняется с NULL-геометрией.
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (type, severity, status, description, location, address, reported_at)
		VALUES (
			$1, $2, $3, $4,
			CASE
				WHEN $5::float8 IS NULL OR $6::float8 IS NULL THEN NULL
				ELSE ST_SetSRID(ST_MakePoint($6, $5), 4326)::geography
			END,
			$7, $8
		) RETURNING id, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		incident.Type,
		incident.Severity,
		incident.Status,
		incident.Description,
		incident.Latitude,
		incident.Longitude,
		incident.Address,
		incident.ReportedAt,
	).Scan(&incident.ID, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1;`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident with id %s not found", id)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// List возвращает список инцидентов с пагинацией и опциональными фильтрами
func (r *IncidentRepository) List(ctx context.Context, filter models.IncidentFilter, page, pageSize int) ([]*models.Incident, error) {
	// рассчитываем смещение
	offset := (page - 1) * pageSize

	conds := make([]string, 0, 3)
	args := make([]any, 0, 5)

	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, pageSize)
	query += fmt.Sprintf(" ORDER BY reported_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d;", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return collectIncidents(rows)
}

// ListOpen возвращает все инциденты с неконечным статусом по убыванию свежести
func (r *IncidentRepository) ListOpen(ctx context.Context) ([]*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE status NOT IN ('Resolved', 'Closed')
		ORDER BY reported_at DESC;
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open incidents: %w", err)
	}
	return collectIncidents(rows)
}

// FindDuplicateCandidates делает пространственный префильтр кандидатов:
// тот же тип, неконечный статус, не старше since, в пределах радиуса поиска.
// Точное ранжирование выполняет пакет dedup.
func (r *IncidentRepository) FindDuplicateCandidates(ctx context.Context, incidentType models.IncidentType, lat, lon float64, since time.Time) ([]*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE
			type = $1
			AND status NOT IN ('Resolved', 'Closed')
			AND reported_at >= $2
			AND location IS NOT NULL
			AND ST_DWithin(
				location,
				ST_SetSRID(ST_MakePoint($4, $3), 4326)::geography,
				$5
			)
		ORDER BY reported_at DESC;
	`
	rows, err := r.db.Query(ctx, query, incidentType, since, lat, lon, dedup.RadiusMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate candidates: %w", err)
	}
	return collectIncidents(rows)
}

// IncrementUpvotes атомарно увеличивает счетчик подтверждений
func (r *IncidentRepository) IncrementUpvotes(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `
		UPDATE incidents SET
			upvotes = upvotes + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + incidentColumns + `;
	`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident with id %s not found for upvote", id)
		}
		return nil, fmt.Errorf("failed to increment upvotes: %w", err)
	}
	return incident, nil
}

// SetVerified помечает инцидент подтвержденным; статус Reported повышается до Verified
func (r *IncidentRepository) SetVerified(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `
		UPDATE incidents SET
			verified = TRUE,
			status = CASE WHEN status = 'Reported' THEN 'Verified' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + incidentColumns + `;
	`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident with id %s not found for verify", id)
		}
		return nil, fmt.Errorf("failed to verify incident: %w", err)
	}
	return incident, nil
}

// UpdateStatus переводит инцидент в новый статус, опционально с заметкой диспетчера
func (r *IncidentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes string) (*models.Incident, error) {
	query := `
		UPDATE incidents SET
			status = $2,
			responder_notes = CASE WHEN $3 = '' THEN responder_notes ELSE $3 END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + incidentColumns + `;
	`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id, status, notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident with id %s not found for status update", id)
		}
		return nil, fmt.Errorf("failed to update incident status: %w", err)
	}
	return incident, nil
}

// Delete удаляет инцидент
func (r *IncidentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM incidents WHERE id = $1;`

	cmdTag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete incident: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("incident with id %s not found for delete", id)
	}
	return nil
}

// SaveLink сохраняет запись о привязке повторного отчета
func (r *IncidentRepository) SaveLink(ctx context.Context, link *models.IncidentLink) error {
	query := `
		INSERT INTO incident_links (incident_id, reporter_id, confidence, distance_meters)
		VALUES ($1, $2, $3, $4) RETURNING id, linked_at;
	`
	err := r.db.QueryRow(ctx, query,
		link.IncidentID,
		link.ReporterID,
		link.Confidence,
		link.DistanceMeters,
	).Scan(&link.ID, &link.LinkedAt)
	if err != nil {
		return fmt.Errorf("failed to save incident link: %w", err)
	}
	return nil
}

// GetStats возвращает агрегированную статистику по серьезности и статусу
func (r *IncidentRepository) GetStats(ctx context.Context) (*models.IncidentStats, error) {
	query := `
		SELECT severity, status, COUNT(*)
		FROM incidents
		GROUP BY severity, status;
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get incident stats: %w", err)
	}
	defer rows.Close()

	stats := &models.IncidentStats{
		BySeverity: make(map[models.Severity]int),
		ByStatus:   make(map[models.Status]int),
	}
	for rows.Next() {
		var (
			severity models.Severity
			status   models.Status
			count    int
		)
		if err := rows.Scan(&severity, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.Total += count
		stats.BySeverity[severity] += count
		stats.ByStatus[status] += count
		if !status.Terminal() {
			stats.Open += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error stats rows iteration: %w", err)
	}
	return stats, nil
}

// GetIncidentFromCache пытается получить инцидент из Redis
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	key := fmt.Sprintf("incident:%s", id.String())
	val, err := r.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, nil
}

// SetIncidentCache сохраняет инцидент в Redis
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident) error {
	key := fmt.Sprintf("incident:%s", incident.ID.String())
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	// Устанавливаем срок жизни кэша, например, 5 минут
	if err := r.redisClient.Set(ctx, key, val, 5*time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет инцидент из Redis кэша
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error {
	key := fmt.Sprintf("incident:%s", id.String())
	if err := r.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}
