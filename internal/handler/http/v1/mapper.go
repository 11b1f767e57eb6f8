package v1

import (
	"github.com/imcoderdev/emergency-backend/internal/dedup"
	"github.com/imcoderdev/emergency-backend/internal/models"
)

// ReportDTOToIncidentModel преобразует DTO отчета в доменную модель
func ReportDTOToIncidentModel(dto ReportIncidentRequest) *models.Incident {
	return &models.Incident{
		Type:        models.IncidentType(dto.Type),
		Severity:    models.Severity(dto.Severity),
		Description: dto.Description,
		Latitude:    dto.Latitude,
		Longitude:   dto.Longitude,
		Address:     dto.Address,
	}
}

// CheckDTOToIncidentModel преобразует DTO проверки дубликатов в черновик инцидента
func CheckDTOToIncidentModel(dto CheckDuplicatesRequest) *models.Incident {
	return &models.Incident{
		Type:      models.IncidentType(dto.Type),
		Latitude:  dto.Latitude,
		Longitude: dto.Longitude,
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	return &IncidentResponse{
		ID:             model.ID,
		Type:           string(model.Type),
		Severity:       string(model.Severity),
		Status:         string(model.Status),
		Description:    model.Description,
		Latitude:       model.Latitude,
		Longitude:      model.Longitude,
		Address:        model.Address,
		Upvotes:        model.Upvotes,
		Verified:       model.Verified,
		ResponderNotes: model.ResponderNotes,
		ReportedAt:     model.ReportedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(models []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

// MatchesToDuplicateResponses преобразует результаты dedup в слайс DTO
func MatchesToDuplicateResponses(matches []dedup.Match) []*DuplicateMatchResponse {
	responses := make([]*DuplicateMatchResponse, len(matches))
	for i, match := range matches {
		responses[i] = &DuplicateMatchResponse{
			Incident:       ModelToIncidentResponse(match.Incident),
			Confidence:     match.Confidence,
			DistanceMeters: match.DistanceMeters,
		}
	}
	return responses
}

// RankedToResponses преобразует приоритетную очередь в слайс DTO
func RankedToResponses(ranked []*models.RankedIncident) []*RankedIncidentResponse {
	responses := make([]*RankedIncidentResponse, len(ranked))
	for i, item := range ranked {
		responses[i] = &RankedIncidentResponse{
			Incident: ModelToIncidentResponse(item.Incident),
			Priority: item.Priority,
		}
	}
	return responses
}

// StatsToResponse преобразует статистику в DTO
func StatsToResponse(stats *models.IncidentStats) *StatsResponse {
	resp := &StatsResponse{
		Total:      stats.Total,
		Open:       stats.Open,
		BySeverity: make(map[string]int, len(stats.BySeverity)),
		ByStatus:   make(map[string]int, len(stats.ByStatus)),
	}
	for severity, count := range stats.BySeverity {
		resp.BySeverity[string(severity)] = count
	}
	for status, count := range stats.ByStatus {
		resp.ByStatus[string(status)] = count
	}
	return resp
}
