package v1

import (
	"time"

	"github.com/google/uuid"
)

// ReportIncidentRequest DTO для отправки нового отчета
// @Description DTO для отправки нового отчета об инциденте
type ReportIncidentRequest struct {
	Type        string   `json:"type" validate:"required,oneof=Fire Accident Medical Crime Infrastructure Other"`
	Severity    string   `json:"severity,omitempty" validate:"omitempty,oneof=Critical High Medium Low"`
	Description string   `json:"description" validate:"required,min=3"`
	Latitude    *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Address     string   `json:"address,omitempty"`
	Force       bool     `json:"force,omitempty"`
	SOS         bool     `json:"sos,omitempty"`
}

// CheckDuplicatesRequest DTO для предварительной проверки дубликатов
// @Description DTO для предварительной проверки дубликатов
type CheckDuplicatesRequest struct {
	Type      string   `json:"type" validate:"required,oneof=Fire Accident Medical Crime Infrastructure Other"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// LinkReportRequest DTO для привязки повторного отчета к существующему инциденту
// @Description DTO для привязки повторного отчета
type LinkReportRequest struct {
	ReporterID     string  `json:"reporter_id" validate:"required"`
	Confidence     int     `json:"confidence" validate:"gte=0,lte=100"`
	DistanceMeters float64 `json:"distance_meters" validate:"gte=0"`
}

// UpdateStatusRequest DTO для смены статуса инцидента
// @Description DTO для смены статуса инцидента
type UpdateStatusRequest struct {
	Status         string `json:"status" validate:"required,oneof=Reported Verified 'In Progress' Dispatched Resolved Closed"`
	ResponderNotes string `json:"responder_notes,omitempty"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID             uuid.UUID `json:"id"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Status         string    `json:"status"`
	Description    string    `json:"description"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Address        string    `json:"address,omitempty"`
	Upvotes        int       `json:"upvotes"`
	Verified       bool      `json:"verified"`
	ResponderNotes string    `json:"responder_notes,omitempty"`
	ReportedAt     time.Time `json:"reported_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DuplicateMatchResponse DTO для кандидата-дубликата
// @Description DTO для кандидата-дубликата с уверенностью и расстоянием
type DuplicateMatchResponse struct {
	Incident       *IncidentResponse `json:"incident"`
	Confidence     int               `json:"confidence"`
	DistanceMeters float64           `json:"distance_meters"`
}

// ReportResponse DTO для результата отправки отчета.
// Либо создан инцидент, либо возвращены кандидаты-дубликаты.
// @Description DTO для результата отправки отчета
type ReportResponse struct {
	Incident   *IncidentResponse         `json:"incident,omitempty"`
	Duplicates []*DuplicateMatchResponse `json:"duplicates,omitempty"`
}

// RankedIncidentResponse DTO для элемента приоритетной очереди
// @Description DTO для элемента приоритетной очереди
type RankedIncidentResponse struct {
	Incident *IncidentResponse `json:"incident"`
	Priority int               `json:"priority"`
}

// StatsResponse DTO для ответа со статистикой
// @Description DTO для ответа со статистикой
type StatsResponse struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	BySeverity map[string]int `json:"by_severity"`
	ByStatus   map[string]int `json:"by_status"`
}
