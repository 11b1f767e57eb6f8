package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentType - категория инцидента
type IncidentType string

const (
	TypeFire           IncidentType = "Fire"
	TypeAccident       IncidentType = "Accident"
	TypeMedical        IncidentType = "Medical"
	TypeCrime          IncidentType = "Crime"
	TypeInfrastructure IncidentType = "Infrastructure"
	TypeOther          IncidentType = "Other"
)

// Severity - уровень серьезности инцидента, назначается снаружи (ручной триаж)
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Status - статус жизненного цикла инцидента
type Status string

const (
	StatusReported   Status = "Reported"
	StatusVerified   Status = "Verified"
	StatusInProgress Status = "In Progress"
	StatusDispatched Status = "Dispatched"
	StatusResolved   Status = "Resolved"
	StatusClosed     Status = "Closed"
)

// Terminal сообщает, является ли статус конечным.
// Конечные инциденты остаются видимыми, но не принимают новые дубликаты.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Incident - доменная модель инцидента.
// Координаты опциональны: отчет без геолокации не блокируется.
type Incident struct {
	ID             uuid.UUID    `json:"id"`
	Type           IncidentType `json:"type"`
	Severity       Severity     `json:"severity"`
	Status         Status       `json:"status"`
	Description    string       `json:"description"`
	Latitude       *float64     `json:"latitude,omitempty"`
	Longitude      *float64     `json:"longitude,omitempty"`
	Address        string       `json:"address,omitempty"`
	Upvotes        int          `json:"upvotes"`
	Verified       bool         `json:"verified"`
	ResponderNotes string       `json:"responder_notes,omitempty"`
	ReportedAt     time.Time    `json:"reported_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// HasLocation сообщает, есть ли у инцидента обе координаты
func (i *Incident) HasLocation() bool {
	return i.Latitude != nil && i.Longitude != nil
}

// RankedIncident - инцидент с вычисленным приоритетом для очереди диспетчера
type RankedIncident struct {
	Incident *Incident `json:"incident"`
	Priority int       `json:"priority"`
}

// IncidentFilter - опциональные фильтры для списка инцидентов
type IncidentFilter struct {
	Type     IncidentType
	Severity Severity
	Status   Status
}

// IncidentStats - агрегированная статистика по инцидентам
type IncidentStats struct {
	Total      int              `json:"total"`
	Open       int              `json:"open"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByStatus   map[Status]int   `json:"by_status"`
}
