// Package priority содержит расчет динамического приоритета инцидента.
// Чистая функция от инцидента и момента оценки: без состояния, без побочных
// эффектов, безопасна для вызова из любого количества горутин.
package priority

import (
	"math"
	"time"

	"github.com/imcoderdev/emergency-backend/internal/models"
)

const (
	// MaxScore - верхняя граница итогового приоритета
	MaxScore = 100

	recencyMaxBonus      = 30
	recencyBucketMinutes = 10
	recencyBucketPenalty = 5

	upvotePoints   = 2
	upvoteMaxBonus = 20

	verifiedBonus = 15

	activeDampening   = 0.7 // In Progress / Dispatched
	terminalDampening = 0.3 // Resolved / Closed
)

// Базовые баллы серьезности. Неизвестная серьезность приравнивается к Medium.
var severityBase = map[models.Severity]int{
	models.SeverityCritical: 100,
	models.SeverityHigh:     70,
	models.SeverityMedium:   40,
	models.SeverityLow:      10,
}

// Score возвращает приоритет инцидента в диапазоне [0, 100].
// Чем выше значение, тем раньше требуется реагирование.
func Score(incident *models.Incident, now time.Time) int {
	base, ok := severityBase[incident.Severity]
	if !ok {
		base = severityBase[models.SeverityMedium]
	}

	score := base
	score += recencyBonus(incident.ReportedAt, now)
	score += upvoteBonus(incident.Upvotes)
	if incident.Verified {
		score += verifiedBonus
	}

	switch incident.Status {
	case models.StatusInProgress, models.StatusDispatched:
		score = int(math.Floor(float64(score) * activeDampening))
	case models.StatusResolved, models.StatusClosed:
		score = int(math.Floor(float64(score) * terminalDampening))
	}

	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// recencyBonus дает до 30 баллов свежим инцидентам, теряя 5 баллов за каждый
// полный 10-минутный интервал возраста. Нулевой timestamp трактуется как "сейчас",
// отрицательный возраст (timestamp в будущем) обрезается до нуля.
func recencyBonus(reportedAt, now time.Time) int {
	if reportedAt.IsZero() {
		return recencyMaxBonus
	}

	minutes := int(now.Sub(reportedAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}

	bonus := recencyMaxBonus - (minutes/recencyBucketMinutes)*recencyBucketPenalty
	if bonus < 0 {
		return 0
	}
	return bonus
}

// upvoteBonus дает 2 балла за подтверждение, максимум 20
func upvoteBonus(upvotes int) int {
	if upvotes < 0 {
		return 0
	}
	bonus := upvotes * upvotePoints
	if bonus > upvoteMaxBonus {
		return upvoteMaxBonus
	}
	return bonus
}
