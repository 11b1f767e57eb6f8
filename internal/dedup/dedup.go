// Package dedup содержит поиск кандидатов-дубликатов для нового отчета.
// Чистая функция над переданным пулом: ничего не мутирует и не загружает.
package dedup

import (
	"math"
	"sort"
	"time"

	"github.com/imcoderdev/emergency-backend/internal/models"
	"github.com/imcoderdev/emergency-backend/pkg/geo"
)

const (
	// LookbackWindow - окно поиска: кандидаты старше исключаются независимо от расстояния
	LookbackWindow = 2 * time.Hour

	// RadiusMeters - максимальное расстояние до кандидата
	RadiusMeters = 500.0

	// metersPerPoint: 1 балл расстояния теряется на каждые 5 метров,
	// ноль на границе радиуса
	metersPerPoint = RadiusMeters / 100

	// ageMillisPerPoint: 1 балл времени теряется на каждые window/100 миллисекунд,
	// ноль на границе окна
	ageMillisPerPoint = float64(LookbackWindow/time.Millisecond) / 100
)

// Match - кандидат-дубликат с уверенностью [0, 100] и расстоянием до черновика
type Match struct {
	Incident       *models.Incident `json:"incident"`
	Confidence     int              `json:"confidence"`
	DistanceMeters float64          `json:"distance_meters"`
}

// FindDuplicates возвращает инциденты из пула, правдоподобно описывающие то же
// событие, что и черновик, по убыванию уверенности. Кандидат проходит фильтр,
// если совпадает тип, статус не конечный, возраст в пределах окна и расстояние
// в пределах радиуса.
//
// Черновик без координат не блокирует отправку: возвращается пустой результат.
// Кандидаты без координат или без timestamp просто отбрасываются.
func FindDuplicates(draft *models.Incident, pool []*models.Incident, now time.Time) []Match {
	if draft == nil || !draft.HasLocation() || !validCoords(*draft.Latitude, *draft.Longitude) {
		return nil
	}

	matches := make([]Match, 0)
	for _, candidate := range pool {
		if candidate == nil || candidate.Type != draft.Type {
			continue
		}
		if candidate.Status.Terminal() {
			continue
		}
		if candidate.ReportedAt.IsZero() {
			continue
		}
		age := now.Sub(candidate.ReportedAt)
		if age < 0 {
			age = 0
		}
		if age > LookbackWindow {
			continue
		}
		if !candidate.HasLocation() || !validCoords(*candidate.Latitude, *candidate.Longitude) {
			continue
		}

		distance := geo.HaversineMeters(*draft.Latitude, *draft.Longitude, *candidate.Latitude, *candidate.Longitude)
		if distance > RadiusMeters {
			continue
		}

		matches = append(matches, Match{
			Incident:       candidate,
			Confidence:     confidence(distance, age),
			DistanceMeters: distance,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

// confidence усредняет линейные оценки близости по расстоянию и времени
func confidence(distanceMeters float64, age time.Duration) int {
	distanceScore := math.Max(0, 100-distanceMeters/metersPerPoint)
	timeScore := math.Max(0, 100-float64(age.Milliseconds())/ageMillisPerPoint)
	return int(math.Round((distanceScore + timeScore) / 2))
}

// validCoords отсекает NaN и координаты вне допустимых диапазонов
func validCoords(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
