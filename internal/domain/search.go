package domain

import "time"

type TravelMode string

const (
	TravelModeDriving   TravelMode = "driving"
	TravelModeWalking   TravelMode = "walking"
	TravelModeBicycling TravelMode = "bicycling"
	TravelModeTransit   TravelMode = "transit"
)

func NormalizeTravelMode(raw string) TravelMode {
	switch TravelMode(raw) {
	case TravelModeWalking:
		return TravelModeWalking
	case TravelModeBicycling:
		return TravelModeBicycling
	case TravelModeTransit:
		return TravelModeTransit
	default:
		return TravelModeDriving
	}
}

// CategoryFilter maps a logical category onto the provider's type and keyword vocabulary.
type CategoryFilter struct {
	Name    string `json:"name"`
	Label   string `json:"label,omitempty"`
	Type    string `json:"type,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

type Bounds struct {
	SouthWest Coordinate `json:"southWest"`
	NorthEast Coordinate `json:"northEast"`
}

// GeoBias restricts a search either to a viewport or to a circle.
type GeoBias struct {
	Bounds       *Bounds     `json:"bounds,omitempty"`
	Center       *Coordinate `json:"center,omitempty"`
	RadiusMeters int         `json:"radiusMeters,omitempty"`
}

type SearchRequest struct {
	Query      string
	Categories []string
	Bias       *GeoBias
	Origin     *Coordinate
	SessionID  string
	Owner      string
}

// TextQuery is the provider-facing form of a text search.
type TextQuery struct {
	Query string
	Type  string
}

// NearbyQuery is the provider-facing form of a bounded search.
type NearbyQuery struct {
	Center       Coordinate
	RadiusMeters int
	Keyword      string
	Type         string
}

type Distance struct {
	Text   string `json:"text"`
	Meters int    `json:"meters"`
}

type Photo struct {
	ContentType string
	Data        []byte
}

// EnrichmentTask pairs one slot of a working list with the origin of its pass.
type EnrichmentTask struct {
	Index      int
	Place      Place
	Origin     Coordinate
	Generation uint64
}

type SearchStage string

const (
	StageSearched SearchStage = "searched"
	StageEnriched SearchStage = "enriched"
)

type CategoryStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type SearchSnapshot struct {
	SessionID  string           `json:"sessionId,omitempty"`
	Query      string           `json:"query"`
	Stage      SearchStage      `json:"stage"`
	Items      []Place          `json:"items"`
	Categories []CategoryStatus `json:"categories"`
	Origin     *Coordinate      `json:"origin,omitempty"`
	ElapsedMS  int64            `json:"elapsedMs"`
	Final      bool             `json:"final"`
	Error      string           `json:"error,omitempty"`
}

type HistoryEntry struct {
	Query      string    `json:"query"`
	Categories []string  `json:"categories,omitempty"`
	Results    int       `json:"results"`
	SearchedAt time.Time `json:"searchedAt"`
}

type ProviderDiagnostics struct {
	Operation           string     `json:"operation"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}
