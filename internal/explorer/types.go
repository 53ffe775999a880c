// Package explorer holds the position-statistics domain model: result
// counters partitioned by cohort, per-game position extractions, the
// updates diffed from them, and the durable explorer records.
package explorer

// Result classifies how a game relates to a position it reaches.
// Positions reached only through analysis variations count as analysis
// regardless of the game's final result.
type Result string

const (
	ResultWhite    Result = "white"
	ResultBlack    Result = "black"
	ResultDraws    Result = "draws"
	ResultAnalysis Result = "analysis"

	// ResultNone marks an absent old/new result in an update.
	ResultNone Result = ""
)

// ResultFromTag maps a PGN Result tag to a Result. Unfinished or
// missing results map to analysis.
func ResultFromTag(tag string) Result {
	switch tag {
	case "1-0":
		return ResultWhite
	case "0-1":
		return ResultBlack
	case "1/2-1/2":
		return ResultDraws
	}
	return ResultAnalysis
}

// ResultCounts tallies contributing games per result. One game
// increments at most one counter per (fen, san, cohort).
type ResultCounts struct {
	White    int `json:"white,omitempty" dynamodbav:"white,omitempty"`
	Black    int `json:"black,omitempty" dynamodbav:"black,omitempty"`
	Draws    int `json:"draws,omitempty" dynamodbav:"draws,omitempty"`
	Analysis int `json:"analysis,omitempty" dynamodbav:"analysis,omitempty"`
}

// Add adds n games with the given result.
func (rc *ResultCounts) Add(r Result, n int) {
	switch r {
	case ResultWhite:
		rc.White += n
	case ResultBlack:
		rc.Black += n
	case ResultDraws:
		rc.Draws += n
	case ResultAnalysis:
		rc.Analysis += n
	}
}

// Total returns the number of games across all results.
func (rc ResultCounts) Total() int {
	return rc.White + rc.Black + rc.Draws + rc.Analysis
}

// PositionExtraction is one position pulled out of a single game,
// ephemeral to one extraction pass.
type PositionExtraction struct {
	Fen    string
	Result Result
	Moves  map[string]MoveExtraction
}

// MoveExtraction is one continuation move pulled out of a single game.
type MoveExtraction struct {
	SAN    string
	Result Result
}

// PositionUpdate is the delta needed to move the aggregate for one fen
// from reflecting a game's old PGN to reflecting its new PGN. An empty
// OldResult means the game did not previously reach the position; an
// empty NewResult means it no longer does.
type PositionUpdate struct {
	Fen       string
	OldResult Result
	NewResult Result
	Moves     []MoveUpdate
}

// MoveUpdate is the per-move part of a PositionUpdate.
type MoveUpdate struct {
	SAN       string
	OldResult Result
	NewResult Result
}

// Opening names a known opening position.
type Opening struct {
	Eco  string `json:"eco" dynamodbav:"eco"`
	Name string `json:"name" dynamodbav:"name"`
}

// Position is the durable per-position aggregate, keyed by normalized
// FEN with the fixed range key "POSITION".
type Position struct {
	Fen     string                  `json:"normalizedFen" dynamodbav:"normalizedFen"`
	ID      string                  `json:"id" dynamodbav:"id"`
	Opening *Opening                `json:"opening,omitempty" dynamodbav:"opening,omitempty"`
	Results map[string]ResultCounts `json:"results" dynamodbav:"results"`
	Moves   map[string]Move         `json:"moves" dynamodbav:"moves"`
}

// Move is the durable per-move aggregate nested inside a Position.
type Move struct {
	SAN     string                  `json:"san" dynamodbav:"san"`
	Results map[string]ResultCounts `json:"results" dynamodbav:"results"`
}

// PositionID is the fixed range key of Position records.
const PositionID = "POSITION"

// Game is the durable per-game-per-position index record, keyed by
// normalized FEN plus "GAME#<explorerCohort>#<gameID>". Result is the
// game's result relative to this fen (analysis when the fen only
// appears in variations).
type Game struct {
	Fen    string    `json:"normalizedFen" dynamodbav:"normalizedFen"`
	ID     string    `json:"id" dynamodbav:"id"`
	Cohort string    `json:"cohort" dynamodbav:"cohort"`
	Owner  string    `json:"owner" dynamodbav:"owner"`
	Result Result    `json:"result" dynamodbav:"result"`
	Game   GameEmbed `json:"game" dynamodbav:"game"`
}

// Follower is a subscription to new games reaching a position, keyed by
// normalized FEN plus "FOLLOWER#<username>".
type Follower struct {
	Fen      string         `json:"normalizedFen" dynamodbav:"normalizedFen"`
	ID       string         `json:"id" dynamodbav:"id"`
	Username string         `json:"follower" dynamodbav:"follower"`
	Metadata FollowMetadata `json:"followMetadata" dynamodbav:"followMetadata"`
}

// FollowMetadata carries the follower's delivery filters, split by the
// database the triggering game came from.
type FollowMetadata struct {
	Masters MastersFilter `json:"masters" dynamodbav:"masters"`
	Dojo    DojoFilter    `json:"dojo" dynamodbav:"dojo"`
}

// MastersFilter filters notifications for masters-database games.
type MastersFilter struct {
	Enabled          bool     `json:"enabled" dynamodbav:"enabled"`
	TimeControls     []string `json:"timeControls,omitempty" dynamodbav:"timeControls,omitempty"`
	MinAverageRating int      `json:"minAverageRating,omitempty" dynamodbav:"minAverageRating,omitempty"`
}

// DojoFilter filters notifications for member-submitted games.
type DojoFilter struct {
	Enabled           bool   `json:"enabled" dynamodbav:"enabled"`
	DisableVariations bool   `json:"disableVariations,omitempty" dynamodbav:"disableVariations,omitempty"`
	MinCohort         string `json:"minCohort,omitempty" dynamodbav:"minCohort,omitempty"`
	MaxCohort         string `json:"maxCohort,omitempty" dynamodbav:"maxCohort,omitempty"`
}

// GameHeaders is the subset of PGN headers carried on game records.
type GameHeaders struct {
	White    string `json:"White" dynamodbav:"White"`
	WhiteElo string `json:"WhiteElo,omitempty" dynamodbav:"WhiteElo,omitempty"`
	Black    string `json:"Black" dynamodbav:"Black"`
	BlackElo string `json:"BlackElo,omitempty" dynamodbav:"BlackElo,omitempty"`
	Result   string `json:"Result" dynamodbav:"Result"`
	PlyCount string `json:"PlyCount,omitempty" dynamodbav:"PlyCount,omitempty"`
}

// GameRecord is a game image delivered by the change source. Unlisted
// games contribute nothing to the explorer.
type GameRecord struct {
	Cohort           string      `json:"cohort"`
	ID               string      `json:"id"`
	Date             string      `json:"date"`
	CreatedAt        string      `json:"createdAt"`
	PublishedAt      string      `json:"publishedAt,omitempty"`
	Owner            string      `json:"owner"`
	OwnerDisplayName string      `json:"ownerDisplayName,omitempty"`
	TimeClass        string      `json:"timeClass,omitempty"`
	Headers          GameHeaders `json:"headers"`
	Pgn              string      `json:"pgn"`
	Unlisted         bool        `json:"unlisted"`
}

// GameEmbed is the trimmed copy of a GameRecord stored on index and
// notification records. The PGN body is never embedded.
type GameEmbed struct {
	Cohort           string      `json:"cohort" dynamodbav:"cohort"`
	ID               string      `json:"id" dynamodbav:"id"`
	Date             string      `json:"date" dynamodbav:"date"`
	CreatedAt        string      `json:"createdAt" dynamodbav:"createdAt"`
	PublishedAt      string      `json:"publishedAt,omitempty" dynamodbav:"publishedAt,omitempty"`
	Owner            string      `json:"owner" dynamodbav:"owner"`
	OwnerDisplayName string      `json:"ownerDisplayName,omitempty" dynamodbav:"ownerDisplayName,omitempty"`
	TimeClass        string      `json:"timeClass,omitempty" dynamodbav:"timeClass,omitempty"`
	Headers          GameHeaders `json:"headers" dynamodbav:"headers"`
}

// Embed returns the trimmed copy of g stored on index records.
func (g *GameRecord) Embed() GameEmbed {
	return GameEmbed{
		Cohort:           g.Cohort,
		ID:               g.ID,
		Date:             g.Date,
		CreatedAt:        g.CreatedAt,
		PublishedAt:      g.PublishedAt,
		Owner:            g.Owner,
		OwnerDisplayName: g.OwnerDisplayName,
		TimeClass:        g.TimeClass,
		Headers:          g.Headers,
	}
}
