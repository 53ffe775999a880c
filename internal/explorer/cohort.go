package explorer

import "strings"

// Cohorts lists the rating cohorts in ascending order. Cohort filters
// compare by index in this slice.
var Cohorts = []string{
	"0-300",
	"300-400",
	"400-500",
	"500-600",
	"600-700",
	"700-800",
	"800-900",
	"900-1000",
	"1000-1100",
	"1100-1200",
	"1200-1300",
	"1300-1400",
	"1400-1500",
	"1500-1600",
	"1600-1700",
	"1700-1800",
	"1800-1900",
	"1900-2000",
	"2000-2100",
	"2100-2200",
	"2200-2300",
	"2300-2400",
	"2400+",
}

// MastersCohort marks games from the masters database rather than a
// member rating band.
const MastersCohort = "masters"

// IsMasters reports whether cohort belongs to the masters database.
func IsMasters(cohort string) bool {
	return strings.HasPrefix(cohort, MastersCohort)
}

// CohortIndex returns the position of cohort in Cohorts, or -1 if it is
// not a known rating band.
func CohortIndex(cohort string) int {
	for i, c := range Cohorts {
		if c == cohort {
			return i
		}
	}
	return -1
}

// ExplorerCohort returns the cohort a game's counters and index records
// are partitioned under. Masters games partition by time class so that
// bullet and classical statistics stay separate; member games use the
// owner's rating cohort unchanged.
func ExplorerCohort(g *GameRecord) string {
	if !IsMasters(g.Cohort) {
		return g.Cohort
	}
	tc := strings.ToLower(g.TimeClass)
	if tc == "" {
		tc = "unknown"
	}
	return MastersCohort + "-" + tc
}
