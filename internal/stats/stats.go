// package stats derives statistics from a user's daily activity history.
// Every function here is a pure computation over the rows it is given:
// no I/O, no cached state, safe to call concurrently. The reference date
// ("today") is always an explicit argument so results are deterministic.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/lgdx/activity-service/internal/domain"
)

type Basic struct {
	TotalCommits         int     `json:"total_commits"`
	TotalRepositories    int     `json:"total_repositories"`
	ActiveDays           int     `json:"active_days"`
	LongestStreak        int     `json:"longest_streak"`
	CurrentStreak        int     `json:"current_streak"`
	AverageCommitsPerDay float64 `json:"average_commits_per_day"`
}

type LanguageUsage struct {
	Language   string `json:"language"`
	Commits    int    `json:"commits"`
	Days       int    `json:"days"`
	Percentage int    `json:"percentage"`
}

type WeekdayBucket struct {
	Weekday    string  `json:"weekday"`
	Commits    int     `json:"commits"`
	ActiveDays int     `json:"active_days"`
	Average    float64 `json:"average"`
}

type MonthlyBucket struct {
	Month        string   `json:"month"`
	Commits      int      `json:"commits"`
	Repositories int      `json:"repositories"`
	Languages    []string `json:"languages"`
}

type Productivity struct {
	CommitsPerActiveDay float64 `json:"commits_per_active_day"`
	ActivityRate        int     `json:"activity_rate"`
	ConsistencyScore    int     `json:"consistency_score"`
	PeakActivityDay     string  `json:"peak_activity_day"`
}

type Detailed struct {
	Basic
	FavoriteLanguages []LanguageUsage `json:"favorite_languages"`
	WeekdayAnalysis   []WeekdayBucket `json:"weekday_analysis"`
	MonthlyAnalysis   []MonthlyBucket `json:"monthly_analysis"`
	Productivity      Productivity    `json:"productivity"`
}

type HeatmapDay struct {
	Date         string   `json:"date"`
	Count        int      `json:"count"`
	Level        int      `json:"level"`
	Repositories []string `json:"repositories"`
	Languages    []string `json:"languages"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`
}

type ChartPoint struct {
	Date         string `json:"date"`
	Commits      int    `json:"commits"`
	Repositories int    `json:"repositories"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	FilesChanged int    `json:"files_changed"`
	Languages    int    `json:"languages"`
}

// Streaks returns the current and longest runs of consecutive active days.
// A day is active when its commit count is nonzero. The current streak is
// walked backward from today; a missing today yields zero.
func Streaks(activities []domain.DailyActivity, today time.Time) (current, longest int) {
	activeDates := make([]time.Time, 0, len(activities))
	for _, a := range activities {
		if a.CommitsCount > 0 {
			activeDates = append(activeDates, dateOnly(a.Date))
		}
	}

	if len(activeDates) == 0 {
		return 0, 0
	}

	sort.Slice(activeDates, func(i, j int) bool { return activeDates[i].Before(activeDates[j]) })

	tempStreak := 1
	for i := 1; i < len(activeDates); i++ {
		if daysBetween(activeDates[i-1], activeDates[i]) == 1 {
			tempStreak++
			continue
		}

		if tempStreak > longest {
			longest = tempStreak
		}
		tempStreak = 1
	}

	if tempStreak > longest {
		longest = tempStreak
	}

	todayDate := dateOnly(today)
	for i := len(activeDates) - 1; i >= 0; i-- {
		if daysBetween(activeDates[i], todayDate) == current {
			current++
		} else {
			break
		}
	}

	return current, longest
}

// ConsistencyScore maps the spread of daily commit counts onto a 0-100
// scale: round((1 - cv) * 100) clamped to [0, 100], where cv is the
// population standard deviation over the mean. Uniform nonzero counts
// score 100; an empty history scores 0.
func ConsistencyScore(activities []domain.DailyActivity) int {
	if len(activities) == 0 {
		return 0
	}

	var sum float64
	for _, a := range activities {
		sum += float64(a.CommitsCount)
	}

	mean := sum / float64(len(activities))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, a := range activities {
		d := float64(a.CommitsCount) - mean
		variance += d * d
	}
	variance /= float64(len(activities))

	cv := math.Sqrt(variance) / mean
	score := int(math.Round((1 - cv) * 100))

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}

	return score
}

// BasicStats computes the headline numbers over the given window.
func BasicStats(activities []domain.DailyActivity, today time.Time) Basic {
	if len(activities) == 0 {
		return Basic{}
	}

	totalCommits := 0
	activeDays := 0
	repos := make(map[string]struct{})

	for _, a := range activities {
		totalCommits += a.CommitsCount
		if a.CommitsCount > 0 {
			activeDays++
		}
		for _, r := range a.Repositories {
			repos[r] = struct{}{}
		}
	}

	current, longest := Streaks(activities, today)

	return Basic{
		TotalCommits:         totalCommits,
		TotalRepositories:    len(repos),
		ActiveDays:           activeDays,
		LongestStreak:        longest,
		CurrentStreak:        current,
		AverageCommitsPerDay: round1(float64(totalCommits) / float64(len(activities))),
	}
}

// DetailedStats extends BasicStats with language, weekday, monthly and
// productivity breakdowns. periodDays is the full window length, counting
// days with no recorded activity.
func DetailedStats(activities []domain.DailyActivity, periodDays int, today time.Time) Detailed {
	basic := BasicStats(activities, today)

	weekdays := weekdayAnalysis(activities)

	activityRate := 0
	if periodDays > 0 {
		activityRate = int(math.Round(float64(basic.ActiveDays) / float64(periodDays) * 100))
	}

	commitsPerActiveDay := 0.0
	if basic.ActiveDays > 0 {
		commitsPerActiveDay = round1(float64(basic.TotalCommits) / float64(basic.ActiveDays))
	}

	return Detailed{
		Basic:             basic,
		FavoriteLanguages: favoriteLanguages(activities, basic.TotalCommits),
		WeekdayAnalysis:   weekdays,
		MonthlyAnalysis:   monthlyAnalysis(activities),
		Productivity: Productivity{
			CommitsPerActiveDay: commitsPerActiveDay,
			ActivityRate:        activityRate,
			ConsistencyScore:    ConsistencyScore(activities),
			PeakActivityDay:     peakActivityDay(weekdays),
		},
	}
}

// Heatmap produces one entry per day of the window, filling days with no
// recorded activity with zero values.
func Heatmap(activities []domain.DailyActivity, periodDays int, startDate time.Time) []HeatmapDay {
	byDate := make(map[string]domain.DailyActivity, len(activities))
	for _, a := range activities {
		byDate[a.Date.Format(domain.DateLayout)] = a
	}

	start := dateOnly(startDate)
	days := make([]HeatmapDay, 0, periodDays)

	for i := 0; i < periodDays; i++ {
		dateStr := start.AddDate(0, 0, i).Format(domain.DateLayout)

		a, ok := byDate[dateStr]
		if !ok {
			days = append(days, HeatmapDay{
				Date:         dateStr,
				Repositories: []string{},
				Languages:    []string{},
			})
			continue
		}

		days = append(days, HeatmapDay{
			Date:         dateStr,
			Count:        a.CommitsCount,
			Level:        a.ActivityLevel,
			Repositories: a.Repositories,
			Languages:    a.Languages,
			Additions:    a.Additions,
			Deletions:    a.Deletions,
		})
	}

	return days
}

// Chart maps the recorded rows one-to-one into time-series points.
func Chart(activities []domain.DailyActivity) []ChartPoint {
	points := make([]ChartPoint, len(activities))
	for i, a := range activities {
		points[i] = ChartPoint{
			Date:         a.Date.Format(domain.DateLayout),
			Commits:      a.CommitsCount,
			Repositories: a.RepositoriesCount,
			Additions:    a.Additions,
			Deletions:    a.Deletions,
			FilesChanged: a.FilesChanged,
			Languages:    len(a.Languages),
		}
	}

	return points
}

func favoriteLanguages(activities []domain.DailyActivity, totalCommits int) []LanguageUsage {
	type usage struct {
		commits int
		days    int
	}

	byLanguage := make(map[string]*usage)
	order := make([]string, 0)

	for _, a := range activities {
		for _, lang := range a.Languages {
			u, ok := byLanguage[lang]
			if !ok {
				u = &usage{}
				byLanguage[lang] = u
				order = append(order, lang)
			}
			u.commits += a.CommitsCount
			u.days++
		}
	}

	result := make([]LanguageUsage, 0, len(order))
	for _, lang := range order {
		u := byLanguage[lang]

		percentage := 0
		if totalCommits > 0 {
			percentage = int(math.Round(float64(u.commits) / float64(totalCommits) * 100))
		}

		result = append(result, LanguageUsage{
			Language:   lang,
			Commits:    u.commits,
			Days:       u.days,
			Percentage: percentage,
		})
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].Commits > result[j].Commits })

	if len(result) > 5 {
		result = result[:5]
	}

	return result
}

func weekdayAnalysis(activities []domain.DailyActivity) []WeekdayBucket {
	type bucket struct {
		commits int
		days    int
	}

	// Indexed by time.Weekday: Sunday first.
	var buckets [7]bucket
	for _, a := range activities {
		wd := a.Date.Weekday()
		buckets[wd].commits += a.CommitsCount
		if a.CommitsCount > 0 {
			buckets[wd].days++
		}
	}

	result := make([]WeekdayBucket, 7)
	for i, b := range buckets {
		average := 0.0
		if b.days > 0 {
			average = round1(float64(b.commits) / float64(b.days))
		}

		result[i] = WeekdayBucket{
			Weekday:    time.Weekday(i).String(),
			Commits:    b.commits,
			ActiveDays: b.days,
			Average:    average,
		}
	}

	return result
}

func monthlyAnalysis(activities []domain.DailyActivity) []MonthlyBucket {
	type bucket struct {
		commits   int
		repos     map[string]struct{}
		languages map[string]struct{}
		langOrder []string
	}

	byMonth := make(map[string]*bucket)
	for _, a := range activities {
		month := a.Date.Format("2006-01")

		b, ok := byMonth[month]
		if !ok {
			b = &bucket{repos: make(map[string]struct{}), languages: make(map[string]struct{})}
			byMonth[month] = b
		}

		b.commits += a.CommitsCount
		for _, r := range a.Repositories {
			b.repos[r] = struct{}{}
		}
		for _, lang := range a.Languages {
			if _, seen := b.languages[lang]; !seen {
				b.languages[lang] = struct{}{}
				b.langOrder = append(b.langOrder, lang)
			}
		}
	}

	result := make([]MonthlyBucket, 0, len(byMonth))
	for month, b := range byMonth {
		result = append(result, MonthlyBucket{
			Month:        month,
			Commits:      b.commits,
			Repositories: len(b.repos),
			Languages:    b.langOrder,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Month < result[j].Month })

	return result
}

// peakActivityDay returns the weekday with the most commits. Ties keep the
// first bucket in slice order; this tie-break is part of the contract.
func peakActivityDay(weekdays []WeekdayBucket) string {
	if len(weekdays) == 0 {
		return ""
	}

	peak := weekdays[0]
	for _, b := range weekdays[1:] {
		if b.Commits > peak.Commits {
			peak = b
		}
	}

	return peak.Weekday
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(dateOnly(to).Sub(dateOnly(from)).Hours() / 24)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
