package domain

import "time"

// Bounds on user settings.
const (
	MinRefreshIntervalSeconds = 1
	MaxRefreshIntervalSeconds = 60
	MaxWatchlistSize          = 50
	MaxAIModelLength          = 100
)

// Settings holds a user's preferences, a row of user_settings.
type Settings struct {
	UserID                 string
	DefaultAccountID       string
	AIProvider             string
	AIModel                string
	RefreshIntervalSeconds int
	NotificationsEnabled   bool
	Watchlist              []string
	UpdatedAt              time.Time
}

// Clone returns a copy that does not share the watchlist slice.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Watchlist = append([]string(nil), s.Watchlist...)
	return &c
}
