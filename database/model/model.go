// Package model holds the persisted records of the catalog: users and movies/shows.
package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an account. Optional numeric profile fields are nil when unknown.
type User struct {
	Id                    int       `json:"user_id" gorm:"column:user_id;primaryKey;autoIncrement"`
	Email                 string    `json:"email" gorm:"not null;uniqueIndex"`
	FirstName             string    `json:"first_name"`
	LastName              string    `json:"last_name"`
	Age                   *int      `json:"age"`
	Gender                string    `json:"gender"`
	Country               string    `json:"country"`
	StateProvince         string    `json:"state_province"`
	City                  string    `json:"city"`
	SubscriptionPlan      string    `json:"subscription_plan"`
	SubscriptionStartDate string    `json:"subscription_start_date"` // YYYY-MM-DD
	IsActive              bool      `json:"is_active" gorm:"not null"`
	MonthlySpend          *float64  `json:"monthly_spend"`
	PrimaryDevice         string    `json:"primary_device"`
	HouseholdSize         *int      `json:"household_size"`
	CreatedAt             time.Time `json:"created_at"`
	Role                  Role      `json:"role" gorm:"not null;default:user"`
	PasswordHash          string    `json:"-" gorm:"not null"`
	TwoFactorSecret       string    `json:"-"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) HasTwoFactor() bool {
	return u.TwoFactorSecret != ""
}

// DisplayName prefers "First Last" and falls back to the email.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

const (
	TypeMovie  = "Movie"
	TypeTVShow = "TV Show"
)

// Movie is a catalog entry keyed by its external content id. The Imdb*/Poster/BoxOffice
// block is filled from OMDB; LastUpdated and OmdbLastAttempt drive the refresh policy.
type Movie struct {
	ShowId      string `json:"show_id" form:"show_id" gorm:"primaryKey"`
	Type        string `json:"type" form:"type"`
	Title       string `json:"title" form:"title" gorm:"index"`
	Director    string `json:"director" form:"director"`
	Cast        string `json:"cast" form:"cast"`
	Country     string `json:"country" form:"country"`
	DateAdded   string `json:"date_added" form:"date_added"`
	ReleaseYear int    `json:"release_year" form:"release_year"`
	Rating      string `json:"rating" form:"rating"`
	Duration    string `json:"duration" form:"duration"`
	ListedIn    string `json:"listed_in" form:"listed_in"`
	Description string `json:"description" form:"description"`

	ImdbRating        *float64   `json:"imdb_rating"`
	ImdbVotes         *int       `json:"imdb_votes"`
	Poster            *string    `json:"poster"`
	BoxOffice         *string    `json:"box_office"`
	OmdbDataAvailable bool       `json:"omdb_data_available" gorm:"not null;default:false"`
	LastUpdated       *time.Time `json:"last_updated"`
	OmdbLastAttempt   *time.Time `json:"omdb_last_attempt"`
}

// CatalogColumns are the columns owned by the CSV seed and the admin form.
var CatalogColumns = []string{
	"type", "title", "director", "cast", "country", "date_added",
	"release_year", "rating", "duration", "listed_in", "description",
}

// EnrichmentColumns are written together when an OMDB lookup succeeds.
var EnrichmentColumns = []string{
	"imdb_rating", "imdb_votes", "poster", "box_office",
	"omdb_data_available", "last_updated", "omdb_last_attempt",
}

func (m *Movie) IsShow() bool {
	return m.Type == TypeTVShow
}

// Genres splits the comma separated listed_in column.
func (m *Movie) Genres() []string {
	if m.ListedIn == "" {
		return nil
	}
	parts := strings.Split(m.ListedIn, ",")
	genres := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			genres = append(genres, p)
		}
	}
	return genres
}
