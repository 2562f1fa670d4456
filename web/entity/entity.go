// Package entity defines the request forms, paging and response shapes of the web layer.
package entity

import (
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Msg represents a standard JSON response message with success status, message text, and optional data object.
type Msg struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Obj     any    `json:"obj"`
}

// Page is a 1-based LIMIT/OFFSET window. HasNext is filled by the query that used it.
type Page struct {
	Number  int
	Size    int
	HasNext bool
}

// NewPage clamps number to >= 1 and size to 1..MaxPageSize (DefaultPageSize when unset).
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

func (p Page) HasPrev() bool {
	return p.Number > 1
}

func (p Page) Prev() int {
	if p.Number <= 1 {
		return 1
	}
	return p.Number - 1
}

func (p Page) Next() int {
	return p.Number + 1
}

// LoginForm is posted by the login page.
type LoginForm struct {
	Email         string `form:"email"`
	Password      string `form:"password"`
	TwoFactorCode string `form:"two_factor_code"`
	Next          string `form:"next"`
}

// RegisterForm is posted by the registration page.
type RegisterForm struct {
	Email     string `form:"email"`
	Password  string `form:"password"`
	FirstName string `form:"first_name"`
	LastName  string `form:"last_name"`
}

// ProfileForm carries the self-service profile fields. Numeric fields stay strings so an
// empty input can mean "unknown".
type ProfileForm struct {
	FirstName             string `form:"first_name"`
	LastName              string `form:"last_name"`
	Age                   string `form:"age"`
	Gender                string `form:"gender"`
	Country               string `form:"country"`
	StateProvince         string `form:"state_province"`
	City                  string `form:"city"`
	SubscriptionPlan      string `form:"subscription_plan"`
	SubscriptionStartDate string `form:"subscription_start_date"`
	MonthlySpend          string `form:"monthly_spend"`
	PrimaryDevice         string `form:"primary_device"`
	HouseholdSize         string `form:"household_size"`
	Password              string `form:"password"`
}

// AdminUserForm is posted by the admin create/edit user page. IsActive is the raw
// checkbox value ("on" when ticked).
type AdminUserForm struct {
	Email     string `form:"email"`
	Password  string `form:"password"`
	Role      string `form:"role"`
	FirstName string `form:"first_name"`
	LastName  string `form:"last_name"`
	IsActive  string `form:"is_active"`
}

func (f AdminUserForm) Active() bool {
	return f.IsActive == "on" || f.IsActive == "true"
}

// MovieForm is posted by the admin create/edit movie page.
type MovieForm struct {
	ShowId      string `form:"show_id"`
	Type        string `form:"type"`
	Title       string `form:"title"`
	Director    string `form:"director"`
	Cast        string `form:"cast"`
	Country     string `form:"country"`
	DateAdded   string `form:"date_added"`
	ReleaseYear string `form:"release_year"`
	Rating      string `form:"rating"`
	Duration    string `form:"duration"`
	ListedIn    string `form:"listed_in"`
	Description string `form:"description"`
}

// Trim strips surrounding whitespace from every field.
func (f *MovieForm) Trim() {
	for _, p := range []*string{
		&f.ShowId, &f.Type, &f.Title, &f.Director, &f.Cast, &f.Country, &f.DateAdded,
		&f.ReleaseYear, &f.Rating, &f.Duration, &f.ListedIn, &f.Description,
	} {
		*p = strings.TrimSpace(*p)
	}
}

// Year parses ReleaseYear; blank or invalid input gives 0.
func (f *MovieForm) Year() int {
	year, err := strconv.Atoi(strings.TrimSpace(f.ReleaseYear))
	if err != nil || year < 0 {
		return 0
	}
	return year
}

// OptionalInt parses s, returning nil for blank or invalid input.
func OptionalInt(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

// OptionalFloat parses s, returning nil for blank or invalid input.
func OptionalFloat(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")), 64)
	if err != nil {
		return nil
	}
	return &f
}
