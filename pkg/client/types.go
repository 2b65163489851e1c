package client

import "time"

// Status mirrors GET /status.
type Status struct {
	RunID     string    `json:"run_id,omitempty"`
	Running   bool      `json:"running"`
	Paused    bool      `json:"paused"`
	Cancelled bool      `json:"cancelled"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Current   string    `json:"current,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Completed int       `json:"completed"`
}

// ResultRow is one report line as returned by GET /results.
type ResultRow struct {
	Name                  string `json:"Name"`
	ShortcutPath          string `json:"Shortcut Path"`
	ExpectedExecutable    string `json:"Expected Executable"`
	AssociatedWindows     string `json:"Associated Windows"`
	TerminatedExecutables string `json:"Terminated Executables"`
	ClosedWindows         string `json:"Closed Windows"`
	Status                string `json:"Status"`
	Remarks               string `json:"Remarks"`
}

type pauseResponse struct {
	Paused bool `json:"paused"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Token is returned by POST /auth/token.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}
