// Package api contains shared JSON structs for the admin overview endpoint.
// This package is shared between the CLI and the admin server.
package api

import "time"

// ScheduleInfo describes one schedule row in the overview.
type ScheduleInfo struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	Cron       string     `json:"cron"`
	Payload    string     `json:"payload"`
	Enabled    bool       `json:"enabled"`
	LastFireAt *time.Time `json:"last_fire_at,omitempty"`
}

// TaskInfo describes one task row in the overview.
type TaskInfo struct {
	ID         int64      `json:"id"`
	ScheduleID *int64     `json:"schedule_id,omitempty"`
	Ticket     *string    `json:"ticket,omitempty"`
	Type       string     `json:"type"`
	Payload    string     `json:"payload"`
	Priority   int        `json:"priority"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	NotBefore  *time.Time `json:"not_before,omitempty"`
	Owner      *string    `json:"owner,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishAt   *time.Time `json:"finish_at,omitempty"`
	Message    *string    `json:"message,omitempty"`
}

// Outcome echoes the result of the last admin action, carried in the
// redirect query string.
type Outcome struct {
	OK      *bool  `json:"ok,omitempty"`
	Type    string `json:"type,omitempty"`
	Payload string `json:"payload,omitempty"`
	CostMs  *int64 `json:"cost_ms,omitempty"`
	Error   string `json:"error,omitempty"`
	Info    string `json:"info,omitempty"`
}

// OverviewResponse is the GET / response body.
type OverviewResponse struct {
	Schedules []ScheduleInfo `json:"schedules"`
	Tasks     []TaskInfo     `json:"tasks"`
	Runners   []string       `json:"runners"`
	Outcome   Outcome        `json:"outcome"`
}
