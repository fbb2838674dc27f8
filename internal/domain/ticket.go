package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusProcessing TicketStatus = "processing"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
	TicketStatusReopened   TicketStatus = "reopened"
)

// TicketStatuses lists every status in declaration order.
var TicketStatuses = []TicketStatus{
	TicketStatusPending,
	TicketStatusProcessing,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusReopened,
}

// ActiveTicketStatuses are the states that count towards an agent's workload.
var ActiveTicketStatuses = []TicketStatus{
	TicketStatusPending,
	TicketStatusProcessing,
	TicketStatusReopened,
}

// IsActive reports whether the status counts as open work.
func (s TicketStatus) IsActive() bool {
	for _, active := range ActiveTicketStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// ParseTicketStatus maps any casing of a status onto its canonical value.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	candidate := TicketStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range TicketStatuses {
		if candidate == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown ticket status %q", raw)
}

// TicketPriority enumerates urgency levels, ordered low to urgent.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// TicketPriorities is the escalation order.
var TicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityUrgent,
}

var priorityAliases = map[string]TicketPriority{
	"low":    TicketPriorityLow,
	"medium": TicketPriorityMedium,
	"high":   TicketPriorityHigh,
	"urgent": TicketPriorityUrgent,
	"低":      TicketPriorityLow,
	"中":      TicketPriorityMedium,
	"高":      TicketPriorityHigh,
	"紧急":     TicketPriorityUrgent,
}

// ParseTicketPriority maps any casing or alias of a priority onto its canonical value.
func ParseTicketPriority(raw string) (TicketPriority, error) {
	if p, ok := priorityAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown ticket priority %q", raw)
}

// Rank returns the position of the priority in the escalation order, or -1.
func (p TicketPriority) Rank() int {
	for i, candidate := range TicketPriorities {
		if p == candidate {
			return i
		}
	}
	return -1
}

// Next returns the next higher priority; urgent stays urgent.
func (p TicketPriority) Next() TicketPriority {
	rank := p.Rank()
	if rank < 0 || rank == len(TicketPriorities)-1 {
		return p
	}
	return TicketPriorities[rank+1]
}

// TicketSource records how a ticket entered the system.
type TicketSource string

const (
	TicketSourceEmployeeCreated TicketSource = "employee_created"
	TicketSourceTransferred     TicketSource = "transferred"
)

// ParseTicketSource maps any casing or alias of a source onto its canonical value.
func ParseTicketSource(raw string) (TicketSource, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "employee_created", "employee":
		return TicketSourceEmployeeCreated, nil
	case "transferred":
		return TicketSourceTransferred, nil
	}
	return "", fmt.Errorf("unknown ticket source %q", raw)
}

// Ticket is the aggregate for helpdesk requests.
type Ticket struct {
	ID              string
	Title           string
	Content         string
	Status          TicketStatus
	Priority        TicketPriority
	Source          TicketSource
	UserID          string
	AssignedAgentID *string
	Category        string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      *time.Time
}

// HasCategory reports whether the ticket was classified.
func (t *Ticket) HasCategory() bool {
	return t.Category != ""
}

// TicketResponse is an agent reply appended to a ticket.
type TicketResponse struct {
	ID        string
	TicketID  string
	AgentID   string
	Content   string
	CreatedAt time.Time
}
