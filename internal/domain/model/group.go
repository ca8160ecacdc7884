package model

import "time"

// Group is a named set of endpoints pushed together.
type Group struct {
	ID          string         `json:"id"          db:"id"`
	UserID      string         `json:"userId"      db:"user_id"`
	Name        string         `json:"name"        db:"name"`
	Status      EndpointStatus `json:"status"      db:"status"`
	EndpointIDs []string       `json:"endpointIds"`
	CreatedAt   time.Time      `json:"createdAt"   db:"created_at"`
}

// GroupDetail is the per-endpoint outcome inside a synchronous group push.
type GroupDetail struct {
	EndpointID   string     `json:"endpointId"`
	EndpointName string     `json:"endpoint,omitempty"`
	RequestID    string     `json:"requestId"`
	Status       PushStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
}

// GroupResult aggregates a synchronous group push.
type GroupResult struct {
	Status       string        `json:"status"`
	Message      string        `json:"message"`
	GroupID      string        `json:"groupId"`
	GroupName    string        `json:"groupName"`
	Total        int           `json:"total"`
	SuccessCount int           `json:"successCount"`
	FailedCount  int           `json:"failedCount"`
	Details      []GroupDetail `json:"details"`
}

// GroupAccepted acknowledges an asynchronous group push.
type GroupAccepted struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
	Total     int    `json:"total"`
}
