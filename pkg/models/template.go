package models

import "time"

// WorkflowTemplate is a reusable graph snapshot. Instantiating a template
// creates a fresh draft definition in a new workflow group.
type WorkflowTemplate struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"     validate:"required,min=3"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Nodes       []*Node       `json:"nodes"`
	Connections []*Connection `json:"connections"`
	CreatedAt   time.Time     `json:"created_at"`
}
