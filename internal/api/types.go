// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import "time"

// Member is a user attached to a project.
type Member struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
}

// Project is the slice of a project the chat layer needs: identity plus
// the membership used to derive conversation partners.
type Project struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Supervisor  Member    `json:"supervisor"`
	Students    []Member  `json:"students"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Members returns every member of the project, supervisor first.
func (p *Project) Members() []Member {
	out := make([]Member, 0, len(p.Students)+1)
	if p.Supervisor.Email != "" {
		out = append(out, p.Supervisor)
	}
	return append(out, p.Students...)
}

// Document is the stored-file record returned by the document service.
// URL is durable and safe to embed in a chat message attachment.
type Document struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	UploadedBy  string    `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// CreateNotificationRequest asks the server to create and fan out a
// notification through the notification hub.
type CreateNotificationRequest struct {
	UserEmail string `json:"userEmail"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
	Priority  string `json:"priority,omitempty"`
}
