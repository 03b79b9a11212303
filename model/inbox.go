package model

import "time"

// Subscriber is a newsletter signup captured from the site
type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ContactMessage is a contact form entry
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
