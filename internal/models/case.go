package models

import (
	"time"
)

// CaseStatus is the kanban stage of a filing case
type CaseStatus string

const (
	CaseOnboarded     CaseStatus = "onboarded"
	CaseDocumentation CaseStatus = "documentation"
	CaseITRFiling     CaseStatus = "itr-filling"
	CaseBilled        CaseStatus = "billed"
)

// Client categories, used as keys of the required-documents configuration
const (
	CategorySalaried      = "salaried"
	CategorySmallBusiness = "small business"
)

// Document types as sent by the upload form
const (
	DocumentKindFile = "file"
	DocumentKindURL  = "url"
)

// Document is an uploaded file attached to a case. Name doubles as the
// required-document label and is unique within the case.
type Document struct {
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	URL          string             `json:"url,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	Verification VerificationResult `json:"verification"`
}

// Case is a client's filing case (the "file" of the dashboard)
type Case struct {
	ID                 string             `json:"id"`
	ClientID           string             `json:"clientId"`
	ClientName         string             `json:"clientName"`
	Name               string             `json:"name"`
	Category           string             `json:"category"`
	Status             CaseStatus         `json:"status"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	Documents          []Document         `json:"documents"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Client returns the profile used to match identity documents of this case
func (c *Case) Client() ClientProfile {
	return ClientProfile{ID: c.ClientID, Name: c.ClientName}
}

// Document finds a document by name
func (c *Case) Document(name string) (*Document, bool) {
	for i := range c.Documents {
		if c.Documents[i].Name == name {
			return &c.Documents[i], true
		}
	}
	return nil, false
}
