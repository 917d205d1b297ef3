package models

import (
	"fmt"
	"strings"
	"time"
)

// OwnerKind distinguishes the two kinds of entity whose recognition is tracked.
type OwnerKind string

const (
	OwnerOrganization OwnerKind = "organization"
	OwnerCouncil      OwnerKind = "council"
)

// ParseOwnerKind accepts the singular or plural path segment ("organizations", "council", ...).
func ParseOwnerKind(s string) (OwnerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "organization", "organizations", "org", "orgs":
		return OwnerOrganization, nil
	case "council", "councils":
		return OwnerCouncil, nil
	}
	return "", fmt.Errorf("unknown owner kind %q", s)
}

// LifecycleStage decides which document types an owner must have approved.
type LifecycleStage string

const (
	StageNew         LifecycleStage = "new"
	StageEstablished LifecycleStage = "established"
)

func (s LifecycleStage) Valid() bool {
	return s == StageNew || s == StageEstablished
}

// RecognitionStatus is cached on the owner row and only ever written by the recompute path.
type RecognitionStatus string

const (
	Unrecognized RecognitionStatus = "unrecognized"
	Recognized   RecognitionStatus = "recognized"
)

// OwnerRef is the tagged Organization(id) | Council(id) reference resolved at the HTTP boundary.
type OwnerRef struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

func Organization(id string) OwnerRef { return OwnerRef{Kind: OwnerOrganization, ID: id} }
func Council(id string) OwnerRef      { return OwnerRef{Kind: OwnerCouncil, ID: id} }

func (r OwnerRef) IsZero() bool { return r.ID == "" }

func (r OwnerRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Owner is an organization or a council
type Owner struct {
	ID                   string            `json:"id" db:"id"`
	Kind                 OwnerKind         `json:"kind" db:"kind"`
	Name                 string            `json:"name" db:"name"`
	LifecycleStage       LifecycleStage    `json:"lifecycle_stage" db:"lifecycle_stage"`
	RecognitionStatus    RecognitionStatus `json:"recognition_status" db:"recognition_status"`
	RecognitionUpdatedAt *time.Time        `json:"recognition_updated_at,omitempty" db:"recognition_updated_at"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

func (o *Owner) Ref() OwnerRef {
	return OwnerRef{Kind: o.Kind, ID: o.ID}
}
