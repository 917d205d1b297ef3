package review

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"recognition-review-backend/pkg/models"
)

// Owner-level document types.
const (
	DocLetterOfIntent         models.DocumentType = "letter_of_intent"
	DocConstitutionAndBylaws  models.DocumentType = "constitution_and_bylaws"
	DocAdviserConsent         models.DocumentType = "adviser_consent"
	DocOfficerList            models.DocumentType = "officer_list"
	DocMemberList             models.DocumentType = "member_list"
	DocMemberOrganizationList models.DocumentType = "member_organization_list"
	DocOfficerBioData         models.DocumentType = "officer_bio_data"
	DocOrganizationalChart    models.DocumentType = "organizational_chart"
	DocActionPlan             models.DocumentType = "action_plan"
	DocBudgetProposal         models.DocumentType = "budget_proposal"
	DocOfficerClearance       models.DocumentType = "officer_clearance"
	DocPledgeOfCompliance     models.DocumentType = "pledge_of_compliance"

	// retrospective documents, required once an owner is established
	DocAccomplishmentReport models.DocumentType = "accomplishment_report"
	DocPreviousActionPlan   models.DocumentType = "previous_action_plan"
	DocFinancialReport      models.DocumentType = "financial_report"
)

var documentLabels = map[models.DocumentType]string{
	DocLetterOfIntent:         "Letter of Intent",
	DocConstitutionAndBylaws:  "Constitution and By-Laws",
	DocAdviserConsent:         "Adviser's Letter of Consent",
	DocOfficerList:            "List of Officers",
	DocMemberList:             "List of Members",
	DocMemberOrganizationList: "List of Member Organizations",
	DocOfficerBioData:         "Officers' Bio-Data",
	DocOrganizationalChart:    "Organizational Chart",
	DocActionPlan:             "Action Plan / Calendar of Activities",
	DocBudgetProposal:         "Budget Proposal",
	DocOfficerClearance:       "Officers' Clearance",
	DocPledgeOfCompliance:     "Pledge of Compliance",
	DocAccomplishmentReport:   "Accomplishment Report",
	DocPreviousActionPlan:     "Previous Action Plan",
	DocFinancialReport:        "Financial Report",
}

// catalogEntry holds the base set and the retrospective additions for one owner kind.
type catalogEntry struct {
	base       []models.DocumentType
	additional []models.DocumentType
}

// Catalog maps (owner kind, lifecycle stage) to the ordered set of required document types.
// The established set is always built as base + additional, so it contains the new set.
type Catalog struct {
	entries map[models.OwnerKind]catalogEntry
	labels  map[models.DocumentType]string
}

// DefaultCatalog returns the built-in requirements.
func DefaultCatalog() *Catalog {
	retrospective := []models.DocumentType{DocAccomplishmentReport, DocPreviousActionPlan, DocFinancialReport}
	labels := make(map[models.DocumentType]string, len(documentLabels))
	for t, l := range documentLabels {
		labels[t] = l
	}
	return &Catalog{labels: labels, entries: map[models.OwnerKind]catalogEntry{
		models.OwnerOrganization: {
			base: []models.DocumentType{
				DocLetterOfIntent, DocConstitutionAndBylaws, DocAdviserConsent, DocOfficerList,
				DocMemberList, DocOfficerBioData, DocOrganizationalChart, DocActionPlan,
				DocBudgetProposal, DocOfficerClearance, DocPledgeOfCompliance,
			},
			additional: retrospective,
		},
		models.OwnerCouncil: {
			base: []models.DocumentType{
				DocLetterOfIntent, DocConstitutionAndBylaws, DocAdviserConsent, DocOfficerList,
				DocMemberOrganizationList, DocOfficerBioData, DocOrganizationalChart, DocActionPlan,
				DocBudgetProposal, DocOfficerClearance, DocPledgeOfCompliance,
			},
			additional: retrospective,
		},
	}}
}

// Required returns the ordered set of types that must be approved for recognition.
// The returned slice is a copy.
func (c *Catalog) Required(kind models.OwnerKind, stage models.LifecycleStage) []models.DocumentType {
	e, ok := c.entries[kind]
	if !ok {
		return nil
	}
	out := make([]models.DocumentType, 0, len(e.base)+len(e.additional))
	out = append(out, e.base...)
	if stage == models.StageEstablished {
		out = append(out, e.additional...)
	}
	return out
}

// Label returns a display label for a document type, falling back to the raw identifier.
func (c *Catalog) Label(t models.DocumentType) string {
	if l, ok := c.labels[t]; ok {
		return l
	}
	return string(t)
}

// Requires reports whether t is in the required set for (kind, stage).
func (c *Catalog) Requires(kind models.OwnerKind, stage models.LifecycleStage, t models.DocumentType) bool {
	for _, r := range c.Required(kind, stage) {
		if r == t {
			return true
		}
	}
	return false
}

// catalogFile is the YAML layout accepted by LoadCatalog:
//
//	organization:
//	  new: [letter_of_intent, ...]
//	  established_additional: [accomplishment_report, ...]
type catalogFile map[string]struct {
	New                   []string          `yaml:"new"`
	EstablishedAdditional []string          `yaml:"established_additional"`
	Labels                map[string]string `yaml:"labels"`
}

// LoadCatalog reads a YAML catalog override. Kinds missing from the file keep their defaults.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog parses YAML catalog content on top of the defaults.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	cat := DefaultCatalog()
	for k, v := range file {
		kind, err := models.ParseOwnerKind(k)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if len(v.New) == 0 {
			return nil, fmt.Errorf("catalog: %s has an empty new-stage set", kind)
		}
		entry := catalogEntry{}
		seen := map[models.DocumentType]bool{}
		for _, s := range v.New {
			t := models.DocumentType(s)
			if seen[t] {
				return nil, fmt.Errorf("catalog: %s lists %q twice", kind, s)
			}
			seen[t] = true
			entry.base = append(entry.base, t)
		}
		for _, s := range v.EstablishedAdditional {
			t := models.DocumentType(s)
			if seen[t] {
				return nil, fmt.Errorf("catalog: %s lists %q twice", kind, s)
			}
			seen[t] = true
			entry.additional = append(entry.additional, t)
		}
		for t, label := range v.Labels {
			cat.labels[models.DocumentType(t)] = label
		}
		cat.entries[kind] = entry
	}
	return cat, nil
}
