package domain

import "fmt"

// DocType identifies one of the fixed strategy documents.
type DocType string

const (
	MarketResearch          DocType = "market-research"
	AvatarComplete          DocType = "avatar-complete"
	BigIdea                 DocType = "big-idea"
	ValueLadder             DocType = "value-ladder"
	AvatarValidation        DocType = "avatar-validation"
	LandingPageCopy         DocType = "landing-page-copy"
	ImplementationChecklist DocType = "implementation-checklist"
)

// DocConfig is the static description of a document type.
type DocConfig struct {
	Number       int
	Title        string
	Dependencies []DocType
}

var docConfigs = map[DocType]DocConfig{
	MarketResearch: {Number: 3, Title: "Market Research"},
	AvatarComplete: {Number: 4, Title: "Complete Customer Avatar", Dependencies: []DocType{MarketResearch}},
	BigIdea:        {Number: 5, Title: "The Big Idea", Dependencies: []DocType{AvatarComplete}},
	ValueLadder:    {Number: 6, Title: "Value Ladder", Dependencies: []DocType{BigIdea}},
	AvatarValidation: {Number: 7, Title: "Avatar Validation",
		Dependencies: []DocType{MarketResearch, AvatarComplete}},
	LandingPageCopy: {Number: 10, Title: "Landing Page Copy",
		Dependencies: []DocType{AvatarComplete, BigIdea, ValueLadder}},
	ImplementationChecklist: {Number: 14, Title: "Implementation Checklist",
		Dependencies: []DocType{ValueLadder, LandingPageCopy}},
}

// GenerationSequence is the order a full run walks. Every type appears after its dependencies.
var GenerationSequence = []DocType{
	MarketResearch,
	AvatarComplete,
	BigIdea,
	ValueLadder,
	AvatarValidation,
	LandingPageCopy,
	ImplementationChecklist,
}

// Config returns the static configuration of t. It panics on unknown types;
// use ParseDocType for untrusted input.
func (t DocType) Config() DocConfig {
	cfg, ok := docConfigs[t]
	if !ok {
		panic(fmt.Sprintf("unknown doc type %q", string(t)))
	}
	return cfg
}

func (t DocType) Valid() bool {
	_, ok := docConfigs[t]
	return ok
}

func (t DocType) String() string { return string(t) }

// ParseDocType validates s against the catalog.
func ParseDocType(s string) (DocType, error) {
	t := DocType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid document type %q", s)
	}
	return t, nil
}
