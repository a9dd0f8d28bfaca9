// Package inputs defines the user-supplied report inputs and renders them into the
// user query and evaluation templates.
package inputs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/prompt-workbench/internal/prompts"
)

const (
	// DefaultCompanyName is used when no company is given.
	DefaultCompanyName = "NOT PROVIDED"
	// DefaultFutureYearOffset is added to the current year when no offset is given.
	DefaultFutureYearOffset = 20

	fieldExternalData = "external_data"
)

// ExternalFields are the free-text data sources. At least one must be non-blank.
var ExternalFields = []string{"google_agent_output", "bard_outputs", "web_content", "url_output", "gnews_output"}

// UserInputSet is the complete set of report inputs.
type UserInputSet struct {
	Industry                string `json:"industry" validate:"required"`
	Region                  string `json:"region" validate:"required"`
	TransformationalJourney string `json:"transformational_journey" validate:"required"`
	ProgramArea             string `json:"program_area" validate:"required"`

	CompanyName       string `json:"company_name,omitempty"`
	FutureYear        int    `json:"future_year,omitempty" validate:"min=1,max=200" jsonschema:"minimum=0,maximum=200"`
	UnrelatedKeywords string `json:"unrelated_keywords,omitempty"`

	GoogleAgentOutput string `json:"google_agent_output,omitempty"`
	BardOutputs       string `json:"bard_outputs,omitempty"`
	WebContent        string `json:"web_content,omitempty"`
	URLOutput         string `json:"url_output,omitempty"`
	GNewsOutput       string `json:"gnews_output,omitempty"`
}

// TemplateData is the typed record substituted into the user query template.
type TemplateData struct {
	CompanyName             string
	Region                  string
	TransformationalJourney string
	Industry                string
	ProgramArea             string
	CurrentYear             int
	FutureYear              int
	UnrelatedKeywords       string
	GoogleAgentOutput       string
	BardOutputs             string
	WebContent              string
	URLOutput               string
	GNewsOutput             string
}

// EvaluationData is the typed record substituted into the evaluation template.
type EvaluationData struct {
	TemplateData
	SystemPromptText   string
	UserQueryText      string
	GeneratedTableText string
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate.RegisterStructValidation(externalDataValidation, UserInputSet{})
	})
	return validate
}

func externalDataValidation(sl validator.StructLevel) {
	u := sl.Current().Interface().(UserInputSet)
	if !u.HasExternalData() {
		sl.ReportError(u.GoogleAgentOutput, fieldExternalData, "ExternalData", "required_one", "")
	}
}

// Load reads a UserInputSet from a JSON file. Unknown fields are rejected.
func Load(path string) (*UserInputSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open inputs file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	var in UserInputSet
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to parse inputs file %s: %w", path, err)
	}
	return &in, nil
}

// HasExternalData reports whether at least one external data field is non-blank.
func (u UserInputSet) HasExternalData() bool {
	for _, v := range u.externalValues() {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func (u UserInputSet) externalValues() []string {
	return []string{u.GoogleAgentOutput, u.BardOutputs, u.WebContent, u.URLOutput, u.GNewsOutput}
}

// WithDefaults returns a copy with optional fields defaulted and short fields trimmed.
// External data is left verbatim.
func (u UserInputSet) WithDefaults() UserInputSet {
	out := u
	out.Industry = strings.TrimSpace(u.Industry)
	out.Region = strings.TrimSpace(u.Region)
	out.TransformationalJourney = strings.TrimSpace(u.TransformationalJourney)
	out.ProgramArea = strings.TrimSpace(u.ProgramArea)
	out.CompanyName = strings.TrimSpace(u.CompanyName)
	out.UnrelatedKeywords = strings.TrimSpace(u.UnrelatedKeywords)

	if out.CompanyName == "" {
		out.CompanyName = DefaultCompanyName
	}
	if out.FutureYear == 0 {
		out.FutureYear = DefaultFutureYearOffset
	}
	return out
}

// Validate checks mandatory fields and the external data requirement.
func (u UserInputSet) Validate() error {
	normalized := u.WithDefaults()
	err := getValidator().Struct(normalized)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "inputs", Message: err.Error()}}}
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "cannot be empty"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "required_one":
		return "at least one external data input must be provided (" + strings.Join(ExternalFields, ", ") + ")"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// TemplateData builds the template record. current_year is now's year; future_year is the
// current year plus the configured offset.
func (u UserInputSet) TemplateData(now time.Time) TemplateData {
	n := u.WithDefaults()
	year := now.Year()
	return TemplateData{
		CompanyName:             n.CompanyName,
		Region:                  n.Region,
		TransformationalJourney: n.TransformationalJourney,
		Industry:                n.Industry,
		ProgramArea:             n.ProgramArea,
		CurrentYear:             year,
		FutureYear:              year + n.FutureYear,
		UnrelatedKeywords:       n.UnrelatedKeywords,
		GoogleAgentOutput:       n.GoogleAgentOutput,
		BardOutputs:             n.BardOutputs,
		WebContent:              n.WebContent,
		URLOutput:               n.URLOutput,
		GNewsOutput:             n.GNewsOutput,
	}
}

// RenderUserQuery validates the inputs and renders the user query text.
func (u UserInputSet) RenderUserQuery(now time.Time) (string, error) {
	if err := u.Validate(); err != nil {
		return "", err
	}
	text, err := prompts.RenderKey(prompts.KeyUserQuery, u.TemplateData(now))
	if err != nil {
		return "", templateError(err)
	}
	return text, nil
}

// RenderEvaluation renders the evaluation instruction for one generated report.
func (u UserInputSet) RenderEvaluation(now time.Time, systemPrompt, userQuery, report string) (string, error) {
	data := EvaluationData{
		TemplateData:       u.TemplateData(now),
		SystemPromptText:   systemPrompt,
		UserQueryText:      userQuery,
		GeneratedTableText: report,
	}
	text, err := prompts.RenderKey(prompts.KeyEvaluation, data)
	if err != nil {
		return "", templateError(err)
	}
	return text, nil
}

// Context returns the non-empty provenance fields stored with saved prompts.
func (u UserInputSet) Context() map[string]string {
	n := u.WithDefaults()
	ctx := map[string]string{}
	for k, v := range map[string]string{
		"industry":                 n.Industry,
		"region":                   n.Region,
		"transformational_journey": n.TransformationalJourney,
		"program_area":             n.ProgramArea,
	} {
		if v != "" {
			ctx[k] = v
		}
	}
	return ctx
}

func templateError(err error) error {
	return &ValidationError{Fields: []FieldError{{Field: "template", Message: err.Error()}}}
}
