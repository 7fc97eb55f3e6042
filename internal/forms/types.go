// Package forms holds the intake form definitions and the controller that
// runs a submission through validation, security gating and persistence.
package forms

import (
	"fmt"

	"github.com/dmitrijs2005/civilforms/internal/common"
)

// FormType selects the destination table and rule set of a submission. It
// is also the first segment of every storage path.
type FormType string

const (
	ModelRequest     FormType = "3d-request"
	ModelQuote       FormType = "3d-quote"
	TakeoffRequest   FormType = "takeoff-request"
	TakeoffQuote     FormType = "takeoff-quote"
	ClientIntakeForm FormType = "client-intake"
	CareerForm       FormType = "career-application"
	PricingQuoteForm FormType = "pricing-quote"
)

var tables = map[FormType]string{
	ModelRequest:     "model_requests",
	ModelQuote:       "model_quotes",
	TakeoffRequest:   "takeoff_requests",
	TakeoffQuote:     "takeoff_quotes",
	ClientIntakeForm: "client_intakes",
	CareerForm:       "career_applications",
	PricingQuoteForm: "pricing_quotes",
}

// Table returns the destination table of ft.
func Table(ft FormType) (string, bool) {
	t, ok := tables[ft]
	return t, ok
}

// ParseFormType accepts only known form types.
func ParseFormType(s string) (FormType, error) {
	ft := FormType(s)
	if _, ok := tables[ft]; !ok {
		return "", fmt.Errorf("%w: unknown form type %q", common.ErrorNotFound, s)
	}
	return ft, nil
}

// FormTypes lists every known form type.
func FormTypes() []FormType {
	return []FormType{ModelRequest, ModelQuote, TakeoffRequest, TakeoffQuote, ClientIntakeForm, CareerForm, PricingQuoteForm}
}

// Service is the first choice of the service request wizard.
type Service string

const (
	Service3DModel Service = "3d-model"
	ServiceTakeoff Service = "takeoff"
)

// Intent is the second choice: a quote only or a go-ahead.
type Intent string

const (
	IntentQuote   Intent = "quote"
	IntentProceed Intent = "proceed"
)

// Select is the selection step of the service request wizard.
func Select(service Service, intent Intent) (FormType, error) {
	switch {
	case service == Service3DModel && intent == IntentQuote:
		return ModelQuote, nil
	case service == Service3DModel && intent == IntentProceed:
		return ModelRequest, nil
	case service == ServiceTakeoff && intent == IntentQuote:
		return TakeoffQuote, nil
	case service == ServiceTakeoff && intent == IntentProceed:
		return TakeoffRequest, nil
	}
	return "", fmt.Errorf("%w: unknown service %q or intent %q", common.ErrorValidation, service, intent)
}

// IsModel reports whether ft is on the 3D model branch.
func (ft FormType) IsModel() bool { return ft == ModelRequest || ft == ModelQuote }

// IsTakeoff reports whether ft is on the takeoff branch.
func (ft FormType) IsTakeoff() bool { return ft == TakeoffRequest || ft == TakeoffQuote }
