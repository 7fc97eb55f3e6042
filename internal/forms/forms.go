package forms

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/pricing"
	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

// Form is one filled-in form. Implementations are pointers to the structs
// below; their string fields are sanitized in place on submit.
type Form interface {
	Type() FormType
	SubmitterEmail() string
	// CompanyName and ProjectFolder pick the storage folders of the
	// form's uploads.
	CompanyName() string
	ProjectFolder() string
}

// normalizer drops values whose gating option is off.
type normalizer interface {
	Normalize()
}

// checker runs rules that struct tags cannot express.
type checker interface {
	Check(manifest []models.Attachment) FieldErrors
}

// New returns an empty form of type ft, ready to be decoded into.
func New(ft FormType) (Form, error) {
	switch {
	case ft.IsModel() || ft.IsTakeoff():
		return &ServiceRequest{Kind: ft}, nil
	case ft == ClientIntakeForm:
		return &ClientIntake{}, nil
	case ft == CareerForm:
		return &CareerApplication{}, nil
	case ft == PricingQuoteForm:
		return &PricingQuote{}, nil
	}
	return nil, fmt.Errorf("%w: unknown form type %q", common.ErrorNotFound, ft)
}

// Contact is shared by the business forms.
type Contact struct {
	Company     string `json:"company" validate:"required,max=200"`
	ContactName string `json:"contact_name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,max=254,email"`
	Phone       string `json:"phone" validate:"omitempty,phone"`
}

func (c *Contact) SubmitterEmail() string { return c.Email }
func (c *Contact) CompanyName() string    { return c.Company }

// ServiceRequest covers the four 3D model and takeoff forms. Model is
// required on the model branch and Takeoff on the takeoff branch; the
// other branch is discarded.
type ServiceRequest struct {
	Kind FormType `json:"-"`
	Contact
	ProjectName    string `json:"project_name" validate:"required,max=200"`
	ProjectAddress string `json:"project_address" validate:"max=300"`
	DueDate        string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes          string `json:"notes" validate:"max=5000"`

	Model   *ModelOptions   `json:"model,omitempty"`
	Takeoff *TakeoffOptions `json:"takeoff,omitempty"`
}

// ModelOptions are the 3D model specific fields.
type ModelOptions struct {
	ProjectType           string  `json:"project_type" validate:"required,oneof=typical-site-model complex-site-model linework-only"`
	Acres                 float64 `json:"acres" validate:"gte=0,lte=100000"`
	Software              string  `json:"software" validate:"max=100"`
	ErosionControl        bool    `json:"erosion_control"`
	ErosionSurfaceDueDate string  `json:"erosion_surface_due_date" validate:"required_if=ErosionControl true,omitempty,datetime=2006-01-02"`
	Utilities             bool    `json:"utilities"`
	AdvancedUtilities     bool    `json:"advanced_utilities"`
	StructureCount        int     `json:"structure_count" validate:"required_if=AdvancedUtilities true,gte=0,lte=10000"`
}

// TakeoffOptions are the quantity takeoff specific fields.
type TakeoffOptions struct {
	Scope             string  `json:"scope" validate:"required,oneof=earthwork paving utilities full"`
	Units             string  `json:"units" validate:"required,oneof=imperial metric"`
	SheetCount        int     `json:"sheet_count" validate:"gte=0,lte=5000"`
	Earthwork         bool    `json:"earthwork"`
	TopsoilDepth      float64 `json:"topsoil_depth" validate:"required_if=Earthwork true,gte=0,lte=100"`
	PavementDepth     float64 `json:"pavement_depth" validate:"required_if=Earthwork true,gte=0,lte=100"`
	ExcavationSupport string  `json:"excavation_support" validate:"max=500"`
}

func (r *ServiceRequest) Type() FormType        { return r.Kind }
func (r *ServiceRequest) ProjectFolder() string { return r.ProjectName }

// Normalize discards the branch that does not apply and every gated value
// whose option is off, so a value typed before its checkbox was cleared
// never reaches the table.
func (r *ServiceRequest) Normalize() {
	if r.Kind.IsModel() {
		r.Takeoff = nil
	} else {
		r.Model = nil
	}
	if m := r.Model; m != nil {
		if !m.ErosionControl {
			m.ErosionSurfaceDueDate = ""
		}
		if !m.AdvancedUtilities {
			m.StructureCount = 0
		}
	}
	if t := r.Takeoff; t != nil && !t.Earthwork {
		t.TopsoilDepth = 0
		t.PavementDepth = 0
	}
}

func (r *ServiceRequest) Check([]models.Attachment) FieldErrors {
	switch {
	case r.Kind.IsModel() && r.Model == nil:
		return FieldErrors{"model": "model details are required"}
	case r.Kind.IsTakeoff() && r.Takeoff == nil:
		return FieldErrors{"takeoff": "takeoff details are required"}
	case !r.Kind.IsModel() && !r.Kind.IsTakeoff():
		return FieldErrors{"form_type": "not a service request"}
	}
	return nil
}

// ClientIntake onboards a new client.
type ClientIntake struct {
	Contact
	Title           string `json:"title" validate:"max=100"`
	Address         string `json:"address" validate:"max=300"`
	Website         string `json:"website" validate:"omitempty,max=300,http_url"`
	Industry        string `json:"industry" validate:"omitempty,oneof=civil land-development construction surveying government other"`
	ServicesWanted  string `json:"services_wanted" validate:"required,max=1000"`
	ProjectsPerYear int    `json:"projects_per_year" validate:"gte=0,lte=10000"`
	Referral        string `json:"referral" validate:"max=200"`
	Notes           string `json:"notes" validate:"max=5000"`
}

func (c *ClientIntake) Type() FormType        { return ClientIntakeForm }
func (c *ClientIntake) ProjectFolder() string { return "" }

// CareerApplication requires at least one uploaded attachment, the resume.
type CareerApplication struct {
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,max=254,email"`
	Phone           string `json:"phone" validate:"required,phone"`
	Position        string `json:"position" validate:"required,max=200"`
	YearsExperience int    `json:"years_experience" validate:"gte=0,lte=70"`
	LinkedIn        string `json:"linkedin" validate:"omitempty,max=300,http_url"`
	CoverLetter     string `json:"cover_letter" validate:"max=5000"`
}

func (a *CareerApplication) Type() FormType         { return CareerForm }
func (a *CareerApplication) SubmitterEmail() string { return a.Email }
func (a *CareerApplication) CompanyName() string {
	return strings.TrimSpace(a.LastName + " " + a.FirstName)
}
func (a *CareerApplication) ProjectFolder() string { return a.Position }

func (a *CareerApplication) Check(manifest []models.Attachment) FieldErrors {
	if len(manifest) == 0 {
		return FieldErrors{"resume": "resume is required"}
	}
	return nil
}

// PricingQuote stores a calculator result. Breakdown is computed on submit
// and never taken from the client.
type PricingQuote struct {
	Contact
	ProjectName string             `json:"project_name" validate:"max=200"`
	Pricing     pricing.Input      `json:"pricing"`
	Breakdown   *pricing.Breakdown `json:"breakdown,omitempty"`
}

func (q *PricingQuote) Type() FormType        { return PricingQuoteForm }
func (q *PricingQuote) ProjectFolder() string { return q.ProjectName }

func (q *PricingQuote) Normalize() {
	q.Breakdown = nil
	if !q.Pricing.AdvancedUtilities {
		q.Pricing.Structures = 0
	}
}

func (q *PricingQuote) Check([]models.Attachment) FieldErrors {
	b, err := pricing.Calculate(q.Pricing)
	if err != nil {
		return FieldErrors{"pricing": strings.TrimPrefix(err.Error(), common.ErrorValidation.Error()+": ")}
	}
	q.Breakdown = &b
	return nil
}
