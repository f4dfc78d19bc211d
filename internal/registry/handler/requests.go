package handler

import (
	"strings"

	"unionregistry/internal/registry/models"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/email"
)

// RegisterEmployeeRequest is the body of POST /employees.
type RegisterEmployeeRequest struct {
	NationalID  string `json:"nationalId"`
	DealerID    string `json:"dealerId"`
	Name        string `json:"name"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	DateOfBirth string `json:"dateOfBirth"`
	JoinDate    string `json:"joinDate"`
}

func (r *RegisterEmployeeRequest) Validate() error {
	if strings.TrimSpace(r.NationalID) == "" {
		return dErrors.New(dErrors.CodeValidation, "nationalId is required")
	}
	if strings.TrimSpace(r.DealerID) == "" {
		return dErrors.New(dErrors.CodeValidation, "dealerId is required")
	}
	return normalizeEmail(&r.Email)
}

func (r *RegisterEmployeeRequest) toCommand() (models.RegisterEmployee, error) {
	dealerID, err := id.ParseDealerID(r.DealerID)
	if err != nil {
		return models.RegisterEmployee{}, err
	}
	joinDate, err := models.ParseDay(r.JoinDate, "joinDate")
	if err != nil {
		return models.RegisterEmployee{}, err
	}
	dob, err := models.ParseDay(r.DateOfBirth, "dateOfBirth")
	if err != nil {
		return models.RegisterEmployee{}, err
	}
	cmd := models.RegisterEmployee{
		NationalID: r.NationalID,
		DealerID:   dealerID,
		JoinDate:   joinDate,
		Person: models.PersonDetails{
			Name:    r.Name,
			Mobile:  r.Mobile,
			Email:   r.Email,
			Address: r.Address,
		},
	}
	if !dob.IsZero() {
		cmd.Person.DateOfBirth = &dob
	}
	return cmd, nil
}

// EndEmploymentRequest is the body of PATCH /employments/{id}/end.
type EndEmploymentRequest struct {
	SeparationDate string `json:"separationDate"`
	SeparationType string `json:"separationType"`
	Remarks        string `json:"remarks"`
}

func (r *EndEmploymentRequest) Validate() error {
	if strings.TrimSpace(r.SeparationDate) == "" {
		return dErrors.New(dErrors.CodeValidation, "separationDate is required")
	}
	r.SeparationType = strings.ToUpper(strings.TrimSpace(r.SeparationType))
	if !models.SeparationType(r.SeparationType).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "separationType must be one of RESIGNED, PERFORMANCE, CONDUCT, REDUNDANCY, OTHER")
	}
	return nil
}

func (r *EndEmploymentRequest) toCommand(employmentID id.EmploymentID) (models.EndEmployment, error) {
	on, err := models.ParseDay(r.SeparationDate, "separationDate")
	if err != nil {
		return models.EndEmployment{}, err
	}
	return models.EndEmployment{
		EmploymentID:   employmentID,
		SeparationDate: on,
		SeparationType: models.SeparationType(r.SeparationType),
		Remarks:        r.Remarks,
	}, nil
}

// VehicleRequest describes one vehicle in a client registration or
// POST /clients/{id}/vehicles.
type VehicleRequest struct {
	Registration string `json:"registrationNumber"`
	FuelType     string `json:"fuelType"`
	Notes        string `json:"notes"`
}

func (r *VehicleRequest) Validate() error {
	if strings.TrimSpace(r.Registration) == "" {
		return dErrors.New(dErrors.CodeValidation, "registrationNumber is required")
	}
	return nil
}

func (r VehicleRequest) toInput() models.VehicleInput {
	return models.VehicleInput{Registration: r.Registration, FuelType: r.FuelType, Notes: r.Notes}
}

// RegisterClientRequest is the body of POST /clients.
type RegisterClientRequest struct {
	ClientType    string           `json:"clientType"`
	TaxID         string           `json:"taxId"`
	OrgName       string           `json:"orgName"`
	OfficeCode    string           `json:"officeCode"`
	Reference     string           `json:"referenceLetterOrEmail"`
	Name          string           `json:"name"`
	DealerID      string           `json:"dealerId"`
	ContactPerson string           `json:"contactPerson"`
	Mobile        string           `json:"mobile"`
	Email         string           `json:"email"`
	Address       string           `json:"address"`
	GSTIN         string           `json:"gstin"`
	OnboardedOn   string           `json:"onboardingDate"`
	Vehicles      []VehicleRequest `json:"vehicles"`
}

func (r *RegisterClientRequest) Validate() error {
	r.ClientType = strings.ToUpper(strings.TrimSpace(r.ClientType))
	if r.ClientType == "" {
		r.ClientType = string(models.ClientPrivate)
	}
	if !models.ClientType(r.ClientType).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "clientType must be PRIVATE or GOVERNMENT")
	}
	if strings.TrimSpace(r.DealerID) == "" {
		return dErrors.New(dErrors.CodeValidation, "dealerId is required")
	}
	if err := normalizeEmail(&r.Email); err != nil {
		return err
	}
	for i := range r.Vehicles {
		if err := r.Vehicles[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func normalizeEmail(addr *string) error {
	v, ok := email.Normalize(*addr)
	if !ok {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	*addr = v
	return nil
}

func (r *RegisterClientRequest) toCommand() (models.RegisterClient, error) {
	dealerID, err := id.ParseDealerID(r.DealerID)
	if err != nil {
		return models.RegisterClient{}, err
	}
	onboardedOn, err := models.ParseDay(r.OnboardedOn, "onboardingDate")
	if err != nil {
		return models.RegisterClient{}, err
	}
	vehicles := make([]models.VehicleInput, 0, len(r.Vehicles))
	for _, v := range r.Vehicles {
		vehicles = append(vehicles, v.toInput())
	}
	return models.RegisterClient{
		Type:       models.ClientType(r.ClientType),
		TaxID:      r.TaxID,
		OrgName:    r.OrgName,
		OfficeCode: r.OfficeCode,
		Reference:  r.Reference,
		Name:       r.Name,
		DealerID:   dealerID,
		Contact: models.ClientContact{
			ContactPerson: r.ContactPerson,
			Mobile:        r.Mobile,
			Email:         r.Email,
			Address:       r.Address,
			GSTIN:         r.GSTIN,
		},
		Vehicles:    vehicles,
		OnboardedOn: onboardedOn,
	}, nil
}

// OffboardClientRequest is the body of POST /clients/{id}/offboard.
type OffboardClientRequest struct {
	Date   string `json:"offboardingDate"`
	Reason string `json:"reason"`
}

func (r *OffboardClientRequest) Validate() error {
	if strings.TrimSpace(r.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// ConflictResponse is the stable payload for an affiliation conflict.
type ConflictResponse struct {
	Code       models.ConflictCode `json:"code"`
	Message    string              `json:"message"`
	DealerName string              `json:"dealerName"`
	Since      string              `json:"since"`
}

func conflictResponse(c *models.Conflict) ConflictResponse {
	return ConflictResponse{
		Code:       c.Code,
		Message:    c.Message,
		DealerName: c.DealerName,
		Since:      c.SinceDate(),
	}
}

// EmployeeResponse is returned by POST /employees.
type EmployeeResponse struct {
	Person        *models.Person     `json:"person"`
	Employment    *models.Employment `json:"employment"`
	AlreadyActive bool               `json:"already_active"`
}

// ClientResponse is returned by POST /clients.
type ClientResponse struct {
	Client     *models.Client    `json:"client"`
	Link       *models.Link      `json:"link"`
	Vehicles   []*models.Vehicle `json:"vehicles"`
	NewClient  bool              `json:"new_client"`
	LinkReused bool              `json:"link_reused"`
}
