package models

// PersonCriteria filters persons. NationalID matches exactly after
// normalisation; Name and Mobile match case-insensitive substrings. Set fields
// are combined with AND.
type PersonCriteria struct {
	NationalID string
	Name       string
	Mobile     string
}

func (c PersonCriteria) IsEmpty() bool {
	return c.NationalID == "" && c.Name == "" && c.Mobile == ""
}

// ClientCriteria filters clients. TaxID, GovClientKey and
// VehicleRegistration match exactly after normalisation; Name matches a
// case-insensitive substring of the client or organisation name.
type ClientCriteria struct {
	TaxID               string
	GovClientKey        string
	VehicleRegistration string
	Name                string
}

func (c ClientCriteria) IsEmpty() bool {
	return c.TaxID == "" && c.GovClientKey == "" && c.VehicleRegistration == "" && c.Name == ""
}

// EmploymentView is an employment with its dealer's display name.
type EmploymentView struct {
	*Employment
	DealerName string           `json:"dealer_name"`
	Separation *SeparationEvent `json:"separation,omitempty"`
}

// PersonRecord is a person with their full employment history, newest first.
type PersonRecord struct {
	*Person
	Employments []EmploymentView `json:"employments"`
}

// LinkView is a client link with its dealer's display name.
type LinkView struct {
	*Link
	DealerName string `json:"dealer_name"`
}

// ClientRecord is a client with its vehicles and current dealer.
type ClientRecord struct {
	*Client
	Vehicles   []*Vehicle `json:"vehicles"`
	ActiveLink *LinkView  `json:"active_link,omitempty"`
}

// EmployeeListing is one row of a dealer's employee dashboard.
type EmployeeListing struct {
	Person     *Person     `json:"person"`
	Employment *Employment `json:"employment"`
}

// ClientListing is one row of a dealer's client dashboard.
type ClientListing struct {
	Client   *Client    `json:"client"`
	Link     *Link      `json:"link"`
	Vehicles []*Vehicle `json:"vehicles"`
}

// GlobalSearchResult groups matches across persons and clients.
type GlobalSearchResult struct {
	Persons []*PersonRecord `json:"persons"`
	Clients []*ClientRecord `json:"clients"`
}

// HomeMetrics are the headline counts shown on the portal landing page.
type HomeMetrics struct {
	Dealers         int `json:"dealers"`
	ActiveEmployees int `json:"active_employees"`
	ActiveClients   int `json:"active_clients"`
	Vehicles        int `json:"vehicles"`
}
