// Package analysis scores per-image vision analyses of a single item and fuses
// them into one canonical listing.
package analysis

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNoAnalyses is returned when scoring or fusing is attempted on an empty input.
var ErrNoAnalyses = errors.New("no analyses to process")

// Dimensions holds free-form measurements as returned by the vision service.
type Dimensions struct {
	Length string `json:"length,omitempty"`
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
}

// AnalysisResult is the vision service output for one image.
type AnalysisResult struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Brand       string   `json:"brand,omitempty"`

	Colors      []string `json:"colors,omitempty"`
	Features    []string `json:"features,omitempty"`
	Accessories []string `json:"accessories,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	VehicleBrand             string `json:"vehicle_brand,omitempty"`
	VehicleYear              string `json:"vehicle_year,omitempty"`
	VehicleMileage           string `json:"vehicle_mileage,omitempty"`
	VehicleFuelType          string `json:"vehicle_fuel_type,omitempty"`
	VehicleColor             string `json:"vehicle_color,omitempty"`
	VehiclePower             string `json:"vehicle_power,omitempty"`
	VehicleFirstRegistration string `json:"vehicle_first_registration,omitempty"`
	VehicleInspectionDue     string `json:"vehicle_inspection_due,omitempty"`

	Dimensions   *Dimensions `json:"dimensions,omitempty"`
	Size         string      `json:"size,omitempty"`
	Weight       string      `json:"weight,omitempty"`
	Material     string      `json:"material,omitempty"`
	Style        string      `json:"style,omitempty"`
	SerialNumber string      `json:"serialNumber,omitempty"`
}

// PriceValue returns the price, or 0 if it is absent.
func (a *AnalysisResult) PriceValue() float64 {
	if a.Price == nil {
		return 0
	}
	return *a.Price
}

// Clone returns a deep copy.
func (a *AnalysisResult) Clone() AnalysisResult {
	c := *a
	if a.Price != nil {
		p := *a.Price
		c.Price = &p
	}
	c.Colors = slices.Clone(a.Colors)
	c.Features = slices.Clone(a.Features)
	c.Accessories = slices.Clone(a.Accessories)
	c.Tags = slices.Clone(a.Tags)
	if a.Dimensions != nil {
		d := *a.Dimensions
		c.Dimensions = &d
	}
	return c
}

// ValidationError reports a required field missing from an analysis.
type ValidationError struct {
	Index int
	Field string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("analysis is missing required field %q", e.Field)
	}
	return fmt.Sprintf("analysis %d is missing required field %q", e.Index, e.Field)
}

// Validate checks the fields the scoring formula depends on. An empty title or
// description is valid; a missing price is not.
func Validate(a *AnalysisResult) error {
	return validateAt(a, -1)
}

func validateAt(a *AnalysisResult, index int) error {
	switch {
	case a == nil:
		return &ValidationError{Index: index, Field: "title"}
	case a.Price == nil:
		return &ValidationError{Index: index, Field: "price"}
	}
	return nil
}

// vehicleField gives uniform access to one vehicle_* scalar.
type vehicleField struct {
	name string
	ptr  func(*AnalysisResult) *string
}

var vehicleFields = []vehicleField{
	{"vehicle_brand", func(a *AnalysisResult) *string { return &a.VehicleBrand }},
	{"vehicle_year", func(a *AnalysisResult) *string { return &a.VehicleYear }},
	{"vehicle_mileage", func(a *AnalysisResult) *string { return &a.VehicleMileage }},
	{"vehicle_fuel_type", func(a *AnalysisResult) *string { return &a.VehicleFuelType }},
	{"vehicle_color", func(a *AnalysisResult) *string { return &a.VehicleColor }},
	{"vehicle_power", func(a *AnalysisResult) *string { return &a.VehiclePower }},
	{"vehicle_first_registration", func(a *AnalysisResult) *string { return &a.VehicleFirstRegistration }},
	{"vehicle_inspection_due", func(a *AnalysisResult) *string { return &a.VehicleInspectionDue }},
}

// listField gives uniform access to one set-valued field.
type listField struct {
	name string
	ptr  func(*AnalysisResult) *[]string
}

var listFields = []listField{
	{"features", func(a *AnalysisResult) *[]string { return &a.Features }},
	{"colors", func(a *AnalysisResult) *[]string { return &a.Colors }},
	{"accessories", func(a *AnalysisResult) *[]string { return &a.Accessories }},
	{"tags", func(a *AnalysisResult) *[]string { return &a.Tags }},
}
