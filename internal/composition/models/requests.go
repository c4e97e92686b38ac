package models

import (
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
)

// MaxCustomDataBytes bounds a binding's custom data document.
const MaxCustomDataBytes = 256 << 10

// AddBindingRequest places a definition on a site. Visible defaults to true
// and a nil Position appends.
type AddBindingRequest struct {
	DefinitionID id.DefinitionID `json:"definition_id"`
	CustomData   Document        `json:"custom_data"`
	Visible      *bool           `json:"visible,omitempty"`
	Position     *int            `json:"position,omitempty"`
}

func (r *AddBindingRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.DefinitionID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "definition_id is required")
	}
	if err := validateCustomData(r.CustomData); err != nil {
		return err
	}
	if r.Position != nil && *r.Position < 0 {
		return dErrors.New(dErrors.CodeValidation, "position must not be negative")
	}
	return nil
}

// IsVisible resolves the visibility default.
func (r *AddBindingRequest) IsVisible() bool {
	return r.Visible == nil || *r.Visible
}

// UpdateBindingRequest replaces only the fields that are set.
type UpdateBindingRequest struct {
	CustomData *Document `json:"custom_data,omitempty"`
	Visible    *bool     `json:"visible,omitempty"`
	Position   *int      `json:"position,omitempty"`
}

func (r *UpdateBindingRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.CustomData != nil {
		if err := validateCustomData(*r.CustomData); err != nil {
			return err
		}
	}
	if r.Position != nil && *r.Position < 0 {
		return dErrors.New(dErrors.CodeValidation, "position must not be negative")
	}
	return nil
}

// ReorderRequest is the complete new order of a site's bindings.
type ReorderRequest []id.BindingID

func (r *ReorderRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

func validateCustomData(d Document) error {
	if len(d) > MaxCustomDataBytes {
		return dErrors.New(dErrors.CodeValidation, "custom_data is too large")
	}
	if !d.Valid() {
		return dErrors.New(dErrors.CodeValidation, "custom_data must be valid JSON")
	}
	return nil
}
