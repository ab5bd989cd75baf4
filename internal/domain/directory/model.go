package directory

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by repository lookups of a single record.
var ErrNotFound = errors.New("not found")

type Clinic struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	District string `json:"district"`
	Address  string `json:"address"`
}

// Direction is a medical specialty.
type Direction struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Doctor struct {
	ID              int64       `json:"id"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	MiddleName      *string     `json:"middle_name"`
	BioText         *string     `json:"bio_text"`
	PhotoPath       *string     `json:"photo_path"`
	DurationMinutes int         `json:"duration_minutes"`
	BufferMinutes   int         `json:"buffer_minutes"`
	Directions      []Direction `json:"directions"`
}

// DisplayName renders "last first [middle]".
func (d *Doctor) DisplayName() string {
	return DoctorName(d.LastName, d.FirstName, d.MiddleName)
}

func DoctorName(last, first string, middle *string) string {
	parts := []string{last, first}
	if middle != nil && *middle != "" {
		parts = append(parts, *middle)
	}
	return strings.Join(parts, " ")
}

// Service is a bookable offering of a clinic that is not tied to a doctor.
type Service struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	ClinicID        int64  `json:"clinic_id"`
	ClinicName      string `json:"clinic_name"`
	DurationMinutes int    `json:"duration_minutes"`
	BufferMinutes   int    `json:"buffer_minutes"`
}

// DoctorFilter narrows ListDoctors. Zero values mean "any".
type DoctorFilter struct {
	DirectionID int64  `query:"direction_id" validate:"gte=0"`
	Name        string `query:"name" validate:"max=100"`
}

// ServiceFilter narrows ListServices. Zero values mean "any".
type ServiceFilter struct {
	ClinicID int64  `query:"clinic_id" validate:"gte=0"`
	Name     string `query:"name" validate:"max=100"`
}

// LikePattern builds a case-insensitive substring pattern for ILIKE with the
// wildcard characters of s escaped.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(s)) + "%"
}
