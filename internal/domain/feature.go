// Package domain defines the core interfaces and types for Riskcore.
package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingSection indicates a required FeatureVector sub-record is absent.
	ErrMissingSection = errors.New("missing feature section")

	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("invalid input")
)

// FeatureVector is the raw behavioral/trip/device/network snapshot a caller
// submits for scoring. It is immutable once constructed and owned exclusively
// by the scoring request.
type FeatureVector struct {
	TenantID  string    `json:"tenantId"`
	TripID    string    `json:"tripId"`
	SubjectID string    `json:"subjectId"` // rider or driver account under evaluation
	Timestamp time.Time `json:"timestamp"`

	User     *UserFeatures     `json:"user"`
	Trip     *TripFeatures     `json:"trip"`
	Location *LocationFeatures `json:"location"`
	Payment  *PaymentFeatures  `json:"payment"`
	Device   *DeviceFeatures   `json:"device"`
	Network  *NetworkFeatures  `json:"network"`
}

// UserFeatures describes the account under evaluation.
type UserFeatures struct {
	AccountAge          float64 `json:"accountAge"` // days
	TotalRides          float64 `json:"totalRides"`
	CancelationRate     float64 `json:"cancelationRate"`
	RatingAverage       float64 `json:"ratingAverage"`
	DeviceChanges       float64 `json:"deviceChanges"`
	LocationConsistency float64 `json:"locationConsistency"`
}

// TripFeatures describes the trip being scored.
type TripFeatures struct {
	Distance       float64 `json:"distance"` // km
	Duration       float64 `json:"duration"` // minutes
	Price          float64 `json:"price"`
	TimeOfDay      int     `json:"timeOfDay"` // 0-23
	DayOfWeek      int     `json:"dayOfWeek"` // 0-6, Sunday = 0
	IsWeekend      bool    `json:"isWeekend"`
	IsHoliday      bool    `json:"isHoliday"`
	RouteDeviation float64 `json:"routeDeviation"` // [0,1]
	SpeedAnomaly   float64 `json:"speedAnomaly"`   // [0,1]
}

// LocationFeatures describes the geospatial context of the trip.
type LocationFeatures struct {
	PickupRegion     string  `json:"pickupRegion"`
	DropoffRegion    string  `json:"dropoffRegion"`
	PickupRiskScore  float64 `json:"pickupRiskScore"`  // [0,1]
	DropoffRiskScore float64 `json:"dropoffRiskScore"` // [0,1]
	GPSAccuracy      float64 `json:"gpsAccuracy"`      // meters
	LocationJumps    float64 `json:"locationJumps"`    // count
	ImpossibleSpeeds float64 `json:"impossibleSpeeds"` // count
}

// PaymentFeatures describes the payment context.
type PaymentFeatures struct {
	Method            string  `json:"method"`
	CardFailures      float64 `json:"cardFailures"`
	UnusualAmounts    bool    `json:"unusualAmounts"`
	PaymentVelocity   float64 `json:"paymentVelocity"` // per hour
	ChargebackHistory float64 `json:"chargebackHistory"`
}

// DeviceFeatures describes the device originating the request.
type DeviceFeatures struct {
	Fingerprint      string  `json:"fingerprint"`
	IsRooted         bool    `json:"isRooted"`
	IsEmulator       bool    `json:"isEmulator"`
	VPNUsage         bool    `json:"vpnUsage"`
	MultipleAccounts float64 `json:"multipleAccounts"` // count
	DeviceAge        float64 `json:"deviceAge"`        // days
}

// NetworkFeatures describes the network context.
type NetworkFeatures struct {
	IPRiskScore    float64 `json:"ipRiskScore"` // [0,1]
	IsVPN          bool    `json:"isVpn"`
	IsProxy        bool    `json:"isProxy"`
	IsTor          bool    `json:"isTor"`
	NetworkChanges float64 `json:"networkChanges"` // count
	CountryCode    string  `json:"countryCode"`
}

// Validate checks that every required sub-record is present. The engine never
// substitutes defaults for missing sections in production mode.
func (fv *FeatureVector) Validate() error {
	if fv == nil {
		return fmt.Errorf("%w: feature vector is nil", ErrInvalidInput)
	}
	sections := []struct {
		name string
		ok   bool
	}{
		{"user", fv.User != nil},
		{"trip", fv.Trip != nil},
		{"location", fv.Location != nil},
		{"payment", fv.Payment != nil},
		{"device", fv.Device != nil},
		{"network", fv.Network != nil},
	}
	for _, s := range sections {
		if !s.ok {
			return fmt.Errorf("%w: %s", ErrMissingSection, s.name)
		}
	}
	if fv.Trip.TimeOfDay < 0 || fv.Trip.TimeOfDay > 23 {
		return fmt.Errorf("%w: trip.timeOfDay must be 0-23", ErrInvalidInput)
	}
	if fv.Trip.DayOfWeek < 0 || fv.Trip.DayOfWeek > 6 {
		return fmt.Errorf("%w: trip.dayOfWeek must be 0-6", ErrInvalidInput)
	}
	return nil
}

// RiderHistory carries precomputed temporal statistics for the subject.
// It is assembled by the history service before scoring so the scoring path
// itself performs no I/O. A nil history scores with neutral temporal values.
type RiderHistory struct {
	// HourFrequency is the share of the subject's past trips that started in
	// the same hour-of-day as the trip under evaluation.
	HourFrequency float64 `json:"hourFrequency"`

	// WeekendShare is the share of past trips taken on weekends.
	WeekendShare float64 `json:"weekendShare"`

	// DailyTripMean and DailyTripStd summarize trips-per-day over the window.
	DailyTripMean float64 `json:"dailyTripMean"`
	DailyTripStd  float64 `json:"dailyTripStd"`

	// TripsToday counts trips already taken today, excluding this one.
	TripsToday float64 `json:"tripsToday"`
}

// NeutralHistory returns history values that trigger no temporal rules.
func NeutralHistory() *RiderHistory {
	return &RiderHistory{
		HourFrequency: 0.5,
		WeekendShare:  0.5,
		DailyTripMean: 0,
		DailyTripStd:  0,
		TripsToday:    0,
	}
}
