package pattern

import (
	"github.com/xpress-ops/riskcore/internal/domain"
)

// catalog returns the built-in fraud archetypes seeded into every matcher.
// Signatures are signal sets; a prediction matches when it carries every
// signal in the signature.
func catalog() []*domain.FraudPattern {
	return []*domain.FraudPattern{
		{
			ID:         "gps-teleportation",
			Name:       "GPS Teleportation",
			Severity:   "critical",
			Confidence: 0.92,
			Signature:  []domain.Signal{domain.SignalLocationJumps, domain.SignalImpossibleSpeed},
			Characteristics: domain.PatternCharacteristics{
				Behavioral:   []string{"location spoofing app in use"},
				Geographical: []string{"discontinuous GPS track", "physically impossible travel speed"},
			},
			RiskFactors: []domain.RiskFactor{
				{Factor: "impossible_speed", Weight: 0.6, Description: "travel speed exceeds physical limits"},
				{Factor: "location_jumps", Weight: 0.4, Description: "position jumps without intermediate fixes"},
			},
		},
		{
			ID:         "device-farm",
			Name:       "Device Farm Operation",
			Severity:   "critical",
			Confidence: 0.90,
			Signature:  []domain.Signal{domain.SignalEmulator, domain.SignalMultipleAccounts},
			Characteristics: domain.PatternCharacteristics{
				Behavioral: []string{"emulated devices", "many accounts per device"},
				Financial:  []string{"referral and signup bonus harvesting"},
			},
			RiskFactors: []domain.RiskFactor{
				{Factor: "emulator", Weight: 0.5, Description: "requests originate from emulated hardware"},
				{Factor: "multiple_accounts", Weight: 0.5, Description: "device shared across many accounts"},
			},
		},
		{
			ID:         "coordinated-fake-rides",
			Name:       "Coordinated Fake Rides",
			Severity:   "high",
			Confidence: 0.85,
			Signature:  []domain.Signal{domain.SignalRouteDeviation, domain.SignalTripFrequency},
			Characteristics: domain.PatternCharacteristics{
				Behavioral: []string{"rider and driver collusion", "trips without real passengers"},
				Temporal:   []string{"burst of trips far above the subject's daily norm"},
			},
			RiskFactors: []domain.RiskFactor{
				{Factor: "trip_frequency", Weight: 0.55, Description: "trip volume spike"},
				{Factor: "route_deviation", Weight: 0.45, Description: "routes inconsistent with requested itinerary"},
			},
		},
		{
			ID:         "incentive-hunter",
			Name:       "Incentive Hunter",
			Severity:   "high",
			Confidence: 0.82,
			Signature:  []domain.Signal{domain.SignalUnusualAmount, domain.SignalFareMismatch},
			Characteristics: domain.PatternCharacteristics{
				Behavioral: []string{"trips engineered around promo thresholds"},
				Financial:  []string{"fares inconsistent with distance", "unusual payment amounts"},
			},
			RiskFactors: []domain.RiskFactor{
				{Factor: "fare_mismatch", Weight: 0.5, Description: "per-kilometer fare far from baseline"},
				{Factor: "unusual_amount", Weight: 0.5, Description: "amounts clustered on incentive boundaries"},
			},
		},
		{
			ID:         "account-takeover",
			Name:       "Account Takeover",
			Severity:   "high",
			Confidence: 0.84,
			Signature:  []domain.Signal{domain.SignalDeviceChanges, domain.SignalNetworkChanges},
			Characteristics: domain.PatternCharacteristics{
				Behavioral: []string{"sudden device churn on an established account"},
				Temporal:   []string{"activity pattern break"},
			},
			RiskFactors: []domain.RiskFactor{
				{Factor: "device_changes", Weight: 0.6, Description: "new devices on a stable account"},
				{Factor: "network_changes", Weight: 0.4, Description: "rapid network switching"},
			},
		},
		{
			ID:         "anonymized-network-abuse",
			Name:       "Anonymized Network Abuse",
			Severity:   "medium",
			Confidence: 0.78,
			Signature:  []domain.Signal{domain.SignalTor},
			Characteristics: domain.PatternCharacteristics{
				Behavioral: []string{"identity concealment"},
				Temporal:   []string{"often paired with new or dormant accounts"},
			},
			RiskFactors: []domain.RiskFactor{
				{Factor: "tor", Weight: 1.0, Description: "traffic routed through Tor exit nodes"},
			},
		},
	}
}
