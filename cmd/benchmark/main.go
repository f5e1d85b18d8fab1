// Benchmark tool for replaying labeled ride data against Riskcore.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/rides.csv -url http://localhost:8080
//
// This tool:
//   1. Reads a labeled ride dataset (one trip per row, with fraud labels)
//   2. Sends each trip to Riskcore's POST /score endpoint
//   3. Compares Riskcore's verdict (overall score vs threshold) with the labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// The CSV must have a header row. Recognized columns (missing columns default
// to zero / empty): trip_id, subject_id, is_fraud, account_age, total_rides,
// cancelation_rate, rating_average, device_changes, location_consistency,
// distance, duration, price, time_of_day, day_of_week, is_holiday,
// route_deviation, speed_anomaly, pickup_region, dropoff_region,
// pickup_risk, dropoff_risk, gps_accuracy, location_jumps, impossible_speeds,
// payment_method, card_failures, unusual_amounts, payment_velocity,
// chargeback_history, is_rooted, is_emulator, is_vpn, multiple_accounts,
// device_age, ip_risk, is_tor, network_changes, country_code.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledTrip is one row of the benchmark dataset.
type LabeledTrip struct {
	TripID    string
	SubjectID string
	IsFraud   bool
	Request   ScoreRequest
}

// ScoreRequest is the Riskcore API request format.
type ScoreRequest struct {
	TripID    string           `json:"tripId,omitempty"`
	SubjectID string           `json:"subjectId"`
	User      UserFeatures     `json:"user"`
	Trip      TripFeatures     `json:"trip"`
	Location  LocationFeatures `json:"location"`
	Payment   PaymentFeatures  `json:"payment"`
	Device    DeviceFeatures   `json:"device"`
	Network   NetworkFeatures  `json:"network"`
}

type UserFeatures struct {
	AccountAge          float64 `json:"accountAge"`
	TotalRides          float64 `json:"totalRides"`
	CancelationRate     float64 `json:"cancelationRate"`
	RatingAverage       float64 `json:"ratingAverage"`
	DeviceChanges       float64 `json:"deviceChanges"`
	LocationConsistency float64 `json:"locationConsistency"`
}

type TripFeatures struct {
	Distance       float64 `json:"distance"`
	Duration       float64 `json:"duration"`
	Price          float64 `json:"price"`
	TimeOfDay      int     `json:"timeOfDay"`
	DayOfWeek      int     `json:"dayOfWeek"`
	IsHoliday      bool    `json:"isHoliday"`
	RouteDeviation float64 `json:"routeDeviation"`
	SpeedAnomaly   float64 `json:"speedAnomaly"`
}

type LocationFeatures struct {
	PickupRegion     string  `json:"pickupRegion"`
	DropoffRegion    string  `json:"dropoffRegion"`
	PickupRiskScore  float64 `json:"pickupRiskScore"`
	DropoffRiskScore float64 `json:"dropoffRiskScore"`
	GPSAccuracy      float64 `json:"gpsAccuracy"`
	LocationJumps    float64 `json:"locationJumps"`
	ImpossibleSpeeds float64 `json:"impossibleSpeeds"`
}

type PaymentFeatures struct {
	Method            string  `json:"method"`
	CardFailures      float64 `json:"cardFailures"`
	UnusualAmounts    bool    `json:"unusualAmounts"`
	PaymentVelocity   float64 `json:"paymentVelocity"`
	ChargebackHistory float64 `json:"chargebackHistory"`
}

type DeviceFeatures struct {
	Fingerprint      string  `json:"fingerprint"`
	IsRooted         bool    `json:"isRooted"`
	IsEmulator       bool    `json:"isEmulator"`
	MultipleAccounts float64 `json:"multipleAccounts"`
	DeviceAge        float64 `json:"deviceAge"`
}

type NetworkFeatures struct {
	IPRiskScore    float64 `json:"ipRiskScore"`
	IsVPN          bool    `json:"isVpn"`
	IsTor          bool    `json:"isTor"`
	NetworkChanges float64 `json:"networkChanges"`
	CountryCode    string  `json:"countryCode"`
}

// ScoreResponse is the Riskcore API response format (the fields we need).
type ScoreResponse struct {
	TripID  string `json:"tripId"`
	Anomaly struct {
		Overall float64 `json:"overall"`
	} `json:"anomaly"`
	Prediction struct {
		FraudScore float64  `json:"fraudScore"`
		RiskLevel  string   `json:"riskLevel"`
		Reasons    []string `json:"reasons"`
	} `json:"prediction"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud scored above threshold
	FalsePositives int64 // Non-fraud scored above threshold
	TrueNegatives  int64 // Non-fraud scored below threshold
	FalseNegatives int64 // Fraud scored below threshold (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled ride CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Riskcore base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum trips to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	threshold := flag.Float64("threshold", 0.7, "Overall score threshold for a fraud verdict")
	fraudOnly := flag.Bool("fraud-only", false, "Only replay fraud-labeled trips")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud trips (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each trip result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/rides.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         RISKCORE BENCHMARK - Labeled Ride Replay              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:      %s\n", *csvPath)
	fmt.Printf("Riskcore URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:     %s\n", *tenantID)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Limit:         %d\n", *limit)
	fmt.Printf("Threshold:     %.2f\n", *threshold)
	fmt.Printf("Fraud Only:    %v\n", *fraudOnly)
	fmt.Printf("Sample Rate:   %.2f\n", *sampleRate)
	fmt.Println()

	// Check Riskcore is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Riskcore not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Riskcore is running:")
		fmt.Println("  go run cmd/riskcore/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Riskcore is healthy")

	// Read labeled ride data
	fmt.Printf("\nReading ride data from %s...\n", *csvPath)
	trips, err := readRidesCSV(*csvPath, *limit, *fraudOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d trips\n", len(trips))

	// Count fraud vs non-fraud
	fraudCount := 0
	for _, trip := range trips {
		if trip.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(trips)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(trips)-fraudCount, 100*float64(len(trips)-fraudCount)/float64(len(trips)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(trips, *baseURL, *tenantID, *workers, *threshold, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// row wraps one CSV record with its header index for typed column access.
type row struct {
	colIndex map[string]int
	record   []string
}

func (r row) str(col string) string {
	i, ok := r.colIndex[col]
	if !ok || i >= len(r.record) {
		return ""
	}
	return r.record[i]
}

func (r row) num(col string) float64 {
	v, _ := strconv.ParseFloat(r.str(col), 64)
	return v
}

func (r row) flag(col string) bool {
	s := strings.ToLower(r.str(col))
	return s == "1" || s == "true" || s == "yes"
}

func readRidesCSV(path string, limit int, fraudOnly bool, sampleRate float64) ([]LabeledTrip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var trips []LabeledTrip
	sampleCounter := 0
	lineNum := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}
		lineNum++

		r := row{colIndex: colIndex, record: record}
		isFraud := r.flag("is_fraud")

		// Apply filters
		if fraudOnly && !isFraud {
			continue
		}

		// Sample non-fraud trips
		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		tripID := r.str("trip_id")
		if tripID == "" {
			tripID = fmt.Sprintf("bench-trip-%06d", lineNum)
		}
		subjectID := r.str("subject_id")
		if subjectID == "" {
			subjectID = fmt.Sprintf("bench-rider-%06d", lineNum)
		}

		trips = append(trips, LabeledTrip{
			TripID:    tripID,
			SubjectID: subjectID,
			IsFraud:   isFraud,
			Request: ScoreRequest{
				TripID:    tripID,
				SubjectID: subjectID,
				User: UserFeatures{
					AccountAge:          r.num("account_age"),
					TotalRides:          r.num("total_rides"),
					CancelationRate:     r.num("cancelation_rate"),
					RatingAverage:       r.num("rating_average"),
					DeviceChanges:       r.num("device_changes"),
					LocationConsistency: r.num("location_consistency"),
				},
				Trip: TripFeatures{
					Distance:       r.num("distance"),
					Duration:       r.num("duration"),
					Price:          r.num("price"),
					TimeOfDay:      int(r.num("time_of_day")),
					DayOfWeek:      int(r.num("day_of_week")),
					IsHoliday:      r.flag("is_holiday"),
					RouteDeviation: r.num("route_deviation"),
					SpeedAnomaly:   r.num("speed_anomaly"),
				},
				Location: LocationFeatures{
					PickupRegion:     r.str("pickup_region"),
					DropoffRegion:    r.str("dropoff_region"),
					PickupRiskScore:  r.num("pickup_risk"),
					DropoffRiskScore: r.num("dropoff_risk"),
					GPSAccuracy:      r.num("gps_accuracy"),
					LocationJumps:    r.num("location_jumps"),
					ImpossibleSpeeds: r.num("impossible_speeds"),
				},
				Payment: PaymentFeatures{
					Method:            r.str("payment_method"),
					CardFailures:      r.num("card_failures"),
					UnusualAmounts:    r.flag("unusual_amounts"),
					PaymentVelocity:   r.num("payment_velocity"),
					ChargebackHistory: r.num("chargeback_history"),
				},
				Device: DeviceFeatures{
					Fingerprint:      "bench-" + subjectID,
					IsRooted:         r.flag("is_rooted"),
					IsEmulator:       r.flag("is_emulator"),
					MultipleAccounts: r.num("multiple_accounts"),
					DeviceAge:        r.num("device_age"),
				},
				Network: NetworkFeatures{
					IPRiskScore:    r.num("ip_risk"),
					IsVPN:          r.flag("is_vpn"),
					IsTor:          r.flag("is_tor"),
					NetworkChanges: r.num("network_changes"),
					CountryCode:    r.str("country_code"),
				},
			},
		})

		if limit > 0 && len(trips) >= limit {
			break
		}
	}

	return trips, nil
}

func runBenchmark(trips []LabeledTrip, baseURL, tenantID string, numWorkers int, threshold float64, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledTrip, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for trip := range work {
				start := time.Now()
				result, err := scoreTrip(client, baseURL, tenantID, trip)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", trip.TripID, err)
					}
					continue
				}

				// Track actual labels
				if trip.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				// Calculate confusion matrix
				predicted := result.Anomaly.Overall > threshold
				actual := trip.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					id := trip.TripID
					if len(id) > 16 {
						id = id[:16]
					}
					fmt.Printf("%s %-16s | Fraud: %-5v | Overall: %.2f | FraudScore: %.2f | Level: %-8s\n",
						status,
						id,
						trip.IsFraud,
						result.Anomaly.Overall,
						result.Prediction.FraudScore,
						result.Prediction.RiskLevel,
					)
				}
			}
		}()
	}

	// Send work
	for _, trip := range trips {
		work <- trip
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func scoreTrip(client *http.Client, baseURL, tenantID string, trip LabeledTrip) (*ScoreResponse, error) {
	body, err := json.Marshal(trip.Request)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   FRAUD       CLEAN")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged trips, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f trips/sec\n", tps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
