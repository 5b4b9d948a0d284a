package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Plates     int           // Number of distinct plates to generate
	Sightings  int           // Readings submitted per plate
	NoiseRate  float64       // Probability that a character is swapped for an OCR lookalike
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	Location   string        // Camera label sent with every reading
	Seed       uint64        // Random seed; zero picks one from the clock
	OutputFile string        // Output file for generated readings
	Verbose    bool          // Enable verbose logging
}

// Reading is the body of POST /readings.
type Reading struct {
	PlateText  string  `json:"plate_text"`
	Confidence float64 `json:"confidence"`
	Location   string  `json:"location"`

	canonical string
}

// readingResponse is the answer to POST /readings.
type readingResponse struct {
	ID             string `json:"id"`
	PlateText      string `json:"plate_text"`
	DetectionCount int    `json:"detection_count"`
	Created        bool   `json:"created"`
}

// plateRecord is the part of GET /plates/{text} the verifier checks.
type plateRecord struct {
	Text           string  `json:"plate_text"`
	BestConfidence float64 `json:"best_confidence"`
	DetectionCount int     `json:"detection_count"`
}

// Expectation is what the ledger must hold for one plate after the run.
type Expectation struct {
	Text           string
	Sightings      int
	BestConfidence float64
}

// Stats holds run statistics.
type Stats struct {
	ReadingsGenerated int
	ReadingsSubmitted int
	Created           int
	Merged            int
	Rejected          int
	Failed            int
	PlatesVerified    int
	PlatesMismatched  int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
