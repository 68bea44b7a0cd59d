package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const timestampLayout = "2006-01-02 15:04:05"

const DefaultModelVersion = "v1.0"

var ErrNoRows = errors.New("no rows")

// Store keeps the prediction log, the API request log and model performance
// history in one SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// a single writer avoids "database is locked" under concurrent handlers
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        input_data TEXT NOT NULL,
        prediction INTEGER NOT NULL,
        probability REAL NOT NULL,
        model_version TEXT DEFAULT 'v1.0',
        response_time_ms REAL,
        endpoint TEXT
    );
    CREATE TABLE IF NOT EXISTS api_requests (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        endpoint TEXT NOT NULL,
        method TEXT NOT NULL,
        status_code INTEGER NOT NULL,
        response_time_ms REAL NOT NULL,
        user_agent TEXT,
        ip_address TEXT,
        request_id TEXT
    );
    CREATE TABLE IF NOT EXISTS model_performance (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        model_version TEXT NOT NULL,
        accuracy REAL,
        precision_score REAL,
        recall_score REAL,
        f1_score REAL,
        training_samples INTEGER
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions(timestamp);
    CREATE INDEX IF NOT EXISTS idx_api_requests_timestamp ON api_requests(timestamp);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type PredictionLog struct {
	InputData      interface{}
	Prediction     int
	Probability    float64
	ModelVersion   string
	ResponseTimeMs float64
	Endpoint       string
	// Timestamp defaults to the database clock when zero.
	Timestamp time.Time
}

type APIRequestLog struct {
	Endpoint       string
	Method         string
	StatusCode     int
	ResponseTimeMs float64
	UserAgent      string
	IPAddress      string
	RequestID      string
	Timestamp      time.Time
}

type ModelPerformance struct {
	Timestamp       time.Time `json:"timestamp"`
	ModelVersion    string    `json:"model_version"`
	Accuracy        float64   `json:"accuracy"`
	Precision       float64   `json:"precision"`
	Recall          float64   `json:"recall"`
	F1              float64   `json:"f1_score"`
	TrainingSamples int       `json:"training_samples"`
}

type PredictionStats struct {
	TotalPredictions  int     `json:"total_predictions"`
	AvgProbability    float64 `json:"avg_probability"`
	ChurnPredictions  int     `json:"churn_predictions"`
	ChurnRate         float64 `json:"churn_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

type APIStats struct {
	TotalRequests     int     `json:"total_requests"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	ErrorCount        int     `json:"error_count"`
	ErrorRate         float64 `json:"error_rate"`
}

type PredictionRecord struct {
	Timestamp   time.Time       `json:"timestamp"`
	InputData   json.RawMessage `json:"input_data"`
	Prediction  int             `json:"prediction"`
	Probability float64         `json:"probability"`
	Endpoint    string          `json:"endpoint"`
}

func (s *Store) StorePrediction(ctx context.Context, p PredictionLog) (int64, error) {
	input, err := json.Marshal(p.InputData)
	if err != nil {
		return 0, fmt.Errorf("encode input data: %w", err)
	}
	version := p.ModelVersion
	if version == "" {
		version = DefaultModelVersion
	}
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = "/predict"
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (timestamp, input_data, prediction, probability, model_version, response_time_ms, endpoint)
        VALUES (COALESCE(?, CURRENT_TIMESTAMP), ?, ?, ?, ?, ?, ?)`,
		timestampArg(p.Timestamp), string(input), p.Prediction, p.Probability, version, p.ResponseTimeMs, endpoint)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) StoreAPIRequest(ctx context.Context, r APIRequestLog) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO api_requests (timestamp, endpoint, method, status_code, response_time_ms, user_agent, ip_address, request_id)
        VALUES (COALESCE(?, CURRENT_TIMESTAMP), ?, ?, ?, ?, ?, ?, ?)`,
		timestampArg(r.Timestamp), r.Endpoint, r.Method, r.StatusCode, r.ResponseTimeMs,
		nullString(r.UserAgent), nullString(r.IPAddress), nullString(r.RequestID))
	return err
}

func (s *Store) StoreModelPerformance(ctx context.Context, m ModelPerformance) error {
	if m.ModelVersion == "" {
		return errors.New("model version required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO model_performance (timestamp, model_version, accuracy, precision_score, recall_score, f1_score, training_samples)
        VALUES (COALESCE(?, CURRENT_TIMESTAMP), ?, ?, ?, ?, ?, ?)`,
		timestampArg(m.Timestamp), m.ModelVersion, m.Accuracy, m.Precision, m.Recall, m.F1, m.TrainingSamples)
	return err
}

// GetPredictionStats summarises predictions of the last days days.
func (s *Store) GetPredictionStats(ctx context.Context, days int) (PredictionStats, error) {
	var stats PredictionStats
	var avgProbability, avgResponse float64
	err := s.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(AVG(probability), 0),
            COALESCE(SUM(CASE WHEN prediction = 1 THEN 1 ELSE 0 END), 0),
            COALESCE(AVG(response_time_ms), 0)
        FROM predictions
        WHERE timestamp >= datetime('now', ?)`, sinceModifier(days)).
		Scan(&stats.TotalPredictions, &avgProbability, &stats.ChurnPredictions, &avgResponse)
	if err != nil {
		return stats, err
	}
	stats.AvgProbability = round(avgProbability, 3)
	stats.ChurnRate = round(float64(stats.ChurnPredictions)/float64(max(stats.TotalPredictions, 1))*100, 2)
	stats.AvgResponseTimeMs = round(avgResponse, 2)
	return stats, nil
}

func (s *Store) GetAPIStats(ctx context.Context, days int) (APIStats, error) {
	var stats APIStats
	var avgResponse float64
	err := s.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(AVG(response_time_ms), 0),
            COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0)
        FROM api_requests
        WHERE timestamp >= datetime('now', ?)`, sinceModifier(days)).
		Scan(&stats.TotalRequests, &avgResponse, &stats.ErrorCount)
	if err != nil {
		return stats, err
	}
	stats.AvgResponseTimeMs = round(avgResponse, 2)
	stats.ErrorRate = round(float64(stats.ErrorCount)/float64(max(stats.TotalRequests, 1))*100, 2)
	return stats, nil
}

// GetRecentPredictions returns the newest predictions first.
func (s *Store) GetRecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT timestamp, input_data, prediction, probability, endpoint
        FROM predictions
        ORDER BY timestamp DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		var input string
		var endpoint sql.NullString
		if err := rows.Scan(&r.Timestamp, &input, &r.Prediction, &r.Probability, &endpoint); err != nil {
			return nil, err
		}
		r.InputData = json.RawMessage(input)
		r.Endpoint = endpoint.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// LatestModelPerformance returns ErrNoRows when no training run was recorded.
func (s *Store) LatestModelPerformance(ctx context.Context) (*ModelPerformance, error) {
	var m ModelPerformance
	var accuracy, precision, recall, f1 sql.NullFloat64
	var samples sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
        SELECT timestamp, model_version, accuracy, precision_score, recall_score, f1_score, training_samples
        FROM model_performance
        ORDER BY timestamp DESC, id DESC
        LIMIT 1`).Scan(&m.Timestamp, &m.ModelVersion, &accuracy, &precision, &recall, &f1, &samples)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	m.Accuracy = accuracy.Float64
	m.Precision = precision.Float64
	m.Recall = recall.Float64
	m.F1 = f1.Float64
	m.TrainingSamples = int(samples.Int64)
	return &m, nil
}

func sinceModifier(days int) string {
	if days < 0 {
		days = 0
	}
	return fmt.Sprintf("-%d days", days)
}

func timestampArg(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timestampLayout)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
