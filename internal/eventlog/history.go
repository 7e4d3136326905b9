package eventlog

import (
	"encoding/json"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// EventModel is the GORM model backing long-term, cross-run event history,
// as opposed to Log's in-memory per-run buffer.
type EventModel struct {
	ID        string `gorm:"primaryKey"`
	RunID     string `gorm:"index"`
	Time      time.Time
	Component string
	Kind      string `gorm:"index"`
	Message   string
	Fields    string // JSON-encoded map[string]any
}

// RunModel records one workflow run's lifecycle. Neither the PDF reporter
// nor the admin surface reads it; both work from the in-memory Log.
type RunModel struct {
	ID          string `gorm:"primaryKey"`
	Workflow    string
	StartedAt   time.Time
	EndedAt     *time.Time
	FinalPhase  string
	Succeeded   bool
	FailureNote string
}

// History persists event and run records to SQLite with GORM, instrumented
// with OpenTelemetry the same way the teacher's storage adapter is.
type History struct {
	db *gorm.DB
}

// NewHistory opens (creating if necessary) a SQLite database at path and
// migrates its schema.
func NewHistory(path string) (*History, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&EventModel{}, &RunModel{}); err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	return &History{db: db}, nil
}

// RecordEvent persists ev for later querying. It is independent of
// Log.Append: appending to a Log does not record the event here.
func (h *History) RecordEvent(ev domain.Event) error {
	fieldsJSON, _ := json.Marshal(ev.Fields)
	return h.db.Create(&EventModel{
		ID:        ev.ID,
		RunID:     ev.RunID,
		Time:      ev.Time,
		Component: ev.Component,
		Kind:      ev.Kind,
		Message:   ev.Message,
		Fields:    string(fieldsJSON),
	}).Error
}

// StartRun inserts a RunModel row for a freshly started workflow run.
func (h *History) StartRun(runID, workflow string) error {
	return h.db.Create(&RunModel{ID: runID, Workflow: workflow, StartedAt: time.Now()}).Error
}

// EndRun updates a run's terminal state.
func (h *History) EndRun(runID, finalPhase string, succeeded bool, failureNote string) error {
	now := time.Now()
	return h.db.Model(&RunModel{}).Where("id = ?", runID).Updates(map[string]any{
		"ended_at":     &now,
		"final_phase":  finalPhase,
		"succeeded":    succeeded,
		"failure_note": failureNote,
	}).Error
}

// EventsForRun returns every persisted event for runID, oldest first.
func (h *History) EventsForRun(runID string) ([]EventModel, error) {
	var events []EventModel
	err := h.db.Where("run_id = ?", runID).Order("time asc").Find(&events).Error
	return events, err
}

// Run returns the RunModel for runID.
func (h *History) Run(runID string) (RunModel, error) {
	var run RunModel
	err := h.db.Where("id = ?", runID).First(&run).Error
	return run, err
}

// Close releases the underlying database connection.
func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
