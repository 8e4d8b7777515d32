package registry

import (
	"time"

	"github.com/saviobatista/seatime-logger/internal/types"
)

// vesselModel maps the vessels table
type vesselModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id"`
	MMSI      string    `gorm:"column:mmsi"`
	Name      string    `gorm:"column:name"`
	IsActive  bool      `gorm:"column:is_active"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name
func (vesselModel) TableName() string {
	return "vessels"
}

func (m *vesselModel) toEntity() *types.Vessel {
	return &types.Vessel{
		ID:        m.ID,
		UserID:    m.UserID,
		MMSI:      m.MMSI,
		Name:      m.Name,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// trackingTaskModel maps the tracking_tasks table
type trackingTaskModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	UserID        string     `gorm:"column:user_id"`
	VesselID      string     `gorm:"column:vessel_id"`
	TaskType      string     `gorm:"column:task_type"`
	IntervalHours int        `gorm:"column:interval_hours"`
	LastRun       *time.Time `gorm:"column:last_run"`
	NextRun       time.Time  `gorm:"column:next_run"`
	IsActive      bool       `gorm:"column:is_active"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

// TableName overrides the default table name
func (trackingTaskModel) TableName() string {
	return "tracking_tasks"
}

func (m *trackingTaskModel) toEntity() *types.TrackingTask {
	return &types.TrackingTask{
		ID:            m.ID,
		UserID:        m.UserID,
		VesselID:      m.VesselID,
		TaskType:      m.TaskType,
		IntervalHours: m.IntervalHours,
		LastRun:       m.LastRun,
		NextRun:       m.NextRun,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
