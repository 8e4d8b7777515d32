package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/types"
)

var (
	ErrVesselNotFound  = errors.New("vessel not found")
	ErrTaskNotFound    = errors.New("tracking task not found")
	ErrInvalidVessel   = errors.New("invalid vessel")
	ErrInvalidInterval = errors.New("interval must be at least 1 hour")
)

// vesselInput holds the registration fields that must be validated
type vesselInput struct {
	UserID string `validate:"required"`
	MMSI   string `validate:"required,len=9,numeric"`
	Name   string `validate:"required"`
}

// Registry manages vessels and their tracking tasks
type Registry struct {
	db       *gorm.DB
	log      logger.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// Open wraps an existing postgres connection pool with GORM
func Open(sqlDB *sql.DB, log logger.Logger) (*Registry, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	return New(db, log), nil
}

// New creates a registry on a GORM handle
func New(db *gorm.DB, log logger.Logger) *Registry {
	return &Registry{
		db:       db,
		log:      log,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// RegisterVessel creates an inactive vessel for the user
func (r *Registry) RegisterVessel(ctx context.Context, userID, mmsi, name string) (*types.Vessel, error) {
	in := vesselInput{UserID: userID, MMSI: mmsi, Name: name}
	if err := r.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s failed %q", ErrInvalidVessel, verrs[0].Field(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidVessel, err)
	}

	now := r.now()
	model := vesselModel{
		ID:        r.newID(),
		UserID:    userID,
		MMSI:      mmsi,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("failed to register vessel: %w", err)
	}
	return model.toEntity(), nil
}

// GetVessel finds a vessel by id
func (r *Registry) GetVessel(ctx context.Context, id string) (*types.Vessel, error) {
	var model vesselModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVesselNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vessel: %w", err)
	}
	return model.toEntity(), nil
}

// ListVessels returns the user's vessels ordered by name
func (r *Registry) ListVessels(ctx context.Context, userID string) ([]*types.Vessel, error) {
	var models []vesselModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list vessels: %w", err)
	}

	vessels := make([]*types.Vessel, 0, len(models))
	for i := range models {
		vessels = append(vessels, models[i].toEntity())
	}
	return vessels, nil
}

// ActivateVessel makes the vessel the only active one
func (r *Registry) ActivateVessel(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		if err := tx.Model(&vesselModel{}).
			Where("is_active = ?", true).
			Updates(map[string]interface{}{"is_active": false, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("failed to deactivate vessels: %w", err)
		}

		res := tx.Model(&vesselModel{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"is_active": true, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to activate vessel: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVesselNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info("Vessel activated", "vessel_id", id)
	return nil
}

// DeactivateVessel clears the vessel's active flag
func (r *Registry) DeactivateVessel(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&vesselModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "updated_at": r.now()})
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate vessel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVesselNotFound
	}
	return nil
}

// ScheduleChecks replaces the vessel's AIS check task with a new one due now
func (r *Registry) ScheduleChecks(ctx context.Context, vesselID string, intervalHours int) (*types.TrackingTask, error) {
	if intervalHours < 1 {
		return nil, ErrInvalidInterval
	}

	vessel, err := r.GetVessel(ctx, vesselID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	model := trackingTaskModel{
		ID:            r.newID(),
		UserID:        vessel.UserID,
		VesselID:      vessel.ID,
		TaskType:      types.TaskTypeAISCheck,
		IntervalHours: intervalHours,
		NextRun:       now,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vessel_id = ? AND task_type = ?", vesselID, types.TaskTypeAISCheck).
			Delete(&trackingTaskModel{}).Error; err != nil {
			return fmt.Errorf("failed to remove existing task: %w", err)
		}
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Scheduled AIS checks",
		"vessel_id", vesselID,
		"task_id", model.ID,
		"interval_hours", intervalHours)
	return model.toEntity(), nil
}

// SetTaskActive toggles a task's active flag
func (r *Registry) SetTaskActive(ctx context.Context, taskID string, active bool) error {
	res := r.db.WithContext(ctx).Model(&trackingTaskModel{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{"is_active": active, "updated_at": r.now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// GetTaskForVessel returns the vessel's AIS check task
func (r *Registry) GetTaskForVessel(ctx context.Context, vesselID string) (*types.TrackingTask, error) {
	var model trackingTaskModel
	err := r.db.WithContext(ctx).
		Where("vessel_id = ? AND task_type = ?", vesselID, types.TaskTypeAISCheck).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return model.toEntity(), nil
}

// DueTasks returns active tasks whose next run is at or before now, oldest first
func (r *Registry) DueTasks(ctx context.Context, now time.Time) ([]*types.TrackingTask, error) {
	var models []trackingTaskModel
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND next_run <= ?", true, now).
		Order("next_run ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}

	tasks := make([]*types.TrackingTask, 0, len(models))
	for i := range models {
		tasks = append(tasks, models[i].toEntity())
	}
	return tasks, nil
}

// MarkRun records a successful run and the next due time
func (r *Registry) MarkRun(ctx context.Context, taskID string, lastRun, nextRun time.Time) error {
	res := r.db.WithContext(ctx).Model(&trackingTaskModel{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"last_run":   lastRun,
			"next_run":   nextRun,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark task run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
