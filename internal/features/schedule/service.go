package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	common_models "go-reports/internal/common/models"
	"go-reports/internal/config"
	emails "go-reports/internal/email"
	"go-reports/internal/features/audit"
	"go-reports/internal/features/report"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type ScheduleService interface {
	CreateSchedule(ctx context.Context, s *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	ListSchedules(ctx context.Context) ([]Schedule, error)
	UpdateSchedule(ctx context.Context, s *Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	// RunSchedule fires one delivery immediately, outside the cron cycle.
	RunSchedule(ctx context.Context, id string) error

	InitializeScheduler(ctx context.Context) error
	StopScheduler() error
}

type ScheduleServiceImpl struct {
	Repo    ScheduleRepository
	Reports report.ReportService
	Email   *emails.Service
	Audit   audit.AuditService
	Config  *config.Config
	Logger  *zap.Logger

	scheduler *cron.Cron
	entries   map[string]cron.EntryID
	mu        sync.Mutex
}

func NewScheduleService(
	repo ScheduleRepository,
	reports report.ReportService,
	email *emails.Service,
	auditService audit.AuditService,
	cfg *config.Config,
	logger *zap.Logger,
) ScheduleService {
	return &ScheduleServiceImpl{
		Repo:    repo,
		Reports: reports,
		Email:   email,
		Audit:   auditService,
		Config:  cfg,
		Logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

func (s *ScheduleServiceImpl) validate(ctx context.Context, sched *Schedule) error {
	if _, err := cron.ParseStandard(sched.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if len(sched.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	if sched.Format == "" {
		sched.Format = report.FormatXLSX
	}
	if _, err := s.Reports.GetReport(ctx, sched.ReportID.Hex()); err != nil {
		return err
	}

	spec, _ := cron.ParseStandard(sched.CronExpr)
	next := spec.Next(time.Now())
	sched.NextRun = &next
	return nil
}

func (s *ScheduleServiceImpl) CreateSchedule(ctx context.Context, sched *Schedule) error {
	if err := s.validate(ctx, sched); err != nil {
		return err
	}
	if err := s.Repo.Create(ctx, sched); err != nil {
		return err
	}
	if err := s.Audit.LogChange(ctx, common_models.AuditActionSchedule, "schedules", sched.ID.Hex(), nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	if sched.Active {
		s.register(sched)
	}
	return nil
}

func (s *ScheduleServiceImpl) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrScheduleNotFound
	}
	return s.Repo.FindByID(ctx, oid)
}

func (s *ScheduleServiceImpl) ListSchedules(ctx context.Context) ([]Schedule, error) {
	return s.Repo.List(ctx, bson.M{})
}

func (s *ScheduleServiceImpl) UpdateSchedule(ctx context.Context, sched *Schedule) error {
	if err := s.validate(ctx, sched); err != nil {
		return err
	}
	if err := s.Repo.Update(ctx, sched); err != nil {
		return err
	}
	s.unregister(sched.ID.Hex())
	if sched.Active {
		s.register(sched)
	}
	return nil
}

func (s *ScheduleServiceImpl) DeleteSchedule(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrScheduleNotFound
	}
	s.unregister(id)
	return s.Repo.Delete(ctx, oid)
}

func (s *ScheduleServiceImpl) RunSchedule(ctx context.Context, id string) error {
	sched, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	return s.deliver(ctx, sched)
}

// deliver regenerates the report into the cache and mails the link.
func (s *ScheduleServiceImpl) deliver(ctx context.Context, sched *Schedule) error {
	reportID := sched.ReportID.Hex()

	r, err := s.Reports.GetReport(ctx, reportID)
	if err != nil {
		return err
	}

	if _, err := s.Reports.GenerateToCache(ctx, reportID, sched.CreatedBy, sched.Format); err != nil {
		return fmt.Errorf("scheduled generation failed: %w", err)
	}

	downloadURL := fmt.Sprintf("%s/api/reports/%s/download?format=%s", s.Config.BaseURL, reportID, sched.Format)
	if err := s.Email.SendReportReady(ctx, sched.Recipients, r.Name, reportID, downloadURL); err != nil {
		return fmt.Errorf("failed to queue delivery mail: %w", err)
	}

	now := time.Now()
	var next *time.Time
	if spec, err := cron.ParseStandard(sched.CronExpr); err == nil {
		n := spec.Next(now)
		next = &n
	}
	if err := s.Repo.UpdateRunTimes(ctx, sched.ID, now, next); err != nil {
		s.Logger.Warn("failed to record schedule run", zap.String("schedule", sched.ID.Hex()), zap.Error(err))
	}

	if err := s.Audit.LogChange(ctx, common_models.AuditActionSchedule, "schedules", sched.ID.Hex(), map[string]common_models.Change{
		"delivered": {New: sched.Recipients},
	}); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return nil
}

func (s *ScheduleServiceImpl) InitializeScheduler(ctx context.Context) error {
	s.mu.Lock()
	s.scheduler = cron.New()
	s.mu.Unlock()

	active, err := s.Repo.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active schedules: %w", err)
	}
	for i := range active {
		s.register(&active[i])
	}

	s.scheduler.Start()
	s.Logger.Info("schedule runner started", zap.Int("active", len(active)))
	return nil
}

func (s *ScheduleServiceImpl) StopScheduler() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
	return nil
}

func (s *ScheduleServiceImpl) register(sched *Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return
	}

	id := sched.ID.Hex()
	entryID, err := s.scheduler.AddFunc(sched.CronExpr, func() {
		ctx := context.Background()
		// Re-read so edits and deactivation take effect without restart
		latest, err := s.GetSchedule(ctx, id)
		if err != nil || !latest.Active {
			return
		}
		if err := s.deliver(ctx, latest); err != nil {
			s.Logger.Error("scheduled delivery failed", zap.String("schedule", id), zap.Error(err))
		}
	})
	if err != nil {
		s.Logger.Error("failed to register schedule", zap.String("schedule", id), zap.Error(err))
		return
	}
	s.entries[id] = entryID
}

func (s *ScheduleServiceImpl) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[id]; ok && s.scheduler != nil {
		s.scheduler.Remove(entryID)
		delete(s.entries, id)
	}
}
