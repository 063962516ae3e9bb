package report

import (
	"context"
	"errors"
	"testing"
	"time"

	common_models "go-reports/internal/common/models"
	"go-reports/internal/config"
	"go-reports/internal/features/record"
	"go-reports/pkg/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeReportRepo struct {
	report *Report
}

func (r *fakeReportRepo) Create(ctx context.Context, rep *Report) error { return nil }
func (r *fakeReportRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*Report, error) {
	if r.report != nil && r.report.ID == id {
		return r.report, nil
	}
	return nil, ErrReportNotFound
}
func (r *fakeReportRepo) List(ctx context.Context, filter bson.M, limit, offset int64) ([]Report, error) {
	return nil, nil
}
func (r *fakeReportRepo) Update(ctx context.Context, rep *Report) error { return nil }
func (r *fakeReportRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	return nil
}
func (r *fakeReportRepo) ToggleStar(ctx context.Context, id primitive.ObjectID, userID string, starred bool) error {
	return nil
}

// fakeRecords hands out a canned queryset and records the distinct flag the
// service passed down.
type fakeRecords struct {
	qs           record.Queryset
	lastDistinct bool
}

func (f *fakeRecords) CreateRecord(ctx context.Context, entityName string, values map[string]interface{}) (string, error) {
	return "", nil
}
func (f *fakeRecords) UpdateRecord(ctx context.Context, entityName, id string, values map[string]interface{}) error {
	return nil
}
func (f *fakeRecords) DeleteRecord(ctx context.Context, entityName, id string) error { return nil }
func (f *fakeRecords) GetRecord(ctx context.Context, entityName, id string) (map[string]interface{}, error) {
	return nil, nil
}
func (f *fakeRecords) ListRecords(ctx context.Context, entityName string, limit, offset int64) ([]map[string]interface{}, error) {
	return nil, nil
}
func (f *fakeRecords) SetCustomValue(ctx context.Context, entityName, id, field string, value interface{}) error {
	return nil
}
func (f *fakeRecords) Queryset(ctx context.Context, entityName string, predicates []record.Predicate, distinct bool) (record.Queryset, error) {
	f.lastDistinct = distinct
	return f.qs, nil
}

type recordingCache struct {
	sets map[string][]byte
	ttls map[string]time.Duration
}

func newRecordingCache() *recordingCache {
	return &recordingCache{sets: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *recordingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := c.sets[key]
	return v, ok, nil
}
func (c *recordingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.sets[key] = value
	c.ttls[key] = ttl
	return nil
}
func (c *recordingCache) Contains(ctx context.Context, key string) (bool, error) {
	_, ok := c.sets[key]
	return ok, nil
}

type fakeUsers struct {
	claims *utils.UserClaims
}

func (f *fakeUsers) ClaimsFor(ctx context.Context, id string) (*utils.UserClaims, error) {
	if f.claims == nil {
		return nil, errors.New("user not found")
	}
	return f.claims, nil
}

type noopAudit struct{}

func (noopAudit) LogChange(ctx context.Context, action common_models.AuditAction, resource string, recordID string, changes map[string]common_models.Change) error {
	return nil
}
func (noopAudit) ListLogs(ctx context.Context, filters map[string]interface{}, page, limit int64) ([]common_models.AuditLog, error) {
	return nil, nil
}

func TestCacheTTL(t *testing.T) {
	tests := []struct {
		name       string
		configured time.Duration
		want       time.Duration
	}{
		{"configured value passes through", 2 * time.Hour, 2 * time.Hour},
		{"zero falls back to a day", 0, 24 * time.Hour},
		{"negative falls back to a day", -time.Second, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &ReportServiceImpl{Config: &config.Config{ReportCacheTTL: tt.configured}}
			got := s.cacheTTL()
			if got != tt.want {
				t.Errorf("cacheTTL() = %v, want %v", got, tt.want)
			}
			if got <= 0 {
				t.Errorf("cacheTTL() = %v, must always be positive", got)
			}
		})
	}
}

func TestGenerateToCacheDeniedIsNotCached(t *testing.T) {
	docs, objects := clientDocs(2)
	qs := &fakeQueryset{name: "client", docs: docs, objects: objects}
	store := newRecordingCache()

	r := &Report{
		ID:         primitive.NewObjectID(),
		Name:       "Clients",
		RootEntity: "client",
		DisplayFields: []DisplayField{
			{Field: "name", FieldType: FieldTypeField, Position: 0},
		},
	}

	s := &ReportServiceImpl{
		Repo:      &fakeReportRepo{report: r},
		Records:   &fakeRecords{qs: qs},
		Evaluator: newTestEvaluator(denyChecker{}),
		Exporter:  NewExporter(0, zap.NewNop()),
		Cache:     store,
		Users:     &fakeUsers{claims: &utils.UserClaims{UserID: "u1", Roles: []string{"viewer"}}},
		Audit:     noopAudit{},
		Config:    &config.Config{},
		Logger:    zap.NewNop(),
	}

	_, err := s.GenerateToCache(context.Background(), r.ID.Hex(), "u1", FormatCSV)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("GenerateToCache() error = %v, want ErrPermissionDenied", err)
	}
	if len(store.sets) != 0 {
		t.Errorf("a denied evaluation was cached: %v", store.sets)
	}
}

func TestRunPassesDistinctToQueryset(t *testing.T) {
	docs, objects := clientDocs(1)
	records := &fakeRecords{qs: &fakeQueryset{name: "client", docs: docs, objects: objects}}

	r := &Report{
		ID:         primitive.NewObjectID(),
		Name:       "Clients",
		RootEntity: "client",
		Distinct:   true,
		DisplayFields: []DisplayField{
			{Field: "name", FieldType: FieldTypeField, Position: 0},
		},
	}

	s := &ReportServiceImpl{
		Repo:      &fakeReportRepo{report: r},
		Records:   records,
		Evaluator: newTestEvaluator(allowChecker{}),
		Audit:     noopAudit{},
		Config:    &config.Config{},
		Logger:    zap.NewNop(),
	}

	if _, _, err := s.Run(context.Background(), r.ID.Hex(), nil, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !records.lastDistinct {
		t.Errorf("distinct report ran without the distinct flag")
	}
}
