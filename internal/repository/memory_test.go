package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"mpbf-bottleneck/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock 每次调用前进固定步长
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func sampleMetricInput(section string) models.MetricInput {
	return models.MetricInput{
		SectionID:  section,
		MachineID:  strPtr("M1"),
		Stage:      models.StageExtruding,
		Shift:      models.ShiftDay,
		TargetRate: 100,
		ActualRate: 95,
		Efficiency: 90,
		Downtime:   floatPtr(10),
	}
}

func sampleProposal(section string, alertType models.AlertType) models.AlertProposal {
	return models.AlertProposal{
		AlertType:         alertType,
		Severity:          models.SeverityHigh,
		SectionID:         section,
		MachineID:         strPtr("M1"),
		Title:             "test alert",
		Description:       "efficiency 60.0% below minimum 70.0%",
		AffectedJobOrders: []string{"JO-1"},
		EstimatedDelay:    2,
		SuggestedActions:  []string{"a", "b"},
	}
}

// ============================================
// Metric Store
// ============================================

func TestMemoryMetricStore_RecordAssignsIDAndTimestamp(t *testing.T) {
	store := NewMemoryMetricStore(newStepClock(time.Minute).Now)
	ctx := context.Background()

	m, err := store.Record(ctx, sampleMetricInput("S1"))
	require.NoError(t, err)
	assert.NotEmpty(t, m.MetricID)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), m.Timestamp)
	assert.Equal(t, "S1", m.SectionID)
	require.NotNil(t, m.Downtime)
	assert.Equal(t, 10.0, *m.Downtime)
}

func TestMemoryMetricStore_TimestampNeverGoesBackwards(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), // 时钟回拨
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	i := 0
	store := NewMemoryMetricStore(func() time.Time {
		now := times[i]
		i++
		return now
	})
	ctx := context.Background()

	var got []time.Time
	for range times {
		m, err := store.Record(ctx, sampleMetricInput("S1"))
		require.NoError(t, err)
		got = append(got, m.Timestamp)
	}
	assert.Equal(t, times[0], got[1])
	assert.False(t, got[2].Before(got[1]))
}

func TestMemoryMetricStore_Filters(t *testing.T) {
	store := NewMemoryMetricStore(newStepClock(time.Hour).Now)
	ctx := context.Background()

	first, _ := store.Record(ctx, sampleMetricInput("S1"))
	second, _ := store.Record(ctx, sampleMetricInput("S2"))
	other := sampleMetricInput("S1")
	other.MachineID = strPtr("M2")
	third, _ := store.Record(ctx, other)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	s1, _ := store.BySection(ctx, "S1")
	assert.Len(t, s1, 2)

	m2, _ := store.ByMachine(ctx, "M2")
	require.Len(t, m2, 1)
	assert.Equal(t, third.MetricID, m2[0].MetricID)

	// 两端闭区间
	ranged, _ := store.ByDateRange(ctx, first.Timestamp, second.Timestamp)
	require.Len(t, ranged, 2)
	assert.Equal(t, first.MetricID, ranged[0].MetricID)
	assert.Equal(t, second.MetricID, ranged[1].MetricID)
}

func TestMemoryMetricStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryMetricStore(nil)
	ctx := context.Background()

	m, _ := store.Record(ctx, sampleMetricInput("S1"))
	*m.Downtime = 999
	*m.MachineID = "changed"

	all, _ := store.List(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, 10.0, *all[0].Downtime)
	assert.Equal(t, "M1", *all[0].MachineID)
}

// ============================================
// Target Registry
// ============================================

func TestMemoryTargetRegistry_CreateRoundTrip(t *testing.T) {
	reg := NewMemoryTargetRegistry(newStepClock(time.Second).Now)
	ctx := context.Background()

	created, err := reg.Create(ctx, models.TargetInput{
		SectionID: "S1", Stage: models.StageExtruding, Shift: models.ShiftDay,
		TargetRate: 100, MinEfficiency: 70, MaxDowntime: 30,
	})
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.Nil(t, created.EffectiveTo)
	assert.False(t, created.EffectiveFrom.IsZero())

	listed, err := reg.ListActiveBySection(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, *created, listed[0])

	none, _ := reg.ListActiveBySection(ctx, "S2")
	assert.Empty(t, none)
}

func TestMemoryTargetRegistry_UpdateUnknown(t *testing.T) {
	reg := NewMemoryTargetRegistry(nil)

	_, err := reg.Update(context.Background(), "missing", models.TargetUpdate{TargetRate: floatPtr(1)})
	assert.True(t, errors.Is(err, models.ErrTargetNotFound))
}

func TestMemoryTargetRegistry_DeactivateAndReactivate(t *testing.T) {
	reg := NewMemoryTargetRegistry(newStepClock(time.Minute).Now)
	ctx := context.Background()

	created, _ := reg.Create(ctx, models.TargetInput{
		SectionID: "S1", Stage: models.StagePrinting, Shift: models.ShiftNight,
		TargetRate: 50, MinEfficiency: 60, MaxDowntime: 20,
	})

	updated, err := reg.Update(ctx, created.TargetID, models.TargetUpdate{
		IsActive:   boolPtr(false),
		TargetRate: floatPtr(55),
	})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 55.0, updated.TargetRate)
	require.NotNil(t, updated.EffectiveTo)
	assert.Equal(t, 60.0, updated.MinEfficiency)

	active, _ := reg.ListActive(ctx)
	assert.Empty(t, active)

	reactivated, err := reg.Update(ctx, created.TargetID, models.TargetUpdate{IsActive: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)
	assert.Nil(t, reactivated.EffectiveTo)
}

func TestMemoryTargetRegistry_ActiveSnapshot(t *testing.T) {
	reg := NewMemoryTargetRegistry(nil)
	ctx := context.Background()

	_, _ = reg.Create(ctx, models.TargetInput{SectionID: "S1", Stage: models.StageExtruding, Shift: models.ShiftDay, TargetRate: 100})
	_, _ = reg.Create(ctx, models.TargetInput{SectionID: "S1", Stage: models.StageExtruding, Shift: models.ShiftNight, TargetRate: 100})
	_, _ = reg.Create(ctx, models.TargetInput{SectionID: "S1", Stage: models.StageCutting, Shift: models.ShiftDay, TargetRate: 100})

	snap, err := reg.ActiveSnapshot(ctx, "S1", models.StageExtruding, models.ShiftDay)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, models.ShiftDay, snap[0].Shift)
}

// ============================================
// Alert Registry
// ============================================

func TestMemoryAlertRegistry_AcknowledgeThenResolve(t *testing.T) {
	reg := NewMemoryAlertRegistry(newStepClock(time.Second).Now)
	ctx := context.Background()

	a, err := reg.Create(ctx, sampleProposal("S1", models.AlertTypeEfficiencyDrop))
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusActive, a.Status)
	assert.Nil(t, a.AcknowledgedAt)
	assert.Nil(t, a.ResolvedAt)

	acked, err := reg.Acknowledge(ctx, a.AlertID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedBy)
	assert.Equal(t, "op-1", *acked.AcknowledgedBy)

	resolved, err := reg.Resolve(ctx, a.AlertID, "op-2", strPtr("recalibrated nozzle"))
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.AcknowledgedAt)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "recalibrated nozzle", *resolved.ResolutionNotes)

	// 已解决后再次确认：状态不变，返回冲突
	_, err = reg.Acknowledge(ctx, a.AlertID, "op-1")
	assert.True(t, errors.Is(err, models.ErrAlertStateConflict))
	_, err = reg.Resolve(ctx, a.AlertID, "op-1", nil)
	assert.True(t, errors.Is(err, models.ErrAlertStateConflict))

	got, _ := reg.Get(ctx, a.AlertID)
	assert.Equal(t, *resolved, *got)
}

func TestMemoryAlertRegistry_ResolveDirectlyFromActive(t *testing.T) {
	reg := NewMemoryAlertRegistry(nil)
	ctx := context.Background()

	a, _ := reg.Create(ctx, sampleProposal("S1", models.AlertTypeDowntimeExceeded))

	resolved, err := reg.Resolve(ctx, a.AlertID, "op-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	assert.Nil(t, resolved.AcknowledgedAt)
	require.NotNil(t, resolved.ResolutionNotes)
	assert.Equal(t, "", *resolved.ResolutionNotes)
}

func TestMemoryAlertRegistry_UnknownID(t *testing.T) {
	reg := NewMemoryAlertRegistry(nil)
	ctx := context.Background()

	_, err := reg.Acknowledge(ctx, "missing", "op")
	assert.True(t, errors.Is(err, models.ErrAlertNotFound))
	_, err = reg.Resolve(ctx, "missing", "op", nil)
	assert.True(t, errors.Is(err, models.ErrAlertNotFound))
	_, err = reg.Get(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrAlertNotFound))
}

func TestMemoryAlertRegistry_ConcurrentAcknowledgeOnlyOneWins(t *testing.T) {
	reg := NewMemoryAlertRegistry(nil)
	ctx := context.Background()
	a, _ := reg.Create(ctx, sampleProposal("S1", models.AlertTypeRateBelowTarget))

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Acknowledge(ctx, a.AlertID, "op")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, models.ErrAlertStateConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func TestMemoryAlertRegistry_ListNewestFirstAndFilters(t *testing.T) {
	reg := NewMemoryAlertRegistry(newStepClock(time.Minute).Now)
	ctx := context.Background()

	first, _ := reg.Create(ctx, sampleProposal("S1", models.AlertTypeEfficiencyDrop))
	second, _ := reg.Create(ctx, sampleProposal("S2", models.AlertTypeRateBelowTarget))
	third, _ := reg.Create(ctx, sampleProposal("S1", models.AlertTypeDowntimeExceeded))
	_, _ = reg.Acknowledge(ctx, second.AlertID, "op")

	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.AlertID, all[0].AlertID)
	assert.Equal(t, first.AlertID, all[2].AlertID)

	again, _ := reg.List(ctx)
	assert.Equal(t, all, again)

	active, _ := reg.ListActive(ctx)
	assert.Len(t, active, 2)

	s1, _ := reg.ListBySection(ctx, "S1")
	require.Len(t, s1, 2)
	assert.Equal(t, third.AlertID, s1[0].AlertID)

	alertType := models.AlertTypeRateBelowTarget
	byType, _ := reg.Query(ctx, models.AlertFilters{AlertType: &alertType})
	require.Len(t, byType, 1)
	assert.Equal(t, second.AlertID, byType[0].AlertID)
}

func TestMemoryAlertRegistry_CreateIfNoneOpen(t *testing.T) {
	reg := NewMemoryAlertRegistry(nil)
	ctx := context.Background()

	first, created, err := reg.CreateIfNoneOpen(ctx, sampleProposal("S1", models.AlertTypeEfficiencyDrop))
	require.NoError(t, err)
	assert.True(t, created)

	dup, created, err := reg.CreateIfNoneOpen(ctx, sampleProposal("S1", models.AlertTypeEfficiencyDrop))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.AlertID, dup.AlertID)

	// 不同报警类型不受影响
	_, created, _ = reg.CreateIfNoneOpen(ctx, sampleProposal("S1", models.AlertTypeRateBelowTarget))
	assert.True(t, created)

	// 确认后仍视为未解决
	_, _ = reg.Acknowledge(ctx, first.AlertID, "op")
	_, created, _ = reg.CreateIfNoneOpen(ctx, sampleProposal("S1", models.AlertTypeEfficiencyDrop))
	assert.False(t, created)

	// 解决后可以再次生成
	_, _ = reg.Resolve(ctx, first.AlertID, "op", nil)
	_, created, _ = reg.CreateIfNoneOpen(ctx, sampleProposal("S1", models.AlertTypeEfficiencyDrop))
	assert.True(t, created)
}

// ============================================
// Notification Settings
// ============================================

func TestMemoryNotificationSettingsStore_Upsert(t *testing.T) {
	store := NewMemoryNotificationSettingsStore(newStepClock(time.Minute).Now)
	ctx := context.Background()

	_, err := store.Get(ctx, "u1")
	assert.True(t, errors.Is(err, models.ErrSettingNotFound))

	sev := models.SeverityHigh
	first, err := store.Upsert(ctx, models.NotificationSetting{
		UserID:       "u1",
		EmailEnabled: true,
		MinSeverity:  &sev,
		SectionIDs:   []string{"S1"},
		Extra:        json.RawMessage(`{"lang":"en"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)

	second, err := store.Upsert(ctx, models.NotificationSetting{UserID: "u1", SMSEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.False(t, second.EmailEnabled)
	assert.True(t, second.SMSEnabled)

	_, _ = store.Upsert(ctx, models.NotificationSetting{UserID: "u0"})
	all, _ := store.List(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, "u0", all[0].UserID)
}

// 固定时钟下多条报警 detected_at 相同，重复读取的结果和顺序不变
func TestMemoryAlertRegistry_RepeatedReadsAreIdentical(t *testing.T) {
	fixed := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	reg := NewMemoryAlertRegistry(func() time.Time { return fixed })
	ctx := context.Background()

	var created []string
	for _, p := range []models.AlertProposal{
		sampleProposal("S1", models.AlertTypeEfficiencyDrop),
		sampleProposal("S1", models.AlertTypeRateBelowTarget),
		sampleProposal("S2", models.AlertTypeDowntimeExceeded),
		sampleProposal("S1", models.AlertTypeEfficiencyDrop),
	} {
		a, err := reg.Create(ctx, p)
		require.NoError(t, err)
		assert.True(t, fixed.Equal(a.DetectedAt))
		created = append(created, a.AlertID)
	}
	_, err := reg.Acknowledge(ctx, created[1], "op")
	require.NoError(t, err)

	first, err := reg.List(ctx)
	require.NoError(t, err)
	second, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 4)
	assert.Equal(t, first, second)
	// 同一时间戳时后创建的在前
	assert.Equal(t, created[3], first[0].AlertID)
	assert.Equal(t, created[0], first[3].AlertID)

	section := "S1"
	filters := models.AlertFilters{SectionID: &section}
	q1, err := reg.Query(ctx, filters)
	require.NoError(t, err)
	q2, err := reg.Query(ctx, filters)
	require.NoError(t, err)
	require.Len(t, q1, 3)
	assert.Equal(t, q1, q2)
}
