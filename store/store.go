package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/types"
	"github.com/BaSui01/flowagent/workflow"
)

// Store reads and writes sessions, actions, runs and node runs.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// New wraps an open gorm connection.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(zap.String("component", "store")),
	}
}

// AutoMigrate creates or updates all tables through gorm.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return types.NewError(types.ErrPersistence, "auto migrate").WithCause(err)
	}
	return nil
}

func persistErr(op string, err error) error {
	return types.NewError(types.ErrPersistence, op).WithCause(err)
}

// =============================================================================
// 会话与动作
// =============================================================================

// AppendAction inserts one action record.
func (s *Store) AppendAction(ctx context.Context, session agent.Session, rec agent.ActionRecord) error {
	sessionID := rec.SessionID
	if sessionID == "" {
		sessionID = session.ID
	}
	row := actionRowFrom(sessionID, rec)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return persistErr("append action", err)
	}
	return nil
}

// UpsertSession writes the session summary, replacing any earlier row.
func (s *Store) UpsertSession(ctx context.Context, session agent.Session, res *agent.ExecutionResult) error {
	row := sessionRowFrom(session, res)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return persistErr("upsert session", err)
	}
	return nil
}

// GetSession loads a session summary.
func (s *Store) GetSession(ctx context.Context, id string) (*agent.Session, error) {
	var row SessionRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.Errorf(types.ErrNotFound, "session %s not found", id)
		}
		return nil, persistErr("get session", err)
	}
	session := row.toSession()
	return &session, nil
}

// ListActions returns a session's actions in sequence order.
func (s *Store) ListActions(ctx context.Context, sessionID string) ([]agent.ActionRecord, error) {
	var rows []ActionRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, persistErr("list actions", err)
	}
	out := make([]agent.ActionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

// =============================================================================
// 工作流运行
// =============================================================================

// SaveRun inserts or replaces a run.
func (s *Store) SaveRun(ctx context.Context, run *workflow.Run) error {
	now := s.now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	row := runRowFrom(run)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return persistErr("save run", err)
	}
	return nil
}

// TransitionRun writes run's status, outputs, pause point and error only if
// the stored status is still one of from. A run that moved on in between is
// left untouched and ErrInvalidRunState is returned.
func (s *Store) TransitionRun(ctx context.Context, run *workflow.Run, from ...workflow.RunStatus) error {
	if len(from) == 0 {
		return types.Errorf(types.ErrInvalidRunState, "transition of run %s names no source status", run.ID)
	}
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	now := s.now()
	res := s.db.WithContext(ctx).
		Model(&RunRow{}).
		Where("id = ? AND status IN ?", run.ID, statuses).
		Select("status", "outputs", "paused_at_node_id", "error", "updated_at").
		Updates(&RunRow{
			Status:         string(run.Status),
			Outputs:        run.Outputs,
			PausedAtNodeID: run.PausedAtNodeID,
			Error:          run.Error,
			UpdatedAt:      now,
		})
	if res.Error != nil {
		return persistErr("transition run", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := s.GetRun(ctx, run.ID)
		if err != nil {
			return err
		}
		return types.Errorf(types.ErrInvalidRunState, "run %s is %s, expected %s", run.ID, current.Status, strings.Join(statuses, "|"))
	}
	run.UpdatedAt = now
	return nil
}

// GetRun loads a run.
func (s *Store) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	var row RunRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.Errorf(types.ErrNotFound, "run %s not found", id)
		}
		return nil, persistErr("get run", err)
	}
	return row.toRun(), nil
}

// ListRuns returns runs of a workflow, newest first. An empty status
// matches every status.
func (s *Store) ListRuns(ctx context.Context, workflowID string, status workflow.RunStatus, limit int) ([]*workflow.Run, error) {
	q := s.db.WithContext(ctx).Model(&RunRow{}).Order("created_at DESC")
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []RunRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, persistErr("list runs", err)
	}
	out := make([]*workflow.Run, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRun())
	}
	return out, nil
}

// SaveOutputs replaces the accumulated outputs of a running run. Runs in any
// other status are not touched.
func (s *Store) SaveOutputs(ctx context.Context, runID string, outputs workflow.Outputs) error {
	err := s.db.WithContext(ctx).
		Model(&RunRow{ID: runID}).
		Where("status = ?", string(workflow.RunRunning)).
		Select("outputs", "updated_at").
		Updates(&RunRow{Outputs: outputs, UpdatedAt: s.now()}).Error
	if err != nil {
		return persistErr("save outputs", err)
	}
	return nil
}

// AppendNodeRun inserts one node run.
func (s *Store) AppendNodeRun(ctx context.Context, runID string, out workflow.NodeOutput, d time.Duration) error {
	row := nodeRunRowFrom(runID, out, d)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return persistErr("append node run", err)
	}
	return nil
}

// ListNodeRuns returns a run's node runs in insertion order.
func (s *Store) ListNodeRuns(ctx context.Context, runID string) ([]workflow.NodeOutput, error) {
	var rows []NodeRunRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, persistErr("list node runs", err)
	}
	out := make([]workflow.NodeOutput, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toOutput())
	}
	return out, nil
}
